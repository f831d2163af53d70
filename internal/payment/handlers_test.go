package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-tickets/internal/session"
)

func testRouter(t *testing.T, stub *gatewayStub) (*chi.Mux, *Service, *fakeLedger, *session.Store) {
	t.Helper()
	svc, ledger, sessions := testService(t, stub)
	h := &Handler{
		Svc:      svc,
		Resumer:  &Resumer{Ledger: ledger, Sessions: sessions, PublicBaseURL: svc.PublicBaseURL},
		Sessions: sessions,
		Registry: svc.Registry,
		Validate: validator.New(),
		Logger:   zerolog.Nop(),
	}
	r := chi.NewRouter()
	r.Get("/payment/methods", h.Methods)
	r.Post("/orders/{order}/payments", h.Pay)
	r.Post("/checkout/card", h.PrepareCard)
	r.Get("/checkout/cardcheck", h.CardCheckConfig)
	r.Get("/return/{order}/{payment}/{hash}/{action}", h.Return)
	return r, svc, ledger, sessions
}

func TestMethodsEndpointListsEnabled(t *testing.T) {
	router, _, _, _ := testRouter(t, &gatewayStub{body: `{}`})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/payment/methods", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Methods []methodInfo `json:"methods"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Methods, 4)
	assert.Equal(t, "creditcard", resp.Methods[0].ID)
	assert.Equal(t, "cc", resp.Methods[0].ClearingType)
}

func TestPayEndpointApprovedFlow(t *testing.T) {
	stub := &gatewayStub{body: `{"Status":"APPROVED","TxId":"1"}`}
	router, _, ledger, sessions := testRouter(t, stub)
	testOrder(ledger)

	req := httptest.NewRequest(http.MethodPost, "/orders/A1B2C/payments",
		strings.NewReader(`{"method":"paypal"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp payResp
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "confirmed", resp.State)
	assert.Empty(t, resp.RedirectURL)
	assert.Equal(t, "wlt", stub.form.Get("clearingtype"))

	// A session cookie is minted for the caller.
	found := false
	for _, c := range rr.Result().Cookies() {
		if c.Name == session.CookieName && c.Value != "" {
			found = true
		}
	}
	assert.True(t, found, "session cookie expected")
	_ = sessions
}

func TestPayEndpointDecline(t *testing.T) {
	stub := &gatewayStub{body: `{"Status":"ERROR","Error":{"CustomerMessage":"Card expired"}}`}
	router, _, ledger, _ := testRouter(t, stub)
	testOrder(ledger)

	req := httptest.NewRequest(http.MethodPost, "/orders/A1B2C/payments",
		strings.NewReader(`{"method":"paypal"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusPaymentRequired, rr.Code)
	assert.Contains(t, rr.Body.String(), "Card expired")
}

func TestPayEndpointUnknownOrder(t *testing.T) {
	router, _, _, _ := testRouter(t, &gatewayStub{body: `{}`})

	req := httptest.NewRequest(http.MethodPost, "/orders/ZZZZZ/payments",
		strings.NewReader(`{"method":"paypal"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestPayEndpointPersistsMethodProvider(t *testing.T) {
	router, _, ledger, _ := testRouter(t, &gatewayStub{body: `{}`})
	order := testOrder(ledger)

	req := httptest.NewRequest(http.MethodPost, "/orders/A1B2C/payments",
		strings.NewReader(`{"method":"creditcard"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	// Without a tokenized card the attempt is rejected, but the payment row
	// already exists and names the concrete method.
	require.Equal(t, http.StatusBadRequest, rr.Code)

	pmts := ledger.paymentsFor(order.ID)
	require.Len(t, pmts, 1)
	assert.Equal(t, "payone_creditcard", pmts[0].Provider)
}

func TestPayEndpointDisabledMethod(t *testing.T) {
	stub := &gatewayStub{body: `{}`}
	router, svc, ledger, _ := testRouter(t, stub)
	testOrder(ledger)
	// Only giropay enabled.
	*svc.Registry = *payoneRegistryWith("giropay")

	req := httptest.NewRequest(http.MethodPost, "/orders/A1B2C/payments",
		strings.NewReader(`{"method":"paypal"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "METHOD_NOT_AVAILABLE")
	assert.Zero(t, stub.calls)
}

func TestPayEndpointRequiresMethod(t *testing.T) {
	router, _, ledger, _ := testRouter(t, &gatewayStub{body: `{}`})
	testOrder(ledger)

	req := httptest.NewRequest(http.MethodPost, "/orders/A1B2C/payments", strings.NewReader(`{}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPrepareCardStoresSessionData(t *testing.T) {
	router, _, _, sessions := testRouter(t, &gatewayStub{body: `{}`})

	req := httptest.NewRequest(http.MethodPost, "/checkout/card",
		strings.NewReader(`{"pseudocardpan":"941001","truncatedcardpan":"411111xxxxxx1111","cardholder":"Ada"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNoContent, rr.Code)

	var sid string
	for _, c := range rr.Result().Cookies() {
		if c.Name == session.CookieName {
			sid = c.Value
		}
	}
	require.NotEmpty(t, sid)

	card, err := sessions.CardData(context.Background(), sid)
	require.NoError(t, err)
	assert.Equal(t, "941001", card.PseudoCardPAN)
	assert.Equal(t, "Ada", card.Cardholder)
}

func TestPrepareCardRequiresToken(t *testing.T) {
	router, _, _, _ := testRouter(t, &gatewayStub{body: `{}`})

	req := httptest.NewRequest(http.MethodPost, "/checkout/card", strings.NewReader(`{"cardholder":"Ada"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCardCheckConfig(t *testing.T) {
	router, _, _, _ := testRouter(t, &gatewayStub{body: `{}`})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/checkout/cardcheck?locale=fr-FR", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Request  map[string]string `json:"request"`
		Language string            `json:"language"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "fr", resp.Language)
	assert.Equal(t, "creditcardcheck", resp.Request["request"])
	assert.NotEmpty(t, resp.Request["hash"])
	assert.NotContains(t, resp.Request, "key", "raw portal key must never reach the browser")
}

func TestReturnEndpointRedirects(t *testing.T) {
	router, _, ledger, sessions := testRouter(t, &gatewayStub{body: `{}`})
	ctx := context.Background()
	order := testOrder(ledger)
	pmt, err := ledger.CreatePayment(ctx, order.ID, "payone", order.Total, order.Currency)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet,
		"/return/"+order.Code+"/"+pmt.ID.String()+"/"+secretHash(order.Secret)+"/success", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	// New session, so the secret does not match; lands on the event index.
	require.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "https://tickets.example/democon/", rr.Header().Get("Location"))
	_ = sessions
}

func TestReturnEndpointInvalidAction(t *testing.T) {
	router, _, ledger, _ := testRouter(t, &gatewayStub{body: `{}`})
	order := testOrder(ledger)

	req := httptest.NewRequest(http.MethodGet,
		"/return/"+order.Code+"/x/y/launch", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestReturnEndpointNotFound(t *testing.T) {
	router, _, _, _ := testRouter(t, &gatewayStub{body: `{}`})

	req := httptest.NewRequest(http.MethodGet,
		"/return/NOPE1/5d2f45d9-0000-0000-0000-000000000000/deadbeef/success", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
