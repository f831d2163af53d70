package payone_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-tickets/internal/payone"
)

var testCreds = payone.Credentials{
	MerchantID:   "12345",
	SubAccountID: "54321",
	PortalID:     "2030000",
	Key:          "supersecret",
}

func TestAuthorizeSendsSignedForm(t *testing.T) {
	var form map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"Status":"APPROVED","TxId":"tx-1"}`))
	}))
	defer srv.Close()

	client := payone.NewClient(srv.Client(), srv.URL, testCreds, true, zerolog.Nop())
	params := payone.NewParams()
	params.Set("request", "authorization")
	params.Set("amount", "1000")

	resp, err := client.Authorize(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, "APPROVED", resp.Status)
	assert.Equal(t, "tx-1", resp.TxID)
	assert.JSONEq(t, `{"Status":"APPROVED","TxId":"tx-1"}`, string(resp.Raw()))

	// fixed API/auth parameters are merged in
	assert.Equal(t, []string{"54321"}, form["aid"])
	assert.Equal(t, []string{"12345"}, form["mid"])
	assert.Equal(t, []string{"2030000"}, form["portalid"])
	assert.Equal(t, []string{"3.11"}, form["api_version"])
	assert.Equal(t, []string{"test"}, form["mode"])
	assert.Equal(t, []string{"UTF-8"}, form["encoding"])
	// the portal key is sent as its MD5 digest, never raw
	require.Len(t, form["key"], 1)
	assert.NotEqual(t, testCreds.Key, form["key"][0])
	assert.Len(t, form["key"][0], 32)
}

func TestAuthorizeHTTPErrorIsCommunicationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"Status":"ERROR","ErrorMessage":"maintenance"}`))
	}))
	defer srv.Close()

	client := payone.NewClient(srv.Client(), srv.URL, testCreds, false, zerolog.Nop())
	_, err := client.Authorize(context.Background(), payone.NewParams())
	var commErr *payone.CommunicationError
	require.ErrorAs(t, err, &commErr)
	assert.JSONEq(t, `{"Status":"ERROR","ErrorMessage":"maintenance"}`, string(commErr.Detail))
}

func TestAuthorizeUnparseableBodyKeepsDiagnostic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>gateway down</html>"))
	}))
	defer srv.Close()

	client := payone.NewClient(srv.Client(), srv.URL, testCreds, false, zerolog.Nop())
	_, err := client.Authorize(context.Background(), payone.NewParams())
	var commErr *payone.CommunicationError
	require.ErrorAs(t, err, &commErr)
	assert.Contains(t, string(commErr.Detail), "gateway down")
}

func TestAuthorizeTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused

	client := payone.NewClient(nil, srv.URL, testCreds, false, zerolog.Nop())
	_, err := client.Authorize(context.Background(), payone.NewParams())
	var commErr *payone.CommunicationError
	require.ErrorAs(t, err, &commErr)
}
