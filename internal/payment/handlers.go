package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-tickets/internal/common"
	"github.com/noah-isme/backend-tickets/internal/obs"
	"github.com/noah-isme/backend-tickets/internal/payone"
	"github.com/noah-isme/backend-tickets/internal/session"
	"github.com/noah-isme/backend-tickets/internal/store"
)

// Handler exposes the checkout-facing payment endpoints.
type Handler struct {
	Svc      *Service
	Resumer  *Resumer
	Sessions *session.Store
	Registry *payone.Registry
	Validate *validator.Validate
	Logger   zerolog.Logger
}

// providerName is the provider identifier persisted on payments, one per
// gateway method. Lookups match on the shared "payone" prefix.
func providerName(methodID string) string {
	return "payone_" + methodID
}

type methodInfo struct {
	ID             string `json:"id"`
	ClearingType   string `json:"clearingType"`
	SupportsRefund bool   `json:"supportsRefund"`
}

// Methods lists the enabled payment methods.
func (h *Handler) Methods(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Registry == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "payment handler unavailable", nil)
		return
	}
	out := make([]methodInfo, 0, 4)
	for _, id := range h.Registry.IDs() {
		m, ok := h.Registry.Method(id)
		if !ok {
			continue
		}
		d := m.Descriptor()
		out = append(out, methodInfo{
			ID:             d.ID,
			ClearingType:   string(d.ClearingType),
			SupportsRefund: d.SupportsRefund,
		})
	}
	common.JSON(w, http.StatusOK, map[string]any{"methods": out})
}

type payReq struct {
	Method string `json:"method" validate:"required"`
	Iframe bool   `json:"iframe"`
}

type payResp struct {
	PaymentID   string `json:"paymentId"`
	State       string `json:"state"`
	RedirectURL string `json:"redirectUrl,omitempty"`
}

// Pay opens a payment attempt for an order and executes the gateway
// authorization synchronously.
func (h *Handler) Pay(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Svc == nil || h.Svc.Ledger == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "payment handler unavailable", nil)
		return
	}
	code := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "order")))
	if code == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "order code is required", nil)
		return
	}
	var req payReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid body", nil)
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(req); err != nil {
			common.JSONError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
			return
		}
	}
	if _, ok := h.Registry.Method(req.Method); !ok {
		common.JSONError(w, http.StatusBadRequest, "METHOD_NOT_AVAILABLE", "payment method not available", nil)
		return
	}

	ctx := r.Context()
	order, appErr := h.loadPayableOrder(ctx, code)
	if appErr != nil {
		common.AppJSONError(w, appErr)
		return
	}

	sid := session.EnsureID(w, r)
	if err := h.Sessions.SetIframe(ctx, sid, req.Iframe); err != nil {
		common.JSONError(w, http.StatusInternalServerError, "SESSION_ERROR", "unable to persist session state", nil)
		return
	}

	pmt, err := h.Svc.Ledger.CreatePayment(ctx, order.ID, providerName(req.Method), order.Total, order.Currency)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_CREATE_ERROR", "unable to open payment", nil)
		return
	}

	result, err := h.Svc.Execute(ctx, sid, order, pmt, req.Method)
	if err != nil {
		h.writeExecuteError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, payResp{
		PaymentID:   pmt.ID.String(),
		State:       string(result.State),
		RedirectURL: result.RedirectURL,
	})
}

// loadPayableOrder resolves an order that is still open for payment.
func (h *Handler) loadPayableOrder(ctx context.Context, code string) (store.Order, *common.AppError) {
	order, err := h.Svc.Ledger.GetOrderByCode(ctx, code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Order{}, common.NewAppError("ORDER_NOT_FOUND", "order not found", http.StatusNotFound, err)
		}
		return store.Order{}, common.NewAppError("ORDER_FETCH_ERROR", "unable to load order", http.StatusInternalServerError, err)
	}
	if order.Status != store.OrderStatusPending {
		return store.Order{}, common.NewAppError("ORDER_NOT_PAYABLE", "order no longer accepts payments", http.StatusConflict, nil)
	}
	return order, nil
}

// writeExecuteError translates the gateway error taxonomy into the JSON
// envelope. Communication detail goes to the log, never to the customer.
func (h *Handler) writeExecuteError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		valErr  *payone.ValidationError
		decl    *payone.DeclinedError
		commErr *payone.CommunicationError
	)
	switch {
	case errors.As(err, &valErr):
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", valErr.Msg, nil)
	case errors.As(err, &decl):
		common.JSONError(w, http.StatusPaymentRequired, "PAYMENT_DECLINED", decl.CustomerMessage, nil)
	case errors.As(err, &commErr):
		h.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("gateway communication failure")
		common.JSONError(w, http.StatusBadGateway, "GATEWAY_ERROR",
			"We had trouble communicating with our payment provider. Please try again, or contact us if the problem persists.", nil)
	default:
		h.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("payment execution failure")
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_ERROR", "unable to process payment", nil)
	}
}

type prepareCardReq struct {
	PseudoCardPAN    string `json:"pseudocardpan" validate:"required"`
	TruncatedCardPAN string `json:"truncatedcardpan"`
	CardType         string `json:"cardtype"`
	CardExpireDate   string `json:"cardexpiredate"`
	Cardholder       string `json:"cardholder"`
}

// PrepareCard stores the client-side tokenization results in the checkout
// session so the subsequent pay call can use them.
func (h *Handler) PrepareCard(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Sessions == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "payment handler unavailable", nil)
		return
	}
	var req prepareCardReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid body", nil)
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(req); err != nil {
			common.JSONError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
			return
		}
	}
	sid := session.EnsureID(w, r)
	err := h.Sessions.SetCardData(r.Context(), sid, session.CardData{
		PseudoCardPAN:    req.PseudoCardPAN,
		TruncatedCardPAN: req.TruncatedCardPAN,
		CardType:         req.CardType,
		CardExpireDate:   req.CardExpireDate,
		Cardholder:       req.Cardholder,
	})
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "SESSION_ERROR", "unable to persist card data", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CardCheckConfig returns the signed parameter set the browser-side
// tokenizer needs to call the gateway's card check directly.
func (h *Handler) CardCheckConfig(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Svc == nil || h.Svc.Client == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "payment handler unavailable", nil)
		return
	}
	client := h.Svc.Client
	params := payone.CardCheck(client.Credentials(), client.TestMode())
	common.JSON(w, http.StatusOK, map[string]any{
		"request":  params.Map(),
		"language": payone.CardCheckLanguage(r.URL.Query().Get("locale")),
	})
}

var returnActions = map[string]bool{"success": true, "error": true, "cancel": true}

// Return handles the customer arriving back from the gateway after a
// redirect-based authorization step.
func (h *Handler) Return(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Resumer == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "payment handler unavailable", nil)
		return
	}
	action := chi.URLParam(r, "action")
	if !returnActions[action] {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "not found", nil)
		return
	}
	sid := session.EnsureID(w, r)
	result, err := h.Resumer.Resume(r.Context(), sid,
		chi.URLParam(r, "order"), chi.URLParam(r, "payment"), chi.URLParam(r, "hash"))
	if err != nil {
		if errors.Is(err, ErrReturnNotFound) {
			countReturn("not_found")
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "not found", nil)
			return
		}
		countReturn("error")
		h.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("return flow failure")
		common.JSONError(w, http.StatusInternalServerError, "RETURN_ERROR", "unable to resume checkout", nil)
		return
	}
	if result.SessionMismatch {
		countReturn("session_mismatch")
		h.Logger.Warn().Str("order", chi.URLParam(r, "order")).Msg("return visited outside originating session")
	} else {
		countReturn("resumed")
	}
	http.Redirect(w, r, result.RedirectURL, http.StatusFound)
}

func countReturn(result string) {
	if obs.ReturnFlowTotal != nil {
		obs.ReturnFlowTotal.WithLabelValues(result).Inc()
	}
}
