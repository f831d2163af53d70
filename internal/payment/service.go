// Package payment orchestrates PAYONE payment attempts for ticket orders:
// it executes authorization calls, resumes redirect-based flows when the
// customer returns, and accepts asynchronous transaction status callbacks.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/backend-tickets/internal/common"
	"github.com/noah-isme/backend-tickets/internal/obs"
	"github.com/noah-isme/backend-tickets/internal/payone"
	"github.com/noah-isme/backend-tickets/internal/session"
	"github.com/noah-isme/backend-tickets/internal/store"
)

// Ledger is the slice of the persistence layer the payment flows need.
// *store.Store satisfies it; tests substitute an in-memory fake.
type Ledger interface {
	GetOrderByCode(ctx context.Context, code string) (store.Order, error)
	GetPayment(ctx context.Context, id uuid.UUID) (store.Payment, error)
	GetPaymentForOrder(ctx context.Context, orderID, paymentID uuid.UUID) (store.Payment, error)
	CreatePayment(ctx context.Context, orderID uuid.UUID, provider string, amount decimal.Decimal, currencyCode string) (store.Payment, error)
	SetPaymentInfo(ctx context.Context, id uuid.UUID, info []byte) error
	ConfirmPayment(ctx context.Context, id uuid.UUID) error
	FailPayment(ctx context.Context, id uuid.UUID, info []byte) error
	MarkPaymentPending(ctx context.Context, id uuid.UUID) error
	RecordTransaction(ctx context.Context, txid string, orderID, paymentID uuid.UUID) error
}

// Service runs one gateway authorization attempt per call. It owns no state
// beyond its collaborators; every attempt is request-scoped.
type Service struct {
	Ledger        Ledger
	Sessions      *session.Store
	Client        *payone.Client
	Registry      *payone.Registry
	Signer        *RedirectSigner
	PublicBaseURL string
	Logger        zerolog.Logger
}

// Result describes the user-visible outcome of one payment attempt.
type Result struct {
	State store.PaymentState
	// RedirectURL is set when the customer must visit the gateway (or its
	// bank/wallet page) to complete authorization. Inside an iframe session
	// it points at the signed same-origin bounce endpoint instead of the raw
	// gateway URL.
	RedirectURL string
}

// Execute performs a single authorization attempt for the given payment. The
// raw gateway response is persisted on the payment before it is interpreted,
// so a crash between the two never loses the gateway's answer. For card
// payments the tokenized card data is removed from the session on every exit
// path.
func (s *Service) Execute(ctx context.Context, sid string, order store.Order, payment store.Payment, methodID string) (Result, error) {
	var zero Result
	if s == nil || s.Ledger == nil || s.Sessions == nil || s.Client == nil || s.Registry == nil {
		return zero, errors.New("payment service not configured")
	}
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.Execute")
	defer span.End()

	outcomeLabel := "error"
	start := time.Now()
	defer func() {
		span.SetAttributes(
			attribute.String("payment.method", methodID),
			attribute.String("payment.outcome", outcomeLabel),
			attribute.Float64("payment.duration_ms", obs.DurationMillis(time.Since(start))),
		)
		if obs.PaymentAttemptTotal != nil {
			obs.PaymentAttemptTotal.WithLabelValues(methodID, outcomeLabel).Inc()
		}
	}()

	method, ok := s.Registry.Method(methodID)
	if !ok {
		return zero, &payone.ValidationError{Msg: fmt.Sprintf("payment method %q is not available", methodID)}
	}
	d := method.Descriptor()

	sess := payone.SessionValues{}
	if d.ClearingType == payone.ClearingCreditCard {
		card, err := s.Sessions.CardData(ctx, sid)
		if err != nil {
			return zero, fmt.Errorf("read card session: %w", err)
		}
		sess.CardToken = card.PseudoCardPAN
		sess.Cardholder = card.Cardholder
		// The token is single-use. Whatever happens below, it must not
		// survive this attempt.
		defer func() {
			if err := s.Sessions.ClearCardData(context.WithoutCancel(ctx), sid); err != nil {
				s.Logger.Error().Err(err).Str("order", order.Code).Msg("clear card session data")
			}
		}()
	}
	if !method.SessionReady(sess) {
		return zero, payone.ErrSessionNotReady
	}

	if err := s.Sessions.SetOrderSecret(ctx, sid, order.Secret); err != nil {
		return zero, fmt.Errorf("record order secret: %w", err)
	}

	req := s.buildRequest(order, payment)
	params, err := method.BuildAuthorization(req, sess)
	if err != nil {
		return zero, err
	}

	resp, err := s.Client.Authorize(ctx, params)
	if err != nil {
		span.RecordError(err)
		var commErr *payone.CommunicationError
		if errors.As(err, &commErr) {
			info := commErr.Detail
			if len(info) == 0 {
				info, _ = json.Marshal(map[string]string{"error": commErr.Error()})
			}
			if ferr := s.Ledger.FailPayment(ctx, payment.ID, info); ferr != nil {
				s.Logger.Error().Err(ferr).Str("payment", payment.ID.String()).Msg("fail payment after gateway error")
			}
		}
		return zero, err
	}

	if err := s.Ledger.SetPaymentInfo(ctx, payment.ID, resp.Raw()); err != nil {
		return zero, fmt.Errorf("persist gateway response: %w", err)
	}
	if resp.TxID != "" {
		if err := s.Ledger.RecordTransaction(ctx, resp.TxID, order.ID, payment.ID); err != nil && !errors.Is(err, store.ErrDuplicateTransaction) {
			s.Logger.Error().Err(err).Str("txid", resp.TxID).Msg("record gateway transaction")
		}
	}

	outcome, err := payone.Interpret(resp)
	if err != nil {
		span.RecordError(err)
		if ferr := s.Ledger.FailPayment(ctx, payment.ID, resp.Raw()); ferr != nil {
			s.Logger.Error().Err(ferr).Str("payment", payment.ID.String()).Msg("fail payment after interpret error")
		}
		return zero, err
	}

	switch outcome.Kind {
	case payone.OutcomeApproved:
		if err := s.Ledger.ConfirmPayment(ctx, payment.ID); err != nil {
			return zero, fmt.Errorf("confirm payment: %w", err)
		}
		outcomeLabel = "approved"
		return Result{State: store.PaymentStateConfirmed}, nil

	case payone.OutcomeRedirect:
		target := outcome.RedirectURL
		iframe, err := s.Sessions.Iframe(ctx, sid)
		if err != nil {
			return zero, fmt.Errorf("read iframe flag: %w", err)
		}
		if iframe && s.Signer != nil {
			target = s.Signer.BounceURL(target)
		}
		outcomeLabel = "redirect"
		return Result{State: store.PaymentStateCreated, RedirectURL: target}, nil

	case payone.OutcomePending:
		if err := s.Ledger.MarkPaymentPending(ctx, payment.ID); err != nil {
			return zero, fmt.Errorf("mark payment pending: %w", err)
		}
		outcomeLabel = "pending"
		return Result{State: store.PaymentStatePending}, nil

	case payone.OutcomeDeclined:
		if err := s.Ledger.FailPayment(ctx, payment.ID, resp.Raw()); err != nil {
			return zero, fmt.Errorf("fail payment: %w", err)
		}
		outcomeLabel = "declined"
		return zero, &payone.DeclinedError{CustomerMessage: outcome.Reason}

	default:
		return zero, fmt.Errorf("unhandled gateway outcome %q", outcome.Kind)
	}
}

func (s *Service) buildRequest(order store.Order, payment store.Payment) *payone.Request {
	var addr *payone.InvoiceAddress
	if inv := order.Invoice; inv != nil {
		addr = &payone.InvoiceAddress{
			Company:        inv.Company,
			GivenName:      inv.GivenName,
			FamilyName:     inv.FamilyName,
			Name:           inv.Name,
			Street:         inv.Street,
			ZipCode:        inv.ZipCode,
			City:           inv.City,
			State:          inv.State,
			Country:        inv.Country,
			Salutation:     inv.Salutation,
			Title:          inv.Title,
			VATID:          inv.VATID,
			VATIDValidated: inv.VATIDValidated,
		}
	}
	return &payone.Request{
		OrderCode:      order.Code,
		OrderSecret:    order.Secret,
		EventSlug:      order.EventSlug,
		EventName:      order.EventName,
		Locale:         order.Locale,
		TestMode:       order.TestMode,
		PaymentFullID:  payment.FullID(order.Code),
		Amount:         payment.Amount,
		Currency:       payment.Currency,
		Address:        addr,
		DefaultCountry: order.Country,
		SuccessURL:     s.returnURL(order, payment, "success"),
		ErrorURL:       s.returnURL(order, payment, "error"),
		BackURL:        s.returnURL(order, payment, "cancel"),
	}
}

func (s *Service) returnURL(order store.Order, payment store.Payment, action string) string {
	hash := common.Sha1Hex(strings.ToLower(order.Secret))
	return fmt.Sprintf("%s/return/%s/%s/%s/%s",
		strings.TrimRight(s.PublicBaseURL, "/"), order.Code, payment.ID, hash, action)
}
