package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// Ledger is the slice of the store the worker needs to apply
// notification-driven transitions.
type Ledger interface {
	ConfirmPayment(ctx context.Context, id uuid.UUID) error
	FailPayment(ctx context.Context, id uuid.UUID, info []byte) error
	MarkPaymentPending(ctx context.Context, id uuid.UUID) error
}

// Handler applies TransactionStatus notifications to payment records.
type Handler struct {
	Ledger Ledger
	Logger zerolog.Logger
}

// HandleTransactionStatus maps a gateway txaction to a payment state
// transition. Transitions are idempotent in the store, so redelivered tasks
// and out-of-order notifications are safe to replay.
func (h *Handler) HandleTransactionStatus(ctx context.Context, t *asynq.Task) error {
	var p TransactionStatusPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode transaction status payload: %w: %w", err, asynq.SkipRetry)
	}
	log := h.Logger.With().
		Str("payment", p.PaymentID.String()).
		Str("txid", p.TxID).
		Str("txaction", p.TxAction).
		Logger()

	switch p.TxAction {
	case "appointed":
		if err := h.Ledger.MarkPaymentPending(ctx, p.PaymentID); err != nil {
			return fmt.Errorf("mark payment pending: %w", err)
		}
	case "paid", "capture":
		if err := h.Ledger.ConfirmPayment(ctx, p.PaymentID); err != nil {
			return fmt.Errorf("confirm payment: %w", err)
		}
	case "cancelation", "failed":
		info, _ := json.Marshal(p.Params)
		if err := h.Ledger.FailPayment(ctx, p.PaymentID, info); err != nil {
			return fmt.Errorf("fail payment: %w", err)
		}
	default:
		// Notifications we do not act on (refund, debit, transfer, ...)
		// are acknowledged so the queue does not retry them.
		log.Info().Msg("ignoring transaction status action")
		return nil
	}
	log.Info().Msg("applied transaction status")
	return nil
}
