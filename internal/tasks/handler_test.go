package tasks

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLedger struct {
	confirmed []uuid.UUID
	failed    []uuid.UUID
	pending   []uuid.UUID
}

func (r *recordingLedger) ConfirmPayment(_ context.Context, id uuid.UUID) error {
	r.confirmed = append(r.confirmed, id)
	return nil
}

func (r *recordingLedger) FailPayment(_ context.Context, id uuid.UUID, _ []byte) error {
	r.failed = append(r.failed, id)
	return nil
}

func (r *recordingLedger) MarkPaymentPending(_ context.Context, id uuid.UUID) error {
	r.pending = append(r.pending, id)
	return nil
}

func runTask(t *testing.T, ledger Ledger, payload TransactionStatusPayload) error {
	t.Helper()
	task, err := NewTransactionStatusTask(payload)
	require.NoError(t, err)
	h := &Handler{Ledger: ledger, Logger: zerolog.Nop()}
	return h.HandleTransactionStatus(context.Background(), task)
}

func TestTransactionStatusTransitions(t *testing.T) {
	paymentID := uuid.New()
	cases := []struct {
		txaction string
		check    func(t *testing.T, l *recordingLedger)
	}{
		{"appointed", func(t *testing.T, l *recordingLedger) {
			assert.Equal(t, []uuid.UUID{paymentID}, l.pending)
		}},
		{"paid", func(t *testing.T, l *recordingLedger) {
			assert.Equal(t, []uuid.UUID{paymentID}, l.confirmed)
		}},
		{"capture", func(t *testing.T, l *recordingLedger) {
			assert.Equal(t, []uuid.UUID{paymentID}, l.confirmed)
		}},
		{"cancelation", func(t *testing.T, l *recordingLedger) {
			assert.Equal(t, []uuid.UUID{paymentID}, l.failed)
		}},
		{"failed", func(t *testing.T, l *recordingLedger) {
			assert.Equal(t, []uuid.UUID{paymentID}, l.failed)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.txaction, func(t *testing.T) {
			ledger := &recordingLedger{}
			err := runTask(t, ledger, TransactionStatusPayload{
				PaymentID: paymentID,
				TxID:      "991122",
				TxAction:  tc.txaction,
			})
			require.NoError(t, err)
			tc.check(t, ledger)
		})
	}
}

func TestTransactionStatusIgnoresUnknownActions(t *testing.T) {
	ledger := &recordingLedger{}
	err := runTask(t, ledger, TransactionStatusPayload{
		PaymentID: uuid.New(),
		TxAction:  "refund",
	})
	require.NoError(t, err)
	assert.Empty(t, ledger.confirmed)
	assert.Empty(t, ledger.failed)
	assert.Empty(t, ledger.pending)
}

func TestTransactionStatusBadPayloadSkipsRetry(t *testing.T) {
	h := &Handler{Ledger: &recordingLedger{}, Logger: zerolog.Nop()}
	err := h.HandleTransactionStatus(context.Background(), asynq.NewTask(TypeTransactionStatus, []byte("{broken")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}
