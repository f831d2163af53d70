package payment

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-tickets/internal/common"
	"github.com/noah-isme/backend-tickets/internal/obs"
	"github.com/noah-isme/backend-tickets/internal/payone"
	"github.com/noah-isme/backend-tickets/internal/store"
	"github.com/noah-isme/backend-tickets/internal/tasks"
)

// maxWebhookBody bounds TransactionStatus payload size.
const maxWebhookBody = 64 << 10

// TaskEnqueuer is the subset of *asynq.Client the webhook needs.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Webhook accepts gateway TransactionStatus posts. It verifies the portal
// key digest, guards against replays, records the transaction mapping and
// hands the heavy lifting to the worker queue. The gateway retries any
// notification that is not answered with "TSOK", so everything verified gets
// acknowledged even when it duplicates earlier deliveries.
type Webhook struct {
	Ledger    Ledger
	Client    *payone.Client
	Replay    *redis.Client
	ReplayTTL time.Duration
	Tasks     TaskEnqueuer
	Logger    zerolog.Logger
}

// Handle processes POST /webhook/{payment}.
func (h Webhook) Handle(w http.ResponseWriter, r *http.Request) {
	if h.Ledger == nil || h.Client == nil || h.Tasks == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "webhook unavailable", nil)
		return
	}
	result := "error"
	defer func() {
		if obs.PaymentWebhookTotal != nil {
			obs.PaymentWebhookTotal.WithLabelValues("payone", result).Inc()
		}
	}()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "unable to read payload", http.StatusBadRequest)
		return
	}
	form, err := url.ParseQuery(string(body))
	if err != nil {
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}

	// The gateway proves itself with the md5 digest of the portal key.
	want := common.Md5Hex(h.Client.Credentials().Key)
	if subtle.ConstantTimeCompare([]byte(form.Get("key")), []byte(want)) != 1 {
		result = "invalid_key"
		http.Error(w, "invalid key", http.StatusForbidden)
		return
	}

	paymentID, err := uuid.Parse(chi.URLParam(r, "payment"))
	if err != nil {
		result = "unknown_payment"
		http.Error(w, "unknown payment", http.StatusNotFound)
		return
	}
	ctx := r.Context()
	pmt, err := h.Ledger.GetPayment(ctx, paymentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			result = "unknown_payment"
			http.Error(w, "unknown payment", http.StatusNotFound)
			return
		}
		http.Error(w, "payment lookup failed", http.StatusInternalServerError)
		return
	}
	// Notifications only ever concern this gateway's payments; ids pointing
	// at another provider's payment are treated as unknown.
	if !strings.HasPrefix(pmt.Provider, "payone") {
		result = "unknown_payment"
		http.Error(w, "unknown payment", http.StatusNotFound)
		return
	}

	if h.Replay != nil && h.ReplayTTL > 0 {
		key := "wh:payone:" + common.Sha256Hex(string(body))
		fresh, err := h.Replay.SetNX(ctx, key, "1", h.ReplayTTL).Result()
		if err != nil {
			http.Error(w, "replay store error", http.StatusInternalServerError)
			return
		}
		if !fresh {
			result = "replay"
			h.ack(w)
			return
		}
	}

	txid := form.Get("txid")
	txaction := form.Get("txaction")
	if txid != "" {
		if err := h.Ledger.RecordTransaction(ctx, txid, pmt.OrderID, pmt.ID); err != nil && !errors.Is(err, store.ErrDuplicateTransaction) {
			http.Error(w, "transaction record error", http.StatusInternalServerError)
			return
		}
	}

	params := make(map[string]string, len(form))
	for k := range form {
		if k == "key" {
			continue
		}
		params[k] = form.Get(k)
	}
	task, err := tasks.NewTransactionStatusTask(tasks.TransactionStatusPayload{
		PaymentID: pmt.ID,
		OrderID:   pmt.OrderID,
		TxID:      txid,
		TxAction:  strings.ToLower(strings.TrimSpace(txaction)),
		Params:    params,
	})
	if err != nil {
		http.Error(w, "task build error", http.StatusInternalServerError)
		return
	}
	if _, err := h.Tasks.EnqueueContext(ctx, task); err != nil {
		h.Logger.Error().Err(err).Str("txid", txid).Msg("enqueue transaction status task")
		http.Error(w, "queue error", http.StatusInternalServerError)
		return
	}

	h.Logger.Info().
		Str("payment", pmt.ID.String()).
		Str("txid", txid).
		Str("txaction", txaction).
		Msg("accepted transaction status notification")
	result = "accepted"
	h.ack(w)
}

// ack sends the acknowledgement string the gateway expects.
func (h Webhook) ack(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("TSOK"))
}
