package payment

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-tickets/internal/common"
	"github.com/noah-isme/backend-tickets/internal/session"
	"github.com/noah-isme/backend-tickets/internal/store"
)

// ErrReturnNotFound covers every lookup failure on the return path: unknown
// order, unknown payment, wrong hash. Callers must not distinguish between
// them.
var ErrReturnNotFound = errors.New("payment: return target not found")

// decoySecret feeds the hash comparison on the not-found path so a lookup
// against a nonexistent order costs the same as one against a real order
// with a wrong hash.
const decoySecret = "abcdefghijklmnopq"

// Resumer validates inbound gateway return redirects and decides where to
// send the customer next.
type Resumer struct {
	Ledger        Ledger
	Sessions      *session.Store
	PublicBaseURL string
}

// ResumeResult tells the handler where to redirect the browser.
type ResumeResult struct {
	RedirectURL string
	// SessionMismatch is set when the return was visited outside the session
	// that started the payment. The redirect then points at the event index
	// so the customer can follow the link from their email instead.
	SessionMismatch bool
}

// Resume handles a customer arriving back from the gateway. The hash in the
// URL proves knowledge of the order secret; the session-recorded secret
// proves the browser is the one that initiated the payment.
func (r *Resumer) Resume(ctx context.Context, sid, orderCode, paymentID, hash string) (ResumeResult, error) {
	var zero ResumeResult
	if r == nil || r.Ledger == nil || r.Sessions == nil {
		return zero, errors.New("payment resumer not configured")
	}

	order, err := r.Ledger.GetOrderByCode(ctx, orderCode)
	if errors.Is(err, store.ErrNotFound) {
		// Equalize timing with the found path before reporting not-found.
		compareSecretHash(decoySecret, hash)
		return zero, ErrReturnNotFound
	}
	if err != nil {
		return zero, err
	}
	if !compareSecretHash(order.Secret, hash) {
		return zero, ErrReturnNotFound
	}

	pid, err := uuid.Parse(paymentID)
	if err != nil {
		return zero, ErrReturnNotFound
	}
	if _, err := r.Ledger.GetPaymentForOrder(ctx, order.ID, pid); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return zero, ErrReturnNotFound
		}
		return zero, err
	}

	sessSecret, err := r.Sessions.OrderSecret(ctx, sid)
	if err != nil {
		return zero, err
	}
	if sessSecret != order.Secret {
		return ResumeResult{
			RedirectURL:     r.eventIndexURL(order),
			SessionMismatch: true,
		}, nil
	}

	target := r.orderURL(order)
	if order.Status == store.OrderStatusPaid {
		target += "?paid=yes"
	}
	return ResumeResult{RedirectURL: target}, nil
}

// compareSecretHash checks hash against the sha1 of the lowercased secret in
// constant time. Package variable so tests can observe that the not-found
// and wrong-hash paths perform exactly the same comparison work.
var compareSecretHash = func(secret, hash string) bool {
	want := common.Sha1Hex(strings.ToLower(secret))
	return subtle.ConstantTimeCompare([]byte(want), []byte(strings.ToLower(hash))) == 1
}

func (r *Resumer) eventIndexURL(order store.Order) string {
	return fmt.Sprintf("%s/%s/", strings.TrimRight(r.PublicBaseURL, "/"), order.EventSlug)
}

func (r *Resumer) orderURL(order store.Order) string {
	return fmt.Sprintf("%s/%s/order/%s/%s/",
		strings.TrimRight(r.PublicBaseURL, "/"), order.EventSlug, order.Code, order.Secret)
}
