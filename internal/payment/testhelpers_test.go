package payment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-tickets/internal/payone"
	"github.com/noah-isme/backend-tickets/internal/session"
	"github.com/noah-isme/backend-tickets/internal/store"
)

func payoneRegistryWith(ids ...string) *payone.Registry {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return payone.NewRegistry(func(id string) bool { return set[id] })
}

// fakeLedger is an in-memory Ledger mirroring the store's transition rules.
type fakeLedger struct {
	mu           sync.Mutex
	orders       map[string]store.Order
	payments     map[uuid.UUID]store.Payment
	transactions map[string]store.ReferencedTransaction
	confirms     int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		orders:       make(map[string]store.Order),
		payments:     make(map[uuid.UUID]store.Payment),
		transactions: make(map[string]store.ReferencedTransaction),
	}
}

func (f *fakeLedger) addOrder(o store.Order) store.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	f.orders[o.Code] = o
	return o
}

func (f *fakeLedger) GetOrderByCode(_ context.Context, code string) (store.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[code]
	if !ok {
		return store.Order{}, store.ErrNotFound
	}
	return o, nil
}

func (f *fakeLedger) GetPayment(_ context.Context, id uuid.UUID) (store.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[id]
	if !ok {
		return store.Payment{}, store.ErrNotFound
	}
	return p, nil
}

func (f *fakeLedger) GetPaymentForOrder(_ context.Context, orderID, paymentID uuid.UUID) (store.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[paymentID]
	if !ok || p.OrderID != orderID {
		return store.Payment{}, store.ErrNotFound
	}
	return p, nil
}

func (f *fakeLedger) CreatePayment(_ context.Context, orderID uuid.UUID, provider string, amount decimal.Decimal, currencyCode string) (store.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var seq int32
	for _, p := range f.payments {
		if p.OrderID == orderID && p.Seq > seq {
			seq = p.Seq
		}
	}
	p := store.Payment{
		ID:        uuid.New(),
		OrderID:   orderID,
		Seq:       seq + 1,
		Provider:  provider,
		State:     store.PaymentStateCreated,
		Amount:    amount,
		Currency:  currencyCode,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	f.payments[p.ID] = p
	return p, nil
}

func (f *fakeLedger) SetPaymentInfo(_ context.Context, id uuid.UUID, info []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.payments[id]
	p.Info = info
	f.payments[id] = p
	return nil
}

func (f *fakeLedger) ConfirmPayment(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.payments[id]
	if p.State == store.PaymentStateConfirmed {
		return nil
	}
	p.State = store.PaymentStateConfirmed
	f.payments[id] = p
	f.confirms++
	if o, ok := f.orders[f.orderCodeFor(p.OrderID)]; ok {
		o.Status = store.OrderStatusPaid
		f.orders[o.Code] = o
	}
	return nil
}

func (f *fakeLedger) orderCodeFor(orderID uuid.UUID) string {
	for code, o := range f.orders {
		if o.ID == orderID {
			return code
		}
	}
	return ""
}

func (f *fakeLedger) FailPayment(_ context.Context, id uuid.UUID, info []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.payments[id]
	if p.State == store.PaymentStateConfirmed {
		return nil
	}
	p.State = store.PaymentStateFailed
	if len(info) > 0 {
		p.Info = info
	}
	f.payments[id] = p
	return nil
}

func (f *fakeLedger) MarkPaymentPending(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.payments[id]
	if p.State != store.PaymentStateCreated {
		return nil
	}
	p.State = store.PaymentStatePending
	f.payments[id] = p
	return nil
}

func (f *fakeLedger) RecordTransaction(_ context.Context, txid string, orderID, paymentID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.transactions[txid]; ok {
		return store.ErrDuplicateTransaction
	}
	f.transactions[txid] = store.ReferencedTransaction{TxID: txid, OrderID: orderID, PaymentID: paymentID}
	return nil
}

func (f *fakeLedger) paymentsFor(orderID uuid.UUID) []store.Payment {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Payment
	for _, p := range f.payments {
		if p.OrderID == orderID {
			out = append(out, p)
		}
	}
	return out
}

func (f *fakeLedger) payment(t *testing.T, id uuid.UUID) store.Payment {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[id]
	if !ok {
		t.Fatalf("payment %s not found", id)
	}
	return p
}

func testSessions(t *testing.T) *session.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return &session.Store{R: client, TTL: time.Hour}
}
