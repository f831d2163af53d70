// Package store persists payments and their relationship to platform-owned
// orders. State transitions are expressed as conditional updates so duplicate
// transition requests (e.g. concurrent return and webhook delivery) stay
// idempotent at the database level.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when an order, payment or transaction lookup
// matches nothing.
var ErrNotFound = errors.New("store: not found")

// ErrDuplicateTransaction is returned when a gateway transaction id has
// already been recorded.
var ErrDuplicateTransaction = errors.New("store: transaction already recorded")

// Store wraps a pgx pool with the queries this module needs.
type Store struct {
	Pool *pgxpool.Pool
}

// New constructs a Store.
func New(pool *pgxpool.Pool) *Store {
	return &Store{Pool: pool}
}

const orderColumns = `id, code, event_slug, event_name, secret, status, total::text, currency, locale, country, test_mode, invoice_address`

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o       Order
		total   string
		invoice []byte
	)
	err := row.Scan(&o.ID, &o.Code, &o.EventSlug, &o.EventName, &o.Secret, &o.Status, &total, &o.Currency, &o.Locale, &o.Country, &o.TestMode, &invoice)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, err
	}
	if len(invoice) > 0 {
		addr := InvoiceAddress{}
		if err := json.Unmarshal(invoice, &addr); err != nil {
			return Order{}, fmt.Errorf("decode invoice address: %w", err)
		}
		o.Invoice = &addr
	}
	o.Total, err = decimal.NewFromString(total)
	return o, err
}

// GetOrderByCode loads an order by its public code.
func (s *Store) GetOrderByCode(ctx context.Context, code string) (Order, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE code = $1`, code)
	return scanOrder(row)
}

// GetOrder loads an order by id.
func (s *Store) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	return scanOrder(row)
}

const paymentColumns = `id, order_id, seq, provider, state, amount::text, currency, info, created_at, updated_at`

func scanPayment(row pgx.Row) (Payment, error) {
	var (
		p      Payment
		amount string
	)
	err := row.Scan(&p.ID, &p.OrderID, &p.Seq, &p.Provider, &p.State, &amount, &p.Currency, &p.Info, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payment{}, ErrNotFound
		}
		return Payment{}, err
	}
	p.Amount, err = decimal.NewFromString(amount)
	return p, err
}

// GetPayment loads a payment by id.
func (s *Store) GetPayment(ctx context.Context, id uuid.UUID) (Payment, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
	return scanPayment(row)
}

// GetPaymentForOrder loads a gateway payment belonging to the given order.
func (s *Store) GetPaymentForOrder(ctx context.Context, orderID, paymentID uuid.UUID) (Payment, error) {
	row := s.Pool.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1 AND order_id = $2 AND provider LIKE 'payone%'`,
		paymentID, orderID)
	return scanPayment(row)
}

// CreatePayment opens a new payment attempt for the order with the next
// per-order sequence number.
func (s *Store) CreatePayment(ctx context.Context, orderID uuid.UUID, provider string, amount decimal.Decimal, currencyCode string) (Payment, error) {
	row := s.Pool.QueryRow(ctx, `
		INSERT INTO payments (id, order_id, seq, provider, state, amount, currency)
		VALUES ($1, $2, (SELECT COALESCE(MAX(seq), 0) + 1 FROM payments WHERE order_id = $2), $3, 'created', $4::numeric, $5)
		RETURNING `+paymentColumns,
		uuid.New(), orderID, provider, amount.String(), currencyCode)
	return scanPayment(row)
}

// SetPaymentInfo persists the raw gateway response verbatim on the payment
// record, before any interpretation happens.
func (s *Store) SetPaymentInfo(ctx context.Context, id uuid.UUID, info []byte) error {
	_, err := s.Pool.Exec(ctx,
		`UPDATE payments SET info = $2, updated_at = now() WHERE id = $1`, id, info)
	return err
}

// ConfirmPayment transitions a payment to confirmed and marks the owning
// order as paid. Confirming an already-confirmed payment is a no-op.
func (s *Store) ConfirmPayment(ctx context.Context, id uuid.UUID) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE payments SET state = 'confirmed', updated_at = now()
			WHERE id = $1 AND state IN ('created', 'pending')`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			var state PaymentState
			if err := tx.QueryRow(ctx, `SELECT state FROM payments WHERE id = $1`, id).Scan(&state); err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return ErrNotFound
				}
				return err
			}
			if state == PaymentStateConfirmed {
				return nil // duplicate confirmation request
			}
			return errors.New("store: payment not confirmable in state " + string(state))
		}
		if _, err := tx.Exec(ctx, `
			UPDATE orders SET status = 'paid'
			WHERE id = (SELECT order_id FROM payments WHERE id = $1) AND status <> 'paid'`, id); err != nil {
			return err
		}
		return insertPaymentEvent(ctx, tx, id, PaymentStateConfirmed, nil)
	})
}

// FailPayment transitions a payment to failed, optionally attaching
// diagnostic info. Never downgrades a confirmed payment.
func (s *Store) FailPayment(ctx context.Context, id uuid.UUID, info []byte) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		var (
			tag pgconn.CommandTag
			err error
		)
		if info != nil {
			tag, err = tx.Exec(ctx, `
				UPDATE payments SET state = 'failed', info = $2, updated_at = now()
				WHERE id = $1 AND state IN ('created', 'pending')`, id, info)
		} else {
			tag, err = tx.Exec(ctx, `
				UPDATE payments SET state = 'failed', updated_at = now()
				WHERE id = $1 AND state IN ('created', 'pending')`, id)
		}
		if err != nil || tag.RowsAffected() == 0 {
			return err
		}
		return insertPaymentEvent(ctx, tx, id, PaymentStateFailed, info)
	})
}

// MarkPaymentPending transitions a created payment to pending, awaiting
// asynchronous confirmation.
func (s *Store) MarkPaymentPending(ctx context.Context, id uuid.UUID) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE payments SET state = 'pending', updated_at = now()
			WHERE id = $1 AND state = 'created'`, id)
		if err != nil || tag.RowsAffected() == 0 {
			return err
		}
		return insertPaymentEvent(ctx, tx, id, PaymentStatePending, nil)
	})
}

// RecordTransaction appends a txid -> (order, payment) mapping used to
// correlate asynchronous gateway notifications. Duplicate transaction ids
// return ErrDuplicateTransaction.
func (s *Store) RecordTransaction(ctx context.Context, txid string, orderID, paymentID uuid.UUID) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO payone_referenced_transactions (txid, order_id, payment_id)
		VALUES ($1, $2, $3)`, txid, orderID, paymentID)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateTransaction
	}
	return err
}

// GetTransaction resolves a previously recorded gateway transaction id.
func (s *Store) GetTransaction(ctx context.Context, txid string) (ReferencedTransaction, error) {
	var t ReferencedTransaction
	err := s.Pool.QueryRow(ctx, `
		SELECT txid, order_id, payment_id, created_at
		FROM payone_referenced_transactions WHERE txid = $1`, txid).
		Scan(&t.TxID, &t.OrderID, &t.PaymentID, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ReferencedTransaction{}, ErrNotFound
	}
	return t, err
}

func insertPaymentEvent(ctx context.Context, tx pgx.Tx, paymentID uuid.UUID, state PaymentState, payload []byte) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO payment_events (payment_id, state, payload)
		VALUES ($1, $2, $3)`, paymentID, state, payload)
	return err
}

func (s *Store) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
