package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus is the externally-owned order lifecycle state.
type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "pending"
	OrderStatusPaid     OrderStatus = "paid"
	OrderStatusExpired  OrderStatus = "expired"
	OrderStatusCanceled OrderStatus = "canceled"
)

// PaymentState is the lifecycle state of a single payment attempt.
// Transitions: created -> {confirmed, pending, failed};
// pending -> {confirmed, failed}.
type PaymentState string

const (
	PaymentStateCreated   PaymentState = "created"
	PaymentStatePending   PaymentState = "pending"
	PaymentStateConfirmed PaymentState = "confirmed"
	PaymentStateFailed    PaymentState = "failed"
)

// InvoiceAddress is the customer invoice address captured by the platform's
// checkout, stored denormalized on the order.
type InvoiceAddress struct {
	Company        string `json:"company,omitempty"`
	GivenName      string `json:"givenName,omitempty"`
	FamilyName     string `json:"familyName,omitempty"`
	Name           string `json:"name,omitempty"`
	Street         string `json:"street,omitempty"`
	ZipCode        string `json:"zipcode,omitempty"`
	City           string `json:"city,omitempty"`
	State          string `json:"state,omitempty"`
	Country        string `json:"country,omitempty"`
	Salutation     string `json:"salutation,omitempty"`
	Title          string `json:"title,omitempty"`
	VATID          string `json:"vatId,omitempty"`
	VATIDValidated bool   `json:"vatIdValidated,omitempty"`
}

// Order is the platform-owned order record. This module only reads it and
// requests payment-driven status transitions.
type Order struct {
	ID        uuid.UUID
	Code      string
	EventSlug string
	EventName string
	// Secret authenticates customer-facing order URLs; its keyed hash is
	// embedded in gateway return URLs.
	Secret   string
	Status   OrderStatus
	Total    decimal.Decimal
	Currency string
	Locale   string
	// Country is the event's best-effort default invoice country.
	Country  string
	TestMode bool
	Invoice  *InvoiceAddress
}

// Payment is one payment attempt on an order.
type Payment struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	Seq       int32
	Provider  string
	State     PaymentState
	Amount    decimal.Decimal
	Currency  string
	Info      []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FullID renders the human-readable payment identifier used in gateway
// correlation fields.
func (p Payment) FullID(orderCode string) string {
	return fmt.Sprintf("%s-P-%d", orderCode, p.Seq)
}

// ReferencedTransaction maps a gateway transaction id back to the owning
// order and payment. Append-only; one row per observed txid.
type ReferencedTransaction struct {
	TxID      string
	OrderID   uuid.UUID
	PaymentID uuid.UUID
	CreatedAt time.Time
}
