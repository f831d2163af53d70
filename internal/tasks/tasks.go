// Package tasks defines the background jobs exchanged between the webhook
// intake and the worker process.
package tasks

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// TypeTransactionStatus processes one gateway TransactionStatus
// notification.
const TypeTransactionStatus = "payone:transaction_status"

// TransactionStatusPayload carries a verified webhook notification to the
// worker. Params holds the full form payload for the audit trail.
type TransactionStatusPayload struct {
	PaymentID uuid.UUID         `json:"paymentId"`
	OrderID   uuid.UUID         `json:"orderId"`
	TxID      string            `json:"txid"`
	TxAction  string            `json:"txaction"`
	Params    map[string]string `json:"params"`
}

// NewTransactionStatusTask builds the asynq task for a notification.
func NewTransactionStatusTask(p TransactionStatusPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeTransactionStatus, payload, asynq.MaxRetry(5)), nil
}
