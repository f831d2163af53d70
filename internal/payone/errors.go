package payone

import (
	"encoding/json"
	"fmt"
)

// ValidationError reports malformed or missing payment-method input. No
// gateway call has been made; the user may retry after correcting the input.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// ErrSessionNotReady signals that the checkout session lacks the tokenized
// card reference required before an authorization can be attempted.
var ErrSessionNotReady = &ValidationError{Msg: "checkout session is missing the card token"}

// CommunicationError reports a transport failure, a non-2xx gateway response
// or an unparseable body. Detail carries whatever diagnostic payload was
// available; it is logged and persisted but never shown to the customer.
type CommunicationError struct {
	Detail json.RawMessage
	Err    error
}

func (e *CommunicationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("payone: gateway communication failed: %v", e.Err)
	}
	return "payone: gateway communication failed"
}

func (e *CommunicationError) Unwrap() error { return e.Err }

// DeclinedError reports an explicit decline from the gateway.
type DeclinedError struct {
	CustomerMessage string
}

func (e *DeclinedError) Error() string {
	return fmt.Sprintf("payone: payment declined: %s", e.CustomerMessage)
}
