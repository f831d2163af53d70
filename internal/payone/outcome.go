package payone

import (
	"fmt"
	"io"
)

// OutcomeKind enumerates the payment-lifecycle transitions a gateway
// response can drive.
type OutcomeKind string

const (
	// OutcomeApproved means the payment was captured immediately.
	OutcomeApproved OutcomeKind = "approved"
	// OutcomeRedirect means the customer must complete an action at the
	// gateway; the payment stays in its created state.
	OutcomeRedirect OutcomeKind = "redirect"
	// OutcomeDeclined means the gateway rejected the payment.
	OutcomeDeclined OutcomeKind = "declined"
	// OutcomePending means the gateway will confirm asynchronously.
	OutcomePending OutcomeKind = "pending"
)

// Outcome is the interpreted result of one request/response cycle.
type Outcome struct {
	Kind OutcomeKind
	// RedirectURL is set for OutcomeRedirect.
	RedirectURL string
	// Reason is the user-facing decline message for OutcomeDeclined.
	Reason string
}

// Interpret maps a gateway response status to a payment outcome. Every
// recognized status yields exactly one outcome; anything else is a
// communication error, never a silent success.
func Interpret(resp *Response) (Outcome, error) {
	switch resp.Status {
	case "APPROVED":
		return Outcome{Kind: OutcomeApproved}, nil
	case "REDIRECT":
		return Outcome{Kind: OutcomeRedirect, RedirectURL: resp.RedirectURL}, nil
	case "ERROR":
		return Outcome{Kind: OutcomeDeclined, Reason: resp.CustomerMessage()}, nil
	case "PENDING":
		return Outcome{Kind: OutcomePending}, nil
	default:
		return Outcome{}, &CommunicationError{
			Detail: diagnosticJSON(resp.Raw()),
			Err:    fmt.Errorf("unexpected gateway status %q", resp.Status),
		}
	}
}

type httpStatusError int

func (e httpStatusError) Error() string {
	return fmt.Sprintf("gateway returned HTTP %d", int(e))
}

func errHTTPStatus(code int) error { return httpStatusError(code) }

func readAll(r io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, 1<<20))
}
