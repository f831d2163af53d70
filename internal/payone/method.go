package payone

// ClearingType selects the payment rail on the gateway side and governs which
// optional request fields apply.
type ClearingType string

const (
	ClearingCreditCard   ClearingType = "cc"
	ClearingBankTransfer ClearingType = "sb"
	ClearingDirectDebit  ClearingType = "elv"
	ClearingWallet       ClearingType = "wlt"
)

// Supported payment method identifiers.
const (
	MethodCreditCard = "creditcard"
	MethodGiropay    = "giropay"
	MethodSEPADebit  = "sepadebit"
	MethodPayPal     = "paypal"
)

// Descriptor holds the immutable per-method configuration. One exists per
// supported method, defined at startup.
type Descriptor struct {
	ID                          string
	ClearingType                ClearingType
	OnlineBankTransferType      string
	OnlineBankTransferCountries []string
	WalletType                  string
	RequiresFullInvoiceAddress  bool
	SupportsRefund              bool
}

// SessionValues carries the transient checkout-session state a method may
// need when building its authorization request.
type SessionValues struct {
	// CardToken is the pseudo card number produced by the client-side
	// tokenization step.
	CardToken  string
	Cardholder string
}

// Method is the closed set of payment-method variants. Each variant
// parameterizes the request builder with its descriptor and may override
// request construction and session validation.
type Method interface {
	Descriptor() Descriptor
	// SessionReady reports whether the checkout session holds everything the
	// method needs for an authorization attempt.
	SessionReady(sess SessionValues) bool
	// BuildAuthorization assembles the gateway parameter set for one attempt.
	BuildAuthorization(req *Request, sess SessionValues) (*Params, error)
}

type baseMethod struct {
	d Descriptor
}

func (m baseMethod) Descriptor() Descriptor { return m.d }

func (m baseMethod) SessionReady(SessionValues) bool { return true }

func (m baseMethod) BuildAuthorization(req *Request, _ SessionValues) (*Params, error) {
	return buildAuthorization(req, m.d)
}

type creditCardMethod struct {
	baseMethod
}

func (m creditCardMethod) SessionReady(sess SessionValues) bool {
	return sess.CardToken != ""
}

func (m creditCardMethod) BuildAuthorization(req *Request, sess SessionValues) (*Params, error) {
	if sess.CardToken == "" {
		return nil, ErrSessionNotReady
	}
	p, err := buildAuthorization(req, m.d)
	if err != nil {
		return nil, err
	}
	p.Set("pseudocardpan", sess.CardToken)
	p.Set("cardholder", sess.Cardholder)
	return p, nil
}

// Registry holds the fixed set of payment-method variants. Construction is
// the single composition root for method registration; there is no dynamic
// plugin discovery.
type Registry struct {
	methods map[string]Method
	order   []string
}

// NewRegistry enumerates the supported methods, keeping those for which
// enabled returns true. A nil predicate enables everything.
func NewRegistry(enabled func(id string) bool) *Registry {
	all := []Method{
		creditCardMethod{baseMethod{Descriptor{
			ID:             MethodCreditCard,
			ClearingType:   ClearingCreditCard,
			SupportsRefund: true,
		}}},
		baseMethod{Descriptor{
			ID:                          MethodGiropay,
			ClearingType:                ClearingBankTransfer,
			OnlineBankTransferType:      "GPY",
			OnlineBankTransferCountries: []string{"DE"},
			SupportsRefund:              true,
		}},
		baseMethod{Descriptor{
			ID:                         MethodSEPADebit,
			ClearingType:               ClearingDirectDebit,
			RequiresFullInvoiceAddress: true,
			SupportsRefund:             true,
		}},
		baseMethod{Descriptor{
			ID:             MethodPayPal,
			ClearingType:   ClearingWallet,
			WalletType:     "PPE",
			SupportsRefund: true,
		}},
	}
	r := &Registry{methods: make(map[string]Method, len(all))}
	for _, m := range all {
		id := m.Descriptor().ID
		if enabled != nil && !enabled(id) {
			continue
		}
		r.methods[id] = m
		r.order = append(r.order, id)
	}
	return r
}

// Method looks up a variant by identifier.
func (r *Registry) Method(id string) (Method, bool) {
	m, ok := r.methods[id]
	return m, ok
}

// IDs returns the enabled method identifiers in registration order.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
