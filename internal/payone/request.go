package payone

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-tickets/internal/currency"
)

// Gateway-documented maximum field lengths.
const (
	maxReferenceLen  = 20
	maxNarrativeLen  = 81
	maxNameLen       = 50
	maxCompanyLen    = 50
	maxSalutationLen = 10
	maxTitleLen      = 20
	maxStreetLen     = 50
	maxZipLen        = 10
	maxCityLen       = 50
)

// stateCountries lists the countries for which the gateway accepts a state
// field.
var stateCountries = map[string]bool{
	"US": true, "CA": true, "CN": true, "JP": true, "MX": true,
	"BR": true, "AR": true, "ID": true, "TH": true, "IN": true,
}

// InvoiceAddress is the customer invoice address as provided by the hosting
// platform. All fields are optional unless the method requires a full
// invoice address.
type InvoiceAddress struct {
	Company        string
	GivenName      string
	FamilyName     string
	Name           string // unstructured display name fallback
	Street         string
	ZipCode        string
	City           string
	State          string
	Country        string
	Salutation     string
	Title          string
	VATID          string
	VATIDValidated bool
}

// Request carries everything needed to build one gateway authorization
// attempt. It is transient; one is constructed per attempt.
type Request struct {
	OrderCode   string
	OrderSecret string
	EventSlug   string
	EventName   string
	Locale      string
	TestMode    bool

	// PaymentFullID correlates the attempt on the gateway side,
	// e.g. "ABC12-P-1".
	PaymentFullID string

	Amount   decimal.Decimal
	Currency string

	Address *InvoiceAddress

	// DefaultCountry is a best-effort guess from the event's locale/region
	// configuration, consulted when the invoice address has no country.
	DefaultCountry string

	// Absolute return URLs. Only included for clearing types that involve a
	// browser redirect (sb, wlt, cc).
	SuccessURL string
	ErrorURL   string
	BackURL    string
}

// buildAuthorization assembles the ordered gateway parameter set for an
// authorization request, applying the per-method field rules and truncation
// limits.
func buildAuthorization(req *Request, d Descriptor) (*Params, error) {
	p := NewParams()
	p.Set("request", "authorization")
	p.Set("reference", buildReference(req.EventSlug, req.OrderCode))
	p.Set("amount", strconv.FormatInt(currency.ToMinorUnits(req.Amount, req.Currency), 10))
	p.Set("currency", req.Currency)
	p.Set("param", req.EventSlug+"-"+req.PaymentFullID)
	p.Set("narrative_text", buildNarrative(req.OrderCode, req.EventName))
	p.Set("customer_is_present", "yes")
	p.Set("recurrence", "none")
	p.Set("clearingtype", string(d.ClearingType))

	if d.ClearingType == ClearingBankTransfer {
		p.Set("onlinebanktransfertype", d.OnlineBankTransferType)
		if len(d.OnlineBankTransferCountries) == 1 {
			p.Set("bankcountry", d.OnlineBankTransferCountries[0])
		} else {
			// Multi-country transfer types need a customer-facing country
			// selection step that does not exist yet.
			p.Set("bankcountry", "USERSELECTED")
		}
	}

	if d.ClearingType == ClearingWallet {
		p.Set("wallettype", d.WalletType)
	}

	switch d.ClearingType {
	case ClearingBankTransfer, ClearingWallet, ClearingCreditCard:
		p.Set("successurl", req.SuccessURL)
		p.Set("errorurl", req.ErrorURL)
		p.Set("backurl", req.BackURL)
	}

	addAddressFields(p, req, d)

	lang := req.Locale
	if len(lang) > 2 {
		lang = lang[:2]
	}
	p.Set("language", lang)
	return p, nil
}

func addAddressFields(p *Params, req *Request, d Descriptor) {
	ia := req.Address
	if ia == nil {
		ia = &InvoiceAddress{}
	}

	if ia.Company != "" {
		p.Set("company", truncate(ia.Company, maxCompanyLen))
	}

	switch {
	case ia.FamilyName != "":
		p.Set("lastname", truncate(ia.FamilyName, maxNameLen))
		p.Set("firstname", truncate(ia.GivenName, maxNameLen))
	case ia.Name != "":
		given, family := splitDisplayName(ia.Name)
		p.Set("lastname", truncate(family, maxNameLen))
		p.Set("firstname", truncate(given, maxNameLen))
	case ia.Company == "":
		p.Set("lastname", "Unknown")
	}

	country := ia.Country
	if country == "" {
		country = req.DefaultCountry
	}
	if country == "" {
		country = "DE"
	}
	p.Set("country", country)

	if ia.VATID != "" && ia.VATIDValidated {
		p.Set("vatid", ia.VATID)
	}

	if d.RequiresFullInvoiceAddress {
		if ia.Salutation != "" {
			p.Set("salutation", truncate(ia.Salutation, maxSalutationLen))
		}
		if ia.Title != "" {
			p.Set("title", truncate(ia.Title, maxTitleLen))
		}
		if ia.Street != "" {
			p.Set("street", truncate(ia.Street, maxStreetLen))
		}
		if ia.ZipCode != "" {
			p.Set("zip", truncate(ia.ZipCode, maxZipLen))
		}
		if ia.City != "" {
			p.Set("city", truncate(ia.City, maxCityLen))
		}
		if ia.State != "" && stateCountries[country] {
			p.Set("state", ia.State)
		}
	}
}

// buildReference combines the event slug and order code into the gateway
// reference. The slug is truncated from the right so the order code gets as
// much room as possible; the composed string is clamped again so oversized
// codes can never push the result past the 20-character limit.
func buildReference(slug, code string) string {
	limit := maxReferenceLen - 1 - len(code)
	if limit < 0 {
		limit = 0
	}
	return truncate(truncate(slug, limit)+"-"+code, maxReferenceLen)
}

// buildNarrative combines the order code and event name, truncating the
// event name first and the composed string as a whole so the total stays
// within the 81-character limit even for oversized codes.
func buildNarrative(code, eventName string) string {
	limit := maxNarrativeLen - 1 - len(code)
	if limit < 0 {
		limit = 0
	}
	return truncate(code+" "+truncate(eventName, limit), maxNarrativeLen)
}

// splitDisplayName splits a single display name on the last space: the last
// token is the family name, everything before it the given name.
func splitDisplayName(name string) (given, family string) {
	idx := strings.LastIndex(name, " ")
	if idx < 0 {
		return name, name
	}
	return name[:idx], name[idx+1:]
}

func truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
