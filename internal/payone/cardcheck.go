package payone

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

// cardCheckLanguages is the set of UI languages the hosted card-check script
// supports.
var cardCheckLanguages = map[string]bool{
	"de": true, "en": true, "es": true, "fr": true,
	"it": true, "nl": true, "pt": true,
}

// CardCheckLanguage normalizes a locale to a language the card-check script
// supports, falling back to English.
func CardCheckLanguage(locale string) string {
	lng := strings.ToLower(locale)
	if len(lng) > 2 {
		lng = lng[:2]
	}
	if cardCheckLanguages[lng] {
		return lng
	}
	return "en"
}

// CardCheck builds the checksum-signed payload for the client-side
// "creditcardcheck" tokenization request. This is separate from the
// authorization request: the browser submits it directly to the gateway and
// receives the pseudo card number in return.
//
// The checksum concatenates all values in lexicographic key order, appends
// the raw portal key and hashes the result with MD5, as the gateway
// specifies.
func CardCheck(creds Credentials, testMode bool) *Params {
	mode := "live"
	if testMode {
		mode = "test"
	}
	p := NewParams()
	p.Set("request", "creditcardcheck")
	p.Set("responsetype", "JSON")
	p.Set("aid", creds.SubAccountID)
	p.Set("mid", creds.MerchantID)
	p.Set("portalid", creds.PortalID)
	p.Set("mode", mode)
	p.Set("encoding", "UTF-8")
	p.Set("storecarddata", "yes")

	h := md5.New()
	for _, k := range p.SortedKeys() {
		v, _ := p.Get(k)
		_, _ = h.Write([]byte(v))
	}
	_, _ = h.Write([]byte(creds.Key))
	p.Set("hash", hex.EncodeToString(h.Sum(nil)))
	return p
}

func md5Hex(input string) string {
	sum := md5.Sum([]byte(input))
	return hex.EncodeToString(sum[:])
}
