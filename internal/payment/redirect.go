package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"github.com/noah-isme/backend-tickets/internal/common"
)

const redirectSalt = "safe-redirect"

// RedirectSigner signs outbound gateway URLs so the same-origin bounce page
// only ever navigates to URLs this service produced. Checkout often runs in
// an iframe; cross-origin frame navigation is blocked by browsers, so the
// bounce page escapes the frame by assigning the top-level location instead.
type RedirectSigner struct {
	key     []byte
	baseURL string
}

// NewRedirectSigner derives a signing key from the configured secret under a
// fixed salt and anchors signed URLs at baseURL.
func NewRedirectSigner(secret, baseURL string) *RedirectSigner {
	mac := hmac.New(sha256.New, []byte(redirectSalt+"signer"))
	mac.Write([]byte(secret))
	return &RedirectSigner{
		key:     mac.Sum(nil),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (s *RedirectSigner) signature(value string) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(value))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// Sign returns value with its signature appended as "value:sig".
func (s *RedirectSigner) Sign(value string) string {
	return value + ":" + s.signature(value)
}

// Unsign validates a signed value and returns the original. The signature is
// compared in constant time.
func (s *RedirectSigner) Unsign(signed string) (string, bool) {
	idx := strings.LastIndexByte(signed, ':')
	if idx < 0 {
		return "", false
	}
	value, sig := signed[:idx], signed[idx+1:]
	want := s.signature(value)
	if subtle.ConstantTimeCompare([]byte(sig), []byte(want)) != 1 {
		return "", false
	}
	return value, true
}

// BounceURL wraps target in a signed same-origin redirect URL.
func (s *RedirectSigner) BounceURL(target string) string {
	return s.baseURL + "/redirect?url=" + url.QueryEscape(s.Sign(target))
}

var bounceTmpl = template.Must(template.New("bounce").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Redirecting…</title></head>
<body>
<p>You are being redirected to complete your payment.</p>
<script>window.top.location = {{.URL}};</script>
<noscript><a href="{{.URL}}" target="_top">Continue</a></noscript>
</body>
</html>
`))

// RedirectHandler serves the bounce page for signed URLs.
type RedirectHandler struct {
	Signer *RedirectSigner
}

func (h RedirectHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Signer == nil {
		common.JSONError(w, http.StatusInternalServerError, "REDIRECT_NOT_CONFIGURED", "redirect unavailable", nil)
		return
	}
	target, ok := h.Signer.Unsign(r.URL.Query().Get("url"))
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "INVALID_SIGNATURE", "invalid parameter", nil)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = bounceTmpl.Execute(w, struct{ URL string }{URL: target})
}
