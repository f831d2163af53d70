package payment

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignUnsignRoundTrip(t *testing.T) {
	s := NewRedirectSigner("key-1", "https://tickets.example")

	signed := s.Sign("https://bank.example/x?a=b")
	value, ok := s.Unsign(signed)
	require.True(t, ok)
	assert.Equal(t, "https://bank.example/x?a=b", value)
}

func TestUnsignRejectsTampering(t *testing.T) {
	s := NewRedirectSigner("key-1", "https://tickets.example")
	signed := s.Sign("https://bank.example/x")

	_, ok := s.Unsign(strings.Replace(signed, "bank", "evil", 1))
	assert.False(t, ok)

	_, ok = s.Unsign("https://bank.example/x")
	assert.False(t, ok, "unsigned value must be rejected")

	other := NewRedirectSigner("key-2", "https://tickets.example")
	_, ok = other.Unsign(signed)
	assert.False(t, ok, "signature from a different key must be rejected")
}

func TestBounceURLVerifiable(t *testing.T) {
	s := NewRedirectSigner("key-1", "https://tickets.example")

	bounce := s.BounceURL("https://bank.example/x?session=1:2")
	u, err := url.Parse(bounce)
	require.NoError(t, err)
	assert.Equal(t, "/redirect", u.Path)

	target, ok := s.Unsign(u.Query().Get("url"))
	require.True(t, ok)
	assert.Equal(t, "https://bank.example/x?session=1:2", target)
}

func TestRedirectHandlerRendersBouncePage(t *testing.T) {
	s := NewRedirectSigner("key-1", "https://tickets.example")
	h := RedirectHandler{Signer: s}

	req := httptest.NewRequest(http.MethodGet, s.BounceURL("https://bank.example/x"), nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rr.Body.String(), "window.top.location")
	assert.Contains(t, rr.Body.String(), "bank.example")
}

func TestRedirectHandlerRejectsBadSignature(t *testing.T) {
	h := RedirectHandler{Signer: NewRedirectSigner("key-1", "https://tickets.example")}

	req := httptest.NewRequest(http.MethodGet, "/redirect?url="+url.QueryEscape("https://evil.example/:forged"), nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
