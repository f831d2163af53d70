package payone_test

import (
	"crypto/md5"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-tickets/internal/payone"
)

func TestCardCheckChecksum(t *testing.T) {
	p := payone.CardCheck(testCreds, true)

	hash, ok := p.Get("hash")
	require.True(t, ok)

	// recompute: values in lexicographic key order, then the raw portal key
	h := md5.New()
	for _, k := range p.SortedKeys() {
		if k == "hash" {
			continue
		}
		v, _ := p.Get(k)
		h.Write([]byte(v))
	}
	h.Write([]byte(testCreds.Key))
	assert.Equal(t, hex.EncodeToString(h.Sum(nil)), hash)
}

func TestCardCheckFields(t *testing.T) {
	p := payone.CardCheck(testCreds, false)
	expect := map[string]string{
		"request":       "creditcardcheck",
		"responsetype":  "JSON",
		"aid":           "54321",
		"mid":           "12345",
		"portalid":      "2030000",
		"mode":          "live",
		"encoding":      "UTF-8",
		"storecarddata": "yes",
	}
	for k, want := range expect {
		got, ok := p.Get(k)
		require.True(t, ok, "missing %s", k)
		assert.Equal(t, want, got)
	}
	// the raw portal key never appears in the payload
	for _, k := range p.Keys() {
		v, _ := p.Get(k)
		assert.NotEqual(t, testCreds.Key, v)
	}
}

func TestCardCheckLanguage(t *testing.T) {
	assert.Equal(t, "de", payone.CardCheckLanguage("de-informal"))
	assert.Equal(t, "pt", payone.CardCheckLanguage("PT"))
	assert.Equal(t, "en", payone.CardCheckLanguage("sv"))
	assert.Equal(t, "en", payone.CardCheckLanguage(""))
}
