package payone

import (
	"net/url"
	"sort"
)

// Params is an ordered mapping of gateway field names to values. The gateway
// accepts standard form encoding, but insertion order is preserved so request
// payloads stay deterministic for logging and tests.
type Params struct {
	keys   []string
	values map[string]string
}

// NewParams returns an empty parameter set.
func NewParams() *Params {
	return &Params{values: map[string]string{}}
}

// Set stores a value under key, keeping the first-insertion order.
func (p *Params) Set(key, value string) {
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
}

// Get returns the value stored under key.
func (p *Params) Get(key string) (string, bool) {
	v, ok := p.values[key]
	return v, ok
}

// Has reports whether key is present.
func (p *Params) Has(key string) bool {
	_, ok := p.values[key]
	return ok
}

// Keys returns the field names in insertion order.
func (p *Params) Keys() []string {
	out := make([]string, len(p.keys))
	copy(out, p.keys)
	return out
}

// SortedKeys returns the field names in lexicographic order, as required by
// the card-check checksum scheme.
func (p *Params) SortedKeys() []string {
	out := p.Keys()
	sort.Strings(out)
	return out
}

// Merge copies all entries from other into p.
func (p *Params) Merge(other *Params) {
	if other == nil {
		return
	}
	for _, k := range other.keys {
		p.Set(k, other.values[k])
	}
}

// Values renders the parameters as url.Values for form encoding.
func (p *Params) Values() url.Values {
	form := url.Values{}
	for _, k := range p.keys {
		form.Set(k, p.values[k])
	}
	return form
}

// Map renders the parameters as a plain map, e.g. for JSON payloads.
func (p *Params) Map() map[string]string {
	out := make(map[string]string, len(p.keys))
	for k, v := range p.values {
		out[k] = v
	}
	return out
}

// Len returns the number of stored fields.
func (p *Params) Len() int {
	return len(p.keys)
}
