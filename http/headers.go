package http

import (
	"sort"
	"strings"
)

// Headers maps lower-cased header names to values. Repeated names are
// concatenated with ", " in arrival order.
type Headers map[string]string

func NewHeaders() Headers {
	return Headers{}
}

// Add appends value to any existing value for key.
func (h Headers) Add(key, value string) {
	key = toLower(key)
	if v, ok := h[key]; ok {
		h[key] = v + ", " + value
		return
	}
	h[key] = value
}

// Set replaces any existing value for key.
func (h Headers) Set(key, value string) {
	h[toLower(key)] = value
}

func (h Headers) Get(key string) string {
	return h[toLower(key)]
}

func (h Headers) Lookup(key string) (string, bool) {
	v, ok := h[toLower(key)]
	return v, ok
}

func (h Headers) Del(key string) {
	delete(h, toLower(key))
}

// Keys returns the header names in sorted order.
func (h Headers) Keys() []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Values holds query parameters. Every value of a repeated key is kept in
// arrival order; Get returns the last one.
type Values map[string][]string

func (v Values) Add(key, value string) {
	v[key] = append(v[key], value)
}

// Get returns the last value for key, or "" if there is none.
func (v Values) Get(key string) string {
	vs := v[key]
	if len(vs) == 0 {
		return ""
	}
	return vs[len(vs)-1]
}

func (v Values) Has(key string) bool {
	_, ok := v[key]
	return ok
}

// All returns every value for key in arrival order.
func (v Values) All(key string) []string {
	return v[key]
}

func toLower(s string) string {
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= 'A' && c <= 'Z' {
			return strings.ToLower(s)
		}
	}
	return s
}
