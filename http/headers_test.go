package http

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeaders(t *testing.T) {
	h := NewHeaders()
	h.Add("Accept", "text/html")
	h.Add("ACCEPT", "application/json")
	h.Set("X-Trace", "1")

	assert.Equal(t, "text/html, application/json", h.Get("accept"))
	assert.Equal(t, "1", h.Get("x-trace"))
	assert.Equal(t, []string{"accept", "x-trace"}, h.Keys())

	h.Set("x-TRACE", "2")
	assert.Equal(t, "2", h.Get("X-Trace"))

	_, ok := h.Lookup("missing")
	assert.False(t, ok)

	h.Del("Accept")
	assert.Equal(t, []string{"x-trace"}, h.Keys())
}

func TestValues(t *testing.T) {
	v := Values{}
	v.Add("id", "1")
	v.Add("id", "2")
	v.Add("empty", "")

	assert.Equal(t, "2", v.Get("id"))
	assert.Equal(t, []string{"1", "2"}, v.All("id"))
	assert.True(t, v.Has("empty"))
	assert.Equal(t, "", v.Get("nope"))
	assert.False(t, v.Has("nope"))
}
