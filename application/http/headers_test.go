package http

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeadersCaseInsensitive(t *testing.T) {
	var h Headers
	h.Set("content-length", "10")
	h.Set("CONTENT-LENGTH", "20")

	v, ok := h.Get("Content-Length")
	assert.True(t, ok)
	assert.Equal(t, "20", v)
	assert.Equal(t, 1, h.Len())

	h.Del("content-LENGTH")
	_, ok = h.Get("Content-Length")
	assert.False(t, ok)
}

func TestHeadersFrom(t *testing.T) {
	h := HeadersFrom([]Field{
		{[]byte("accept"), []byte("text/html")},
		{[]byte("Accept"), []byte("application/json")},
		{[]byte("x-mender-id"), []byte("1")},
	})

	assert.Equal(t, map[string]string{
		"Accept":      "text/html, application/json",
		"X-Mender-Id": "1",
	}, h.All())
}

func TestToCanonicalFieldName(t *testing.T) {
	testcases := []struct {
		input    string
		expected string
	}{
		{"content-type", "Content-Type"},
		{"CONTENT-TYPE", "Content-Type"},
		{"x-men-der", "X-Men-Der"},
		{"etag", "Etag"},
	}

	for _, tc := range testcases {
		t.Run(tc.input, func(t *testing.T) {
			assert.Equal(t, tc.expected, toCanonicalFieldName(tc.input))
		})
	}
}

func TestHeadersFieldsSorted(t *testing.T) {
	h := NewHeaders(map[string]string{"b": "2", "a": "1", "c": "3"})

	var names []string
	for _, f := range h.Fields() {
		names = append(names, string(f.Name))
	}
	assert.Equal(t, []string{"A", "B", "C"}, names)
}
