package http

import (
	"slices"

	"golang.org/x/net/http/httpguts"
)

// Headers maps field names to values. Names compare case-insensitively,
// so each name is present at most once. The zero value is ready to use.
type Headers struct{ underlying map[string]string }

func NewHeaders(initial map[string]string) Headers {
	h := Headers{underlying: make(map[string]string, len(initial))}
	for k, v := range initial {
		h.Set(k, v)
	}
	return h
}

// HeadersFrom builds headers out of decoded field lines.
// Repeated names are combined into one comma separated value.
// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-5.3
func HeadersFrom(fields []Field) Headers {
	h := Headers{underlying: make(map[string]string, len(fields))}
	for _, f := range fields {
		key := canonical(string(f.Name))
		if v, ok := h.underlying[key]; ok {
			h.underlying[key] = v + ", " + string(f.Value)
			continue
		}
		h.underlying[key] = string(f.Value)
	}
	return h
}

func (h *Headers) Get(key string) (value string, ok bool) {
	value, ok = h.underlying[canonical(key)]
	return
}

func (h *Headers) Set(key, value string) {
	if h.underlying == nil {
		h.underlying = make(map[string]string)
	}
	h.underlying[canonical(key)] = value
}

func (h *Headers) Del(key string) {
	delete(h.underlying, canonical(key))
}

func (h *Headers) Len() int { return len(h.underlying) }

// All returns a copy of the headers keyed by canonical name.
func (h *Headers) All() map[string]string {
	clone := make(map[string]string, len(h.underlying))
	for k, v := range h.underlying {
		clone[k] = v
	}
	return clone
}

// Fields returns field lines sorted by name.
func (h *Headers) Fields() []Field {
	keys := make([]string, 0, len(h.underlying))
	for k := range h.underlying {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	fields := make([]Field, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, Field{Name: []byte(k), Value: []byte(h.underlying[k])})
	}
	return fields
}

func (h Headers) clone() Headers {
	return Headers{underlying: h.All()}
}

func validFieldName(s string) bool  { return httpguts.ValidHeaderFieldName(s) }
func validFieldValue(s string) bool { return httpguts.ValidHeaderFieldValue(s) }

func canonical(s string) string {
	if validFieldName(s) {
		return toCanonicalFieldName(s)
	}
	return s
}

// This only works for valid token.
func toCanonicalFieldName(s string) string {
	const capitalDiff = 'a' - 'A'
	b := []byte(s)
	upper := true
	for i, c := range b {
		if upper && 'a' <= c && c <= 'z' {
			c -= capitalDiff
		} else if !upper && 'A' <= c && c <= 'Z' {
			c += capitalDiff
		}
		b[i] = c
		upper = c == '-'
	}
	return string(b)
}
