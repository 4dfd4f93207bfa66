package request

import (
	nethttp "net/http"
	"slices"
	"strings"
)

// Header is a single name/value pair
type Header struct {
	Name  string
	Value string
}

// Headers is an ordered header multimap. Names compare case-insensitively
// and insertion order is preserved across Add, Set and Del.
type Headers struct {
	list []Header
}

// NewHeaders creates a header set holding a copy of hs
func NewHeaders(hs ...Header) *Headers {
	h := &Headers{}
	h.Replace(hs)
	return h
}

// Add appends a header, keeping any existing values for name
func (h *Headers) Add(name, value string) {
	h.list = append(h.list, Header{Name: name, Value: value})
}

// Set replaces every value of name with value. The header keeps the
// position of its first occurrence, or is appended when absent.
func (h *Headers) Set(name, value string) {
	idx := -1
	out := h.list[:0]
	for _, hdr := range h.list {
		if strings.EqualFold(hdr.Name, name) {
			if idx >= 0 {
				continue
			}
			idx = len(out)
			hdr = Header{Name: name, Value: value}
		}
		out = append(out, hdr)
	}
	h.list = out
	if idx < 0 {
		h.Add(name, value)
	}
}

// Get returns the first value for name or "" when absent
func (h *Headers) Get(name string) string {
	for _, hdr := range h.list {
		if strings.EqualFold(hdr.Name, name) {
			return hdr.Value
		}
	}
	return ""
}

// Values returns all values of name in order
func (h *Headers) Values(name string) []string {
	var values []string
	for _, hdr := range h.list {
		if strings.EqualFold(hdr.Name, name) {
			values = append(values, hdr.Value)
		}
	}
	return values
}

// Del removes every header called name
func (h *Headers) Del(name string) {
	out := h.list[:0]
	for _, hdr := range h.list {
		if !strings.EqualFold(hdr.Name, name) {
			out = append(out, hdr)
		}
	}
	h.list = out
}

// Len returns the number of header lines
func (h *Headers) Len() int {
	return len(h.list)
}

// All returns a copy of the header lines
func (h *Headers) All() []Header {
	if len(h.list) == 0 {
		return nil
	}
	out := make([]Header, len(h.list))
	copy(out, h.list)
	return out
}

// Replace discards the current headers and installs a copy of hs
func (h *Headers) Replace(hs []Header) {
	h.list = make([]Header, len(hs))
	copy(h.list, hs)
}

// Clone returns an independent copy
func (h *Headers) Clone() *Headers {
	return NewHeaders(h.list...)
}

// ToHTTP converts the header lines into a net/http header map.
func (h *Headers) ToHTTP() nethttp.Header {
	out := make(nethttp.Header, len(h.list))
	for _, hdr := range h.list {
		out.Add(hdr.Name, hdr.Value)
	}
	return out
}

// headersFromHTTP flattens an http.Header. Map iteration order is not stable,
// so names are emitted in sorted canonical order.
func headersFromHTTP(src nethttp.Header) []Header {
	if len(src) == 0 {
		return nil
	}
	names := make([]string, 0, len(src))
	for name := range src {
		names = append(names, name)
	}
	slices.Sort(names)

	var out []Header
	for _, name := range names {
		for _, v := range src[name] {
			out = append(out, Header{Name: name, Value: v})
		}
	}
	return out
}
