package token

import (
	"net/http"
	"strings"
)

// Request is the read-only view of an incoming request the strategy
// extracts credentials from.
type Request struct {
	// Header maps lower-cased header names to values.
	Header map[string]string

	// Body is the decoded request body: nested map[string]any / []any
	// values with string, number, or bool leaves. May be nil.
	Body any

	// Query is the decoded query string in the same shape as Body.
	// A flat map[string]string or url.Values is accepted too. May be nil.
	Query any

	// HTTP is the originating request, if any. Request-aware verifiers may
	// use it for remote address or TLS checks.
	HTTP *http.Request
}

// NewRequest builds a Request from a header map with arbitrary key case.
func NewRequest(header map[string]string, body, query any) *Request {
	h := make(map[string]string, len(header))
	for k, v := range header {
		h[strings.ToLower(k)] = v
	}
	return &Request{Header: h, Body: body, Query: query}
}

// header returns the value stored under a lower-cased name. Keys that were
// not normalized by the caller are matched case-insensitively.
func (r *Request) header(name string) string {
	if r == nil || r.Header == nil {
		return ""
	}
	if v, ok := r.Header[name]; ok {
		return v
	}
	for k, v := range r.Header {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
