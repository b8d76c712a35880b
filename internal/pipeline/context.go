// Package pipeline implements the gateway's middleware pipeline: a fixed
// ordered sequence of stages that carries a request through admission
// control and, at the terminal stage, forwarding — with short-circuit
// semantics so a rejecting stage still lets every already-entered stage
// run its response-side hook (e.g. security headers on a 401).
package pipeline

import (
	"net/http"
	"time"
)

// Header is a case-insensitive multi-value header map, distinct from
// net/http.Header only in that it is the type the engine's middleware
// stages (auth, validation, rate limiting) operate on so they never need
// to import net/http directly. The values under one name keep their
// insertion order; the order of distinct header names is not kept, since
// Header is a plain map.
type Header map[string][]string

func NewHeader() Header { return make(Header) }

func headerKey(name string) string { return http.CanonicalHeaderKey(name) }

func (h Header) Get(name string) string {
	vs := h[headerKey(name)]
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}

func (h Header) Values(name string) []string { return h[headerKey(name)] }

func (h Header) Set(name, value string) { h[headerKey(name)] = []string{value} }

func (h Header) Add(name, value string) {
	k := headerKey(name)
	h[k] = append(h[k], value)
}

func (h Header) Del(name string) { delete(h, headerKey(name)) }

func (h Header) Len() int { return len(h) }

func (h Header) Clone() Header {
	out := make(Header, len(h))
	for k, v := range h {
		cp := make([]string, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}

// Attempt records one forwarding attempt against an upstream.
type Attempt struct {
	Upstream string
	Outcome  string // "ok", "error", "rejected"
}

// Context is the mutable, per-request record threaded through the
// pipeline. It is created once at ingress by the orchestrator, mutated
// only by the middleware currently executing, and discarded after the
// response is written.
type Context struct {
	Method string
	Path   string
	Query  string
	Header Header
	Body   []byte

	RemoteAddr string

	RequestID string
	StartedAt time.Time

	AuthKey       string
	RouteMatched  string
	RateLimitKey  string
	RateLimitInfo string // "allow", "deny", "" (not evaluated), "error_open", "error_closed"

	Attempts []Attempt

	SelectedUpstream string
}

// Response is the normalized outbound response the pipeline produces.
type Response struct {
	Status int
	Header Header
	Body   []byte
}

func NewResponse(status int) *Response {
	return &Response{Status: status, Header: NewHeader()}
}
