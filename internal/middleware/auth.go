package middleware

import (
	"strings"

	"apigateway/internal/gwerrors"
	"apigateway/internal/pipeline"
)

// Auth checks the configured header against the configured API keys
// using a timing-safe, equal-length comparison, and exempts paths whose
// prefix is in the allowlist.
type Auth struct {
	HeaderName     string
	Keys           []string
	ExemptPrefixes []string
}

func NewAuth(headerName string, keys []string, exemptPrefixes []string) *Auth {
	return &Auth{HeaderName: headerName, Keys: keys, ExemptPrefixes: exemptPrefixes}
}

func (m *Auth) Name() string { return "auth" }

func (m *Auth) OnRequest(ctx *pipeline.Context) pipeline.Decision {
	for _, prefix := range m.ExemptPrefixes {
		if prefix != "" && strings.HasPrefix(ctx.Path, prefix) {
			return pipeline.Continue()
		}
	}

	received := ctx.Header.Get(m.HeaderName)

	matched := false
	for _, key := range m.Keys {
		if timingSafeEqual(received, key) {
			matched = true
		}
	}

	if !matched {
		return pipeline.ShortCircuit(errorResponse(ctx.RequestID, gwerrors.Unauthorized("invalid or missing api key")))
	}

	ctx.AuthKey = received
	return pipeline.Continue()
}

func (m *Auth) OnResponse(ctx *pipeline.Context, resp *pipeline.Response) *pipeline.Response {
	return resp
}

// timingSafeEqual compares received against expected in time proportional
// only to the length of the longer input, never branching on a byte
// mismatch and never short-circuiting on a length mismatch, so the
// running time for equal-length inputs depends only on length, not
// content.
func timingSafeEqual(received, expected string) bool {
	n := len(received)
	if len(expected) > n {
		n = len(expected)
	}

	var diff byte
	for i := 0; i < n; i++ {
		var rb, eb byte
		if i < len(received) {
			rb = received[i]
		}
		if i < len(expected) {
			eb = expected[i]
		}
		diff |= rb ^ eb
	}
	if len(received) != len(expected) {
		diff |= 1
	}
	return diff == 0
}
