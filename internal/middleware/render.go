// Package middleware holds the gateway's pipeline stages: request-ID
// assignment, logging, authentication, validation, rate limiting, and
// security headers.
package middleware

import (
	"encoding/json"
	"strconv"

	"apigateway/internal/gwerrors"
	"apigateway/internal/pipeline"
)

// errorBody is the {error, request_id} shape used for every
// middleware-originated rejection. Attempts is populated only for
// BadGateway, enumerating each upstream tried and why it failed.
type errorBody struct {
	Error     string        `json:"error"`
	RequestID string        `json:"request_id"`
	Attempts  []attemptBody `json:"attempts,omitempty"`
}

// attemptBody mirrors gwerrors.AttemptResult for JSON rendering.
type attemptBody struct {
	Upstream string `json:"upstream"`
	Reason   string `json:"reason"`
}

// RenderError renders a *gwerrors.Error as a normalized pipeline.Response.
// Exported so the orchestrator can use the same rendering for errors
// that occur outside any middleware (route miss, forwarding exhaustion,
// panic recovery).
func RenderError(requestID string, gwErr *gwerrors.Error) *pipeline.Response {
	return errorResponse(requestID, gwErr)
}

// errorResponse renders a *gwerrors.Error as a normalized pipeline.Response.
func errorResponse(requestID string, gwErr *gwerrors.Error) *pipeline.Response {
	resp := pipeline.NewResponse(gwErr.Kind.Status())
	resp.Header.Set("Content-Type", "application/json")

	if gwErr.Kind == gwerrors.KindTooManyRequests {
		seconds := (gwErr.RetryAfterMs + 999) / 1000
		if seconds < 1 {
			seconds = 1
		}
		resp.Header.Set("Retry-After", strconv.FormatInt(seconds, 10))
	}

	eb := errorBody{Error: gwErr.Error(), RequestID: requestID}
	if gwErr.Kind == gwerrors.KindBadGateway && len(gwErr.Attempts) > 0 {
		eb.Attempts = make([]attemptBody, len(gwErr.Attempts))
		for i, a := range gwErr.Attempts {
			eb.Attempts[i] = attemptBody{Upstream: a.Upstream, Reason: a.Reason}
		}
	}

	body, _ := json.Marshal(eb)
	resp.Body = body
	return resp
}
