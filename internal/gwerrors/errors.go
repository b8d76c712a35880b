// Package gwerrors defines the error kinds surfaced at the gateway's HTTP
// boundary and their mapping to status codes, tagged with a Kind so the
// pipeline can render {error, request_id} without string-matching error
// text.
package gwerrors

import (
	"errors"
	"net/http"
)

// Kind tags an error with the boundary behavior it should produce.
type Kind int

const (
	KindNone Kind = iota
	KindUnauthorized
	KindBadRequest
	KindMethodNotAllowed
	KindPayloadTooLarge
	KindTooManyRequests
	KindServiceUnavailable
	KindBadGateway
	KindGatewayTimeout
	KindInternal
)

// Status returns the HTTP status code for a Kind.
func (k Kind) Status() int {
	switch k {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindBadRequest:
		return http.StatusBadRequest
	case KindMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindTooManyRequests:
		return http.StatusTooManyRequests
	case KindServiceUnavailable:
		return http.StatusServiceUnavailable
	case KindBadGateway:
		return http.StatusBadGateway
	case KindGatewayTimeout:
		return http.StatusGatewayTimeout
	case KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusOK
	}
}

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindBadRequest:
		return "bad_request"
	case KindMethodNotAllowed:
		return "method_not_allowed"
	case KindPayloadTooLarge:
		return "payload_too_large"
	case KindTooManyRequests:
		return "too_many_requests"
	case KindServiceUnavailable:
		return "service_unavailable"
	case KindBadGateway:
		return "bad_gateway"
	case KindGatewayTimeout:
		return "gateway_timeout"
	case KindInternal:
		return "internal_error"
	default:
		return "none"
	}
}

// Error is a typed gateway error carrying the boundary Kind plus, for
// TooManyRequests, the retry-after hint in milliseconds.
type Error struct {
	Kind         Kind
	Msg          string
	RetryAfterMs int64
	Attempts     []AttemptResult
}

// AttemptResult records one forwarding attempt, used to render BadGateway bodies.
type AttemptResult struct {
	Upstream string
	Reason   string
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return e.Kind.String()
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Unauthorized(msg string) *Error         { return New(KindUnauthorized, msg) }
func BadRequest(msg string) *Error           { return New(KindBadRequest, msg) }
func MethodNotAllowed(msg string) *Error     { return New(KindMethodNotAllowed, msg) }
func PayloadTooLarge(msg string) *Error      { return New(KindPayloadTooLarge, msg) }
func ServiceUnavailable(msg string) *Error   { return New(KindServiceUnavailable, msg) }
func Internal(msg string) *Error             { return New(KindInternal, msg) }

func TooManyRequests(retryAfterMs int64) *Error {
	return &Error{Kind: KindTooManyRequests, Msg: "too many requests", RetryAfterMs: retryAfterMs}
}

func BadGateway(attempts []AttemptResult) *Error {
	return &Error{Kind: KindBadGateway, Msg: "all upstreams exhausted", Attempts: attempts}
}

// As reports whether err is, or wraps, a *Error and returns it.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
