package middleware

import (
	"regexp"

	"apigateway/internal/pipeline"

	"github.com/google/uuid"
)

var validRequestID = regexp.MustCompile(`^[A-Za-z0-9_-]{8,128}$`)

// RequestID assigns ctx.RequestID: it echoes the inbound X-Request-Id
// header when well-formed, otherwise generates a fresh one.
// It also stamps ctx.Header so every later stage — including the
// forwarder, which copies ctx.Header onto the outbound request — sees
// the same id under X-Request-Id.
type RequestID struct{}

func NewRequestID() *RequestID { return &RequestID{} }

func (m *RequestID) Name() string { return "request_id" }

func (m *RequestID) OnRequest(ctx *pipeline.Context) pipeline.Decision {
	id := ctx.Header.Get("X-Request-Id")
	if !validRequestID.MatchString(id) {
		id = uuid.NewString()
	}
	ctx.RequestID = id
	ctx.Header.Set("X-Request-Id", id)
	return pipeline.Continue()
}

func (m *RequestID) OnResponse(ctx *pipeline.Context, resp *pipeline.Response) *pipeline.Response {
	return resp
}
