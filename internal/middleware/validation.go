package middleware

import (
	"apigateway/internal/gwerrors"
	"apigateway/internal/pipeline"
)

// Validation rejects malformed requests: disallowed method, missing
// Host, too many headers, or an oversized body.
type Validation struct {
	AllowedMethods map[string]bool
	RequireHost    bool
	MaxHeaders     int
	MaxBodyBytes   int64
}

func NewValidation(allowedMethods []string, requireHost bool, maxHeaders int, maxBodyBytes int64) *Validation {
	m := make(map[string]bool, len(allowedMethods))
	for _, meth := range allowedMethods {
		m[meth] = true
	}
	return &Validation{
		AllowedMethods: m,
		RequireHost:    requireHost,
		MaxHeaders:     maxHeaders,
		MaxBodyBytes:   maxBodyBytes,
	}
}

func (m *Validation) Name() string { return "validation" }

func (m *Validation) OnRequest(ctx *pipeline.Context) pipeline.Decision {
	if !m.AllowedMethods[ctx.Method] {
		return pipeline.ShortCircuit(errorResponse(ctx.RequestID, gwerrors.MethodNotAllowed("method not allowed")))
	}

	if m.RequireHost && ctx.Header.Get("Host") == "" {
		return pipeline.ShortCircuit(errorResponse(ctx.RequestID, gwerrors.BadRequest("missing Host header")))
	}

	if m.MaxHeaders > 0 && ctx.Header.Len() > m.MaxHeaders {
		return pipeline.ShortCircuit(errorResponse(ctx.RequestID, gwerrors.BadRequest("too many headers")))
	}

	if m.MaxBodyBytes > 0 && int64(len(ctx.Body)) > m.MaxBodyBytes {
		return pipeline.ShortCircuit(errorResponse(ctx.RequestID, gwerrors.PayloadTooLarge("body exceeds maximum size")))
	}

	return pipeline.Continue()
}

func (m *Validation) OnResponse(ctx *pipeline.Context, resp *pipeline.Response) *pipeline.Response {
	return resp
}
