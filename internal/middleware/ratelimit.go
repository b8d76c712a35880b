package middleware

import (
	"context"
	"net"
	"strings"

	"apigateway/internal/gwerrors"
	"apigateway/internal/pipeline"
	"apigateway/internal/ratelimit/application"
	"apigateway/internal/ratelimit/domain"

	"github.com/rs/zerolog"
)

// RateLimit calls the configured backend via application.Service and
// maps its decision to allow/deny. The key comes from the configured
// header, falling back to the remote address.
type RateLimit struct {
	Service   application.Service
	KeyHeader string
	Stats     domain.StatsStore
	Log       zerolog.Logger
}

func NewRateLimit(svc application.Service, keyHeader string, stats domain.StatsStore, log zerolog.Logger) *RateLimit {
	return &RateLimit{Service: svc, KeyHeader: keyHeader, Stats: stats, Log: log}
}

func (m *RateLimit) Name() string { return "rate_limit" }

func (m *RateLimit) key(ctx *pipeline.Context) string {
	if m.KeyHeader != "" {
		if v := strings.TrimSpace(ctx.Header.Get(m.KeyHeader)); v != "" {
			return v
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(ctx.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	if ctx.RemoteAddr != "" {
		return ctx.RemoteAddr
	}
	return "unknown"
}

func (m *RateLimit) OnRequest(ctx *pipeline.Context) pipeline.Decision {
	key := m.key(ctx)
	ctx.RateLimitKey = key

	dec, err := m.Service.Decide(context.Background(), domain.Key(key))

	if err != nil {
		if m.Service.FailOpen {
			ctx.RateLimitInfo = "error_open"
		} else {
			ctx.RateLimitInfo = "error_closed"
			m.recordStats(ctx, false)
			return pipeline.ShortCircuit(errorResponse(ctx.RequestID, gwerrors.ServiceUnavailable("rate limit backend unavailable")))
		}
	} else if dec.Allowed {
		ctx.RateLimitInfo = "allow"
	} else {
		ctx.RateLimitInfo = "deny"
		m.recordStats(ctx, false)
		return pipeline.ShortCircuit(errorResponse(ctx.RequestID, gwerrors.TooManyRequests(dec.RetryAfterMs)))
	}

	m.recordStats(ctx, true)
	return pipeline.Continue()
}

func (m *RateLimit) recordStats(ctx *pipeline.Context, allowed bool) {
	if m.Stats == nil {
		return
	}
	_ = m.Stats.Record(context.Background(), domain.StatsEvent{
		Key:     domain.Key(ctx.RateLimitKey),
		Allowed: allowed,
		Method:  ctx.Method,
		Path:    ctx.Path,
		At:      ctx.StartedAt,
	})
}

func (m *RateLimit) OnResponse(ctx *pipeline.Context, resp *pipeline.Response) *pipeline.Response {
	return resp
}
