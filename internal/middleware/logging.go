package middleware

import (
	"apigateway/internal/clock"
	"apigateway/internal/pipeline"

	"github.com/rs/zerolog"
)

// Logging guarantees a single completion log line per request, by
// entering early enough (right after RequestID) that its OnResponse
// hook runs in the reverse unwind for every request, including ones
// short-circuited later by validation, auth, or rate limiting. It must
// enter before rate limiting so a denial is still observed.
type Logging struct {
	Log   zerolog.Logger
	Clock clock.Clock
}

func NewLogging(log zerolog.Logger, c clock.Clock) *Logging {
	return &Logging{Log: log, Clock: c}
}

func (m *Logging) Name() string { return "logging" }

func (m *Logging) OnRequest(ctx *pipeline.Context) pipeline.Decision {
	return pipeline.Continue()
}

func (m *Logging) OnResponse(ctx *pipeline.Context, resp *pipeline.Response) *pipeline.Response {
	now := m.Clock.Now()
	latency := now.Sub(ctx.StartedAt)

	upstream := ctx.SelectedUpstream
	if upstream == "" {
		upstream = "-"
	}

	evt := m.Log.Info()
	if resp.Status >= 500 {
		evt = m.Log.Error()
	} else if resp.Status >= 400 {
		evt = m.Log.Warn()
	}

	evt.
		Str("request_id", ctx.RequestID).
		Str("method", ctx.Method).
		Str("path", ctx.Path).
		Int("status", resp.Status).
		Str("upstream", upstream).
		Dur("latency", latency).
		Str("rate_limit", ctx.RateLimitInfo).
		Msg("request completed")

	return resp
}
