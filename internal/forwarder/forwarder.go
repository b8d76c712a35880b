// Package forwarder executes one upstream call with the upstream's
// timeout budget, updates metrics and the breaker, and performs ranked
// failover across candidates. An HTTP 5xx response still counts as
// success for breaker/metrics purposes — only transport errors and
// timeouts drive failover; a status code alone is not treated as a
// failure.
package forwarder

import (
	"context"
	"io"
	"net/http"
	"time"

	"apigateway/internal/breaker"
	"apigateway/internal/clock"
	"apigateway/internal/gwerrors"
	"apigateway/internal/httpadapter"
	"apigateway/internal/metrics"
	"apigateway/internal/pipeline"
	"apigateway/internal/upstreamtab"

	"github.com/rs/zerolog"
)

// Client forwards requests to ranked upstream candidates.
type Client struct {
	HTTPClient *http.Client
	Upstreams  *upstreamtab.Table
	Metrics    *metrics.Registry
	Breakers   *breaker.Registry
	Clock      clock.Clock
	Log        zerolog.Logger
}

// Forward attempts each candidate in order until one succeeds or the list
// is exhausted. On exhaustion it returns a *gwerrors.Error of KindBadGateway
// enumerating every attempted upstream and its failure kind.
func (c *Client) Forward(ctx context.Context, reqCtx *pipeline.Context, ranked []string) (*pipeline.Response, *gwerrors.Error) {
	var attempts []gwerrors.AttemptResult

	for _, name := range ranked {
		desc, ok := c.Upstreams.Get(name)
		if !ok {
			continue
		}

		b := c.Breakers.Get(name)
		now := c.Clock.Now()
		admitted, isProbe := b.Admit(now)
		if !admitted {
			reqCtx.Attempts = append(reqCtx.Attempts, pipeline.Attempt{Upstream: name, Outcome: "rejected"})
			attempts = append(attempts, gwerrors.AttemptResult{Upstream: name, Reason: "circuit_open"})
			continue
		}

		m := c.Metrics.Get(name)
		if m != nil {
			m.IncrInFlight()
		}

		resp, dialErr := c.attempt(ctx, desc, reqCtx)

		if m != nil {
			m.DecrInFlight()
		}
		finishedAt := c.Clock.Now()

		if dialErr != nil {
			if m != nil {
				m.RecordFailure()
			}
			b.Record(false, isProbe, finishedAt)
			reqCtx.Attempts = append(reqCtx.Attempts, pipeline.Attempt{Upstream: name, Outcome: "error"})
			attempts = append(attempts, gwerrors.AttemptResult{Upstream: name, Reason: dialErr.Error()})
			c.Log.Warn().Str("upstream", name).Err(dialErr).Msg("upstream attempt failed")
			continue
		}

		latencyMs := float64(finishedAt.Sub(now)) / float64(time.Millisecond)
		if m != nil {
			m.RecordSuccess(latencyMs, finishedAt)
		}
		b.Record(true, isProbe, finishedAt)
		reqCtx.Attempts = append(reqCtx.Attempts, pipeline.Attempt{Upstream: name, Outcome: "ok"})
		reqCtx.SelectedUpstream = name
		return resp, nil
	}

	return nil, gwerrors.BadGateway(attempts)
}

// attempt dials one upstream with its configured timeout and returns the
// normalized response, or an error on transport failure / timeout.
func (c *Client) attempt(parent context.Context, desc *upstreamtab.Descriptor, reqCtx *pipeline.Context) (*pipeline.Response, error) {
	timeout := desc.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	dialCtx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	req, err := httpadapter.BuildUpstreamRequest(dialCtx, desc.BaseURL.String(), reqCtx)
	if err != nil {
		return nil, err
	}

	httpResp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}

	hdr := pipeline.NewHeader()
	for k, vs := range httpResp.Header {
		hdr[k] = append([]string(nil), vs...)
	}

	return &pipeline.Response{Status: httpResp.StatusCode, Header: hdr, Body: body}, nil
}
