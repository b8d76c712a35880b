// Package gateway wires the pipeline stages, the route table, the
// router, and the forwarding client into one http.Handler, and owns the
// per-request lifecycle: decode, run the pipeline, encode, recover.
package gateway

import (
	"context"
	"net/http"

	"apigateway/internal/clock"
	"apigateway/internal/concurrency"
	"apigateway/internal/forwarder"
	"apigateway/internal/gwerrors"
	"apigateway/internal/httpadapter"
	"apigateway/internal/middleware"
	"apigateway/internal/pipeline"
	"apigateway/internal/route"
	"apigateway/internal/router"
	"apigateway/internal/upstreamtab"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Gateway is the assembled request handler.
type Gateway struct {
	pipeline     *pipeline.Pipeline
	concurrency  concurrency.Service
	maxBodyBytes int64
	clock        clock.Clock
	log          zerolog.Logger
}

// Config collects everything gateway.New needs to assemble the pipeline
// and terminal forwarding stage.
type Config struct {
	MaxBodyBytes int64
	Concurrency  concurrency.Service

	Routes    *route.Table
	Upstreams *upstreamtab.Table
	Router    router.Config
	Forwarder *forwarder.Client

	Clock clock.Clock
	Log   zerolog.Logger

	Stages []pipeline.Middleware
}

// New assembles the fixed-order pipeline and terminal forwarding stage
// into a Gateway.
func New(cfg Config) *Gateway {
	terminal := func(ctx *pipeline.Context) *pipeline.Response {
		return forward(ctx, cfg)
	}

	return &Gateway{
		pipeline:     pipeline.New(terminal, cfg.Stages...),
		concurrency:  cfg.Concurrency,
		maxBodyBytes: cfg.MaxBodyBytes,
		clock:        cfg.Clock,
		log:          cfg.Log,
	}
}

// forward matches the route, ranks its candidates, and forwards the
// request, rendering a gwerrors.Error into a normalized response on
// failure at any of those three steps.
func forward(ctx *pipeline.Context, cfg Config) *pipeline.Response {
	r, ok := cfg.Routes.Match(ctx.Path)
	if !ok {
		return middleware.RenderError(ctx.RequestID, gwerrors.New(gwerrors.KindBadGateway, "no route matches this path"))
	}
	ctx.RouteMatched = r.Prefix

	now := cfg.Clock.Now()
	ranked := router.Rank(cfg.Router, r.Upstreams, cfg.Upstreams, cfg.Forwarder.Metrics, cfg.Forwarder.Breakers, now)

	resp, gwErr := cfg.Forwarder.Forward(context.Background(), ctx, ranked)
	if gwErr != nil {
		return middleware.RenderError(ctx.RequestID, gwErr)
	}
	return resp
}

// ServeHTTP adapts one inbound *http.Request into a pipeline.Context,
// runs it through the pipeline, and writes the resulting
// pipeline.Response back. A panic anywhere downstream of this point is
// recovered into a 500 carrying the request's id, rather than crashing
// the listener goroutine.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fallbackID := r.Header.Get("X-Request-Id")
	if fallbackID == "" {
		fallbackID = uuid.NewString()
	}

	defer func() {
		if rec := recover(); rec != nil {
			g.log.Error().Interface("panic", rec).Str("request_id", fallbackID).Msg("panic recovered at gateway boundary")
			resp := middleware.RenderError(fallbackID, gwerrors.Internal("internal server error"))
			httpadapter.WriteResponse(w, resp)
		}
	}()

	release, ok := g.concurrency.Acquire(r.Context())
	if !ok {
		resp := middleware.RenderError(fallbackID, gwerrors.ServiceUnavailable("too many concurrent requests"))
		httpadapter.WriteResponse(w, resp)
		return
	}
	defer release()

	ctx, err := httpadapter.FromRequest(r, g.maxBodyBytes)
	if err != nil {
		resp := middleware.RenderError(fallbackID, gwerrors.BadRequest("failed to read request body"))
		httpadapter.WriteResponse(w, resp)
		return
	}
	ctx.StartedAt = g.clock.Now()

	resp := g.pipeline.Run(ctx)
	httpadapter.WriteResponse(w, resp)
}
