package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"apigateway/internal/breaker"
	"apigateway/internal/clock"
	"apigateway/internal/concurrency"
	"apigateway/internal/config"
	"apigateway/internal/forwarder"
	"apigateway/internal/gateway"
	"apigateway/internal/metrics"
	"apigateway/internal/middleware"
	"apigateway/internal/pipeline"
	"apigateway/internal/ratelimit/application"
	"apigateway/internal/ratelimit/domain"
	"apigateway/internal/ratelimit/infra"
	"apigateway/internal/route"
	"apigateway/internal/router"
	"apigateway/internal/upstreamtab"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// statsReportInterval is how often the periodic stats reporter logs a
// snapshot from an in-process StatsSnapshotter.
const statsReportInterval = time.Minute

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("config error")
		os.Exit(2)
	}

	descs := make([]*upstreamtab.Descriptor, 0, len(cfg.Upstreams))
	for _, u := range cfg.Upstreams {
		descs = append(descs, &upstreamtab.Descriptor{
			Name:    u.Name,
			BaseURL: u.URL,
			Weight:  u.Weight,
			Timeout: time.Duration(u.TimeoutMs) * time.Millisecond,
		})
	}
	upstreams, err := upstreamtab.NewTable(descs)
	if err != nil {
		log.Error().Err(err).Msg("invalid upstream table")
		os.Exit(2)
	}

	routes := make([]route.Route, 0, len(cfg.Routes))
	for _, r := range cfg.Routes {
		routes = append(routes, route.Route{Prefix: r.Prefix, Upstreams: r.Upstreams})
	}
	routeTable := route.NewTable(routes)

	realClock := clock.Real()

	metricsReg := metrics.NewRegistry(upstreams.Names())
	breakerReg := breaker.NewRegistry(cfg.CircuitBreaker.FailureThreshold, time.Duration(cfg.CircuitBreaker.OpenSeconds)*time.Second, cfg.CircuitBreaker.HalfOpenMax, log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	backend, err := buildRateLimitBackend(cfg.RateLimit, ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to build rate limit backend")
		os.Exit(2)
	}

	var statsStore domain.StatsStore
	if cfg.Stats.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Stats.RedisAddr,
			Password: cfg.Stats.RedisPassword,
			DB:       cfg.Stats.RedisDB,
		})
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 2*time.Second)
		_, err := rdb.Ping(pingCtx).Result()
		pingCancel()
		if err != nil {
			log.Error().Err(err).Msg("redis stats ping error")
			os.Exit(2)
		}
		statsStore = infra.NewRedisStatsStore(
			rdb,
			infra.WithStatsPrefix(cfg.Stats.Prefix),
			infra.WithStatsTTL(cfg.Stats.TTL),
			infra.WithStatsBucket(cfg.Stats.Bucket),
			infra.WithStatsTrackKeys(cfg.Stats.TrackKeys),
		)
	} else {
		statsStore = infra.NewMemoryStatsStore()
	}

	if snap, ok := statsStore.(domain.StatsSnapshotter); ok {
		go reportStats(ctx, snap, log, statsReportInterval)
	}

	rlService := application.Service{Backend: backend, FailOpen: cfg.RateLimit.FailOpen, Clock: realClock}

	forwarderClient := &forwarder.Client{
		HTTPClient: &http.Client{},
		Upstreams:  upstreams,
		Metrics:    metricsReg,
		Breakers:   breakerReg,
		Clock:      realClock,
		Log:        log,
	}

	var concSvc concurrency.Service
	if cfg.ConcurrencyMax > 0 {
		concSvc = concurrency.Service{Pool: concurrency.NewPool(cfg.ConcurrencyMax), AcquireTimeout: cfg.ConcurrencyTimeout}
	}

	stages := []pipeline.Middleware{
		middleware.NewRequestID(),
		middleware.NewLogging(log, realClock),
		middleware.NewSecurity(),
		middleware.NewValidation(cfg.Validation.AllowedMethods, cfg.Validation.RequireHost, cfg.Validation.MaxHeaders, cfg.Validation.MaxBodyBytes),
		middleware.NewAuth(cfg.AuthHeader, cfg.APIKeys, cfg.AuthExemptPrefixes),
		middleware.NewRateLimit(rlService, cfg.RateLimit.KeyHeader, statsStore, log),
	}

	gw := gateway.New(gateway.Config{
		MaxBodyBytes: cfg.Validation.MaxBodyBytes,
		Concurrency:  concSvc,
		Routes:       routeTable,
		Upstreams:    upstreams,
		Router: router.Config{
			Base:             cfg.Routing.Base,
			WeightFactor:     cfg.Routing.WeightFactor,
			InFlightPenalty:  cfg.Routing.InFlightPenalty,
			FailurePenalty:   cfg.Routing.FailurePenalty,
			PreferLowLatency: cfg.Routing.PreferLowLatency,
		},
		Forwarder: forwarderClient,
		Clock:     realClock,
		Log:       log,
		Stages:    stages,
	})

	srv := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           gw,
		ReadHeaderTimeout: cfg.RequestHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", cfg.BindAddr).Int("upstreams", len(upstreams.Names())).Msg("gateway listening")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("server error")
		os.Exit(1)
	}
}

// reportStats logs a rate-limit decision snapshot every interval until
// ctx is cancelled. Denial rate is logged per route so an operator can
// spot a route getting hammered without scraping a metrics endpoint.
func reportStats(ctx context.Context, snap domain.StatsSnapshotter, log zerolog.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := snap.Snapshot()
			ev := log.Info().
				Int64("allowed", s.Total.Allowed).
				Int64("denied", s.Total.Denied).
				Float64("denial_rate", s.Total.DenialRate())
			for routeName, t := range s.ByRoute {
				if t.DenialRate() > 0 {
					ev = ev.Float64("denial_rate."+routeName, t.DenialRate())
				}
			}
			ev.Msg("rate limit stats")
		}
	}
}

// buildRateLimitBackend constructs the configured memory or Redis backend
// and, for memory backends, starts their idle-eviction janitor against ctx.
func buildRateLimitBackend(cfg config.RateLimit, ctx context.Context) (domain.Backend, error) {
	switch cfg.Backend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_, err := rdb.Ping(pingCtx).Result()
		cancel()
		if err != nil {
			return nil, err
		}

		switch cfg.Algorithm {
		case "sliding_window":
			return infra.NewRedisSlidingWindowStore(
				rdb,
				time.Duration(cfg.SlidingWindowSeconds)*time.Second,
				cfg.SlidingWindowMax,
				infra.WithRedisPrefix(cfg.RedisPrefix),
			), nil
		default:
			return infra.NewRedisTokenBucketStore(
				rdb,
				cfg.TokenBucketCapacity,
				cfg.TokenBucketRefill,
				infra.WithRedisPrefix(cfg.RedisPrefix),
			), nil
		}
	default:
		switch cfg.Algorithm {
		case "sliding_window":
			store := infra.NewSlidingWindowStore(time.Duration(cfg.SlidingWindowSeconds)*time.Second, cfg.SlidingWindowMax)
			store.StartJanitor(ctx)
			return store, nil
		default:
			store := infra.NewTokenBucketStore(cfg.TokenBucketCapacity, cfg.TokenBucketRefill)
			store.StartJanitor(ctx)
			return store, nil
		}
	}
}

