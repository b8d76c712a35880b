// Package router scores and ranks a route's candidate upstreams by live
// signal: lower score wins, weight pulls a candidate toward the front,
// in-flight load and recent failures push it back, and (optionally)
// the latency EMA in milliseconds is added to the score, favouring the
// faster upstream. This is a
// deterministic preference order, not probabilistic load balancing.
package router

import (
	"sort"
	"time"

	"apigateway/internal/breaker"
	"apigateway/internal/metrics"
	"apigateway/internal/upstreamtab"
)

// Config holds the scoring weights.
type Config struct {
	Base             float64
	WeightFactor     float64
	InFlightPenalty  float64
	FailurePenalty   float64
	PreferLowLatency bool
}

func DefaultConfig() Config {
	return Config{
		Base:             1000,
		WeightFactor:     100,
		InFlightPenalty:  12,
		FailurePenalty:   250,
		PreferLowLatency: true,
	}
}

type scored struct {
	name  string
	score float64
}

// Rank filters candidates by breaker state and returns them ordered by
// non-decreasing score. If every candidate's breaker is Open, none are
// filtered out — an upstream must always be returned to the forwarder so
// the open-duration lazy transition has a chance to fire on the next
// admission attempt.
func Rank(cfg Config, candidates []string, upstreams *upstreamtab.Table, metricsReg *metrics.Registry, breakers *breaker.Registry, now time.Time) []string {
	filtered := filterOpen(candidates, breakers, now)

	list := make([]scored, 0, len(filtered))
	for _, name := range filtered {
		list = append(list, scored{name: name, score: score(cfg, name, upstreams, metricsReg)})
	}

	sort.SliceStable(list, func(i, j int) bool { return list[i].score < list[j].score })

	out := make([]string, len(list))
	for i, s := range list {
		out[i] = s.name
	}
	return out
}

func filterOpen(candidates []string, breakers *breaker.Registry, now time.Time) []string {
	allOpen := true
	for _, name := range candidates {
		if !breakers.Get(name).IsOpen(now) {
			allOpen = false
			break
		}
	}
	if allOpen {
		out := make([]string, len(candidates))
		copy(out, candidates)
		return out
	}

	out := make([]string, 0, len(candidates))
	for _, name := range candidates {
		if !breakers.Get(name).IsOpen(now) {
			out = append(out, name)
		}
	}
	return out
}

func score(cfg Config, name string, upstreams *upstreamtab.Table, metricsReg *metrics.Registry) float64 {
	s := cfg.Base

	if d, ok := upstreams.Get(name); ok {
		s -= float64(d.Weight) * cfg.WeightFactor
	}

	if m := metricsReg.Get(name); m != nil {
		s += float64(m.InFlight()) * cfg.InFlightPenalty
		s += float64(m.ConsecutiveFailures()) * cfg.FailurePenalty
		if cfg.PreferLowLatency {
			s += m.EMAms()
		}
	}

	return s
}
