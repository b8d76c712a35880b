// Package application holds the rate-limit use case: call the backend and
// apply the fail-open/fail-closed policy on backend error. It knows
// nothing about HTTP.
package application

import (
	"context"
	"time"

	"apigateway/internal/clock"
	"apigateway/internal/ratelimit/domain"
)

// Service wraps a Backend with the fail-open policy and a clock so the
// decision is deterministic under test.
type Service struct {
	Backend  domain.Backend
	FailOpen bool
	Clock    clock.Clock
}

// Decide consults the backend for key and maps a backend error to allow
// (fail open) or deny (fail closed), per the configured policy.
func (s Service) Decide(ctx context.Context, key domain.Key) (domain.Decision, error) {
	if s.Backend == nil {
		return domain.Decision{Allowed: true}, nil
	}
	now := time.Now()
	if s.Clock != nil {
		now = s.Clock.Now()
	}

	dec, err := s.Backend.Check(ctx, key, now)
	if err == nil {
		return dec, nil
	}

	if s.FailOpen {
		return domain.Decision{Allowed: true}, err
	}
	return domain.Decision{Allowed: false}, err
}
