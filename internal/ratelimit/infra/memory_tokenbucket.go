// Package infra holds concrete rate-limit backend implementations for the
// domain.Backend contract: memory token-bucket, memory sliding-window, and
// Redis.
package infra

import (
	"context"
	"math"
	"sync"
	"time"

	"apigateway/internal/ratelimit/domain"

	"golang.org/x/time/rate"
)

// TokenBucketStore is a per-key token bucket backend built on
// golang.org/x/time/rate. ReserveN gives both the allow/deny decision
// and the exact retry-after via the try-then-cancel idiom: reserve a
// token, and if it wasn't immediately available, cancel the reservation
// and report the wait as retry-after instead of blocking.
type TokenBucketStore struct {
	mu           sync.Mutex
	entries      map[string]*tokenBucketEntry
	capacity     int
	refillPerSec float64
	idleTTL      time.Duration
	cleanupEvery time.Duration
}

type tokenBucketEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type TokenBucketOption func(*TokenBucketStore)

func WithTokenBucketIdleTTL(d time.Duration) TokenBucketOption {
	return func(s *TokenBucketStore) { s.idleTTL = d }
}

func WithTokenBucketCleanupEvery(d time.Duration) TokenBucketOption {
	return func(s *TokenBucketStore) { s.cleanupEvery = d }
}

// NewTokenBucketStore builds a backend with the given bucket capacity
// and refill rate in tokens per second.
func NewTokenBucketStore(capacity int, refillPerSec float64, opts ...TokenBucketOption) *TokenBucketStore {
	s := &TokenBucketStore{
		entries:      make(map[string]*tokenBucketEntry),
		capacity:     capacity,
		refillPerSec: refillPerSec,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *TokenBucketStore) limiterFor(key string, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ent, ok := s.entries[key]; ok {
		ent.lastSeen = now
		return ent.lim
	}
	lim := rate.NewLimiter(rate.Limit(s.refillPerSec), s.capacity)
	s.entries[key] = &tokenBucketEntry{lim: lim, lastSeen: now}
	return lim
}

// Check implements domain.Backend.
func (s *TokenBucketStore) Check(_ context.Context, key domain.Key, now time.Time) (domain.Decision, error) {
	lim := s.limiterFor(string(key), now)

	r := lim.ReserveN(now, 1)
	if !r.OK() {
		// n exceeds the bucket's burst outright; deny with no useful wait hint.
		return domain.Decision{Allowed: false, RetryAfterMs: 1000}, nil
	}

	delay := r.DelayFrom(now)
	if delay <= 0 {
		return domain.Decision{Allowed: true}, nil
	}

	r.CancelAt(now)
	retryAfterMs := int64(math.Ceil(delay.Seconds() * 1000))
	return domain.Decision{Allowed: false, RetryAfterMs: retryAfterMs}, nil
}

func (s *TokenBucketStore) Cleanup(now time.Time) {
	cutoff := now.Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(s.entries, k)
		}
	}
}

// StartJanitor periodically evicts idle keys until ctx is cancelled.
func (s *TokenBucketStore) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}
	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup(time.Now())
			}
		}
	}()
}
