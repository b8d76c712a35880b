package infra

import (
	"context"
	"math"
	"sync"
	"time"

	"apigateway/internal/ratelimit/domain"
)

// SlidingWindowStore is a per-key sliding-window backend: each key holds
// an ordered sequence of request timestamps within the last window,
// trimmed on every access. There is no off-the-shelf library for this
// algorithm (x/time/rate only implements token bucket), so this is a
// small hand-rolled critical section guarded by a per-store mutex.
type SlidingWindowStore struct {
	mu           sync.Mutex
	entries      map[string]*slidingWindowEntry
	window       time.Duration
	max          int
	idleTTL      time.Duration
	cleanupEvery time.Duration
}

type slidingWindowEntry struct {
	timestamps []time.Time
	lastSeen   time.Time
}

type SlidingWindowOption func(*SlidingWindowStore)

func WithSlidingWindowIdleTTL(d time.Duration) SlidingWindowOption {
	return func(s *SlidingWindowStore) { s.idleTTL = d }
}

func WithSlidingWindowCleanupEvery(d time.Duration) SlidingWindowOption {
	return func(s *SlidingWindowStore) { s.cleanupEvery = d }
}

// NewSlidingWindowStore builds a backend allowing at most max requests
// per key within the trailing window.
func NewSlidingWindowStore(window time.Duration, max int, opts ...SlidingWindowOption) *SlidingWindowStore {
	s := &SlidingWindowStore{
		entries:      make(map[string]*slidingWindowEntry),
		window:       window,
		max:          max,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Check implements domain.Backend.
func (s *SlidingWindowStore) Check(_ context.Context, key domain.Key, now time.Time) (domain.Decision, error) {
	cutoff := now.Add(-s.window)

	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[string(key)]
	if !ok {
		ent = &slidingWindowEntry{}
		s.entries[string(key)] = ent
	}
	ent.lastSeen = now
	ent.timestamps = trimBefore(ent.timestamps, cutoff)

	if len(ent.timestamps) < s.max {
		ent.timestamps = append(ent.timestamps, now)
		return domain.Decision{Allowed: true}, nil
	}

	oldest := ent.timestamps[0]
	retryAfter := oldest.Add(s.window).Sub(now)
	retryAfterMs := int64(math.Ceil(retryAfter.Seconds() * 1000))
	if retryAfterMs < 1 {
		retryAfterMs = 1
	}
	return domain.Decision{Allowed: false, RetryAfterMs: retryAfterMs}, nil
}

// trimBefore drops every timestamp strictly before cutoff. timestamps is
// already ordered by insertion time, so this is a single linear scan.
func trimBefore(timestamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(timestamps) && timestamps[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return timestamps
	}
	return append(timestamps[:0], timestamps[i:]...)
}

func (s *SlidingWindowStore) Cleanup(now time.Time) {
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
func (s *SlidingWindowStore) StartJanitor(ctx context.Context) {
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
