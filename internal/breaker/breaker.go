// Package breaker implements the per-upstream circuit breaker state
// machine: a tagged variant (Closed/Open/HalfOpen) with all transitions
// occurring under one critical section per upstream, so counter reads
// stay consistent with the admission decision made in the same section.
package breaker

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// State is the breaker's tagged variant.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Breaker is one state machine for one upstream.
type Breaker struct {
	mu sync.Mutex

	name string
	log  zerolog.Logger

	state    State
	failures int
	openedAt time.Time

	inFlightProbes int

	failureThreshold int
	openDuration     time.Duration
	halfOpenMax      int
}

// New builds a Breaker for one upstream with the configured thresholds:
// F (failure threshold), D (open duration), P (half-open probe limit).
func New(name string, failureThreshold int, openDuration time.Duration, halfOpenMax int, log zerolog.Logger) *Breaker {
	if failureThreshold < 1 {
		failureThreshold = 1
	}
	if halfOpenMax < 1 {
		halfOpenMax = 1
	}
	return &Breaker{
		name:             name,
		log:              log,
		failureThreshold: failureThreshold,
		openDuration:     openDuration,
		halfOpenMax:      halfOpenMax,
	}
}

// IsOpen reports whether the breaker is currently blocking admission,
// without mutating state. An Open breaker whose open duration has already
// elapsed is reported as not-open here, since the next real admission
// attempt (Admit) will lazily transition it to HalfOpen and admit a
// probe — the router must see that upstream as eligible, not excluded.
func (b *Breaker) IsOpen(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != Open {
		return false
	}
	return now.Sub(b.openedAt) < b.openDuration
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Admit decides whether one call may proceed right now, performing the
// Open->HalfOpen transition lazily if the open duration has elapsed. It
// returns admitted (may the caller proceed) and isProbe (was this
// admitted as a half-open probe, so the caller must report the outcome
// via Record with isProbe=true).
func (b *Breaker) Admit(now time.Time) (admitted bool, isProbe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true, false
	case Open:
		if now.Sub(b.openedAt) < b.openDuration {
			return false, false
		}
		b.state = HalfOpen
		b.inFlightProbes = 0
		b.log.Info().Str("upstream", b.name).Str("to", HalfOpen.String()).Msg("circuit breaker transition")
		fallthrough
	case HalfOpen:
		if b.inFlightProbes >= b.halfOpenMax {
			return false, false
		}
		b.inFlightProbes++
		return true, true
	default:
		return false, false
	}
}

// Record reports the outcome of one admitted call. isProbe must match
// what Admit returned for that call.
func (b *Breaker) Record(success bool, isProbe bool, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		if success {
			b.failures = 0
			return
		}
		b.failures++
		if b.failures >= b.failureThreshold {
			b.state = Open
			b.openedAt = now
			b.log.Warn().Str("upstream", b.name).Int("failures", b.failures).Str("to", Open.String()).Msg("circuit breaker transition")
		}
	case HalfOpen:
		if isProbe && b.inFlightProbes > 0 {
			b.inFlightProbes--
		}
		if success {
			b.state = Closed
			b.failures = 0
			b.log.Info().Str("upstream", b.name).Str("to", Closed.String()).Msg("circuit breaker transition")
		} else {
			b.state = Open
			b.openedAt = now
			b.inFlightProbes = 0
			b.log.Warn().Str("upstream", b.name).Str("to", Open.String()).Msg("circuit breaker transition")
		}
	case Open:
		// a stale result from a call admitted before the breaker reopened; ignore.
	}
}

// Registry owns one Breaker per upstream name.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker

	failureThreshold int
	openDuration     time.Duration
	halfOpenMax      int
	log              zerolog.Logger
}

func NewRegistry(failureThreshold int, openDuration time.Duration, halfOpenMax int, log zerolog.Logger) *Registry {
	return &Registry{
		breakers:         make(map[string]*Breaker),
		failureThreshold: failureThreshold,
		openDuration:     openDuration,
		halfOpenMax:      halfOpenMax,
		log:              log,
	}
}

// Get returns the breaker for name, creating it on first use.
func (r *Registry) Get(name string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	b = New(name, r.failureThreshold, r.openDuration, r.halfOpenMax, r.log)
	r.breakers[name] = b
	return b
}
