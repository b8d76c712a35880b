package metrics

import (
	"math"
	"testing"
	"time"
)

func TestUpstream_InFlightPairing(t *testing.T) {
	u := New()
	u.IncrInFlight()
	u.IncrInFlight()
	if got := u.InFlight(); got != 2 {
		t.Fatalf("expected 2 in flight, got %d", got)
	}
	u.DecrInFlight()
	if got := u.InFlight(); got != 1 {
		t.Fatalf("expected 1 in flight, got %d", got)
	}
}

func TestUpstream_DecrInFlightClampsAtZero(t *testing.T) {
	u := New()
	u.DecrInFlight()
	if got := u.InFlight(); got != 0 {
		t.Fatalf("expected clamped at 0, got %d", got)
	}
}

func TestUpstream_FirstSampleSeedsEMADirectly(t *testing.T) {
	u := New()
	now := time.Now()
	u.RecordSuccess(12, now)

	if got := u.EMAms(); got != 12 {
		t.Fatalf("expected first sample stored directly as 12, got %v", got)
	}
}

func TestUpstream_SubsequentSamplesBlend(t *testing.T) {
	u := New()
	now := time.Now()
	u.RecordSuccess(12, now)
	u.RecordSuccess(22, now)

	want := 0.8*12 + 0.2*22
	if got := u.EMAms(); math.Abs(got-want) > 1e-9 {
		t.Fatalf("expected EMA %.6f, got %.6f", want, got)
	}
}

func TestUpstream_RecordSuccessResetsConsecutiveFailures(t *testing.T) {
	u := New()
	now := time.Now()
	u.RecordFailure()
	u.RecordFailure()
	if u.ConsecutiveFailures() != 2 {
		t.Fatalf("expected 2 consecutive failures")
	}
	u.RecordSuccess(5, now)
	if u.ConsecutiveFailures() != 0 {
		t.Fatalf("expected consecutive failures reset to 0 on success")
	}
}

func TestUpstream_LastSuccessZeroUntilFirstSuccess(t *testing.T) {
	u := New()
	if !u.LastSuccess().IsZero() {
		t.Fatalf("expected zero time before any success recorded")
	}
	now := time.Now()
	u.RecordSuccess(1, now)
	if u.LastSuccess().IsZero() {
		t.Fatalf("expected non-zero time after a recorded success")
	}
}

func TestRegistry_GetKnownAndUnknown(t *testing.T) {
	r := NewRegistry([]string{"svc-a", "svc-b"})
	if r.Get("svc-a") == nil {
		t.Fatalf("expected svc-a to be present")
	}
	if r.Get("svc-missing") != nil {
		t.Fatalf("expected nil for an unconfigured upstream")
	}
}
