package middleware

import (
	"encoding/json"
	"testing"

	"apigateway/internal/gwerrors"
)

func TestRenderError_BadGatewayIncludesAttempts(t *testing.T) {
	gwErr := gwerrors.BadGateway([]gwerrors.AttemptResult{
		{Upstream: "svc-a", Reason: "circuit open"},
		{Upstream: "svc-b", Reason: "dial timeout"},
	})

	resp := RenderError("req-1", gwErr)
	if resp.Status != 502 {
		t.Fatalf("expected 502, got %d", resp.Status)
	}

	var body errorBody
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		t.Fatalf("unexpected unmarshal error: %v", err)
	}
	if body.RequestID != "req-1" {
		t.Fatalf("expected request id echoed, got %q", body.RequestID)
	}
	if len(body.Attempts) != 2 {
		t.Fatalf("expected 2 attempts in body, got %d", len(body.Attempts))
	}
	if body.Attempts[0].Upstream != "svc-a" || body.Attempts[0].Reason != "circuit open" {
		t.Fatalf("unexpected first attempt: %+v", body.Attempts[0])
	}
	if body.Attempts[1].Upstream != "svc-b" || body.Attempts[1].Reason != "dial timeout" {
		t.Fatalf("unexpected second attempt: %+v", body.Attempts[1])
	}
}

func TestRenderError_NonBadGatewayOmitsAttempts(t *testing.T) {
	resp := RenderError("req-2", gwerrors.Unauthorized("bad key"))

	var body errorBody
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		t.Fatalf("unexpected unmarshal error: %v", err)
	}
	if body.Attempts != nil {
		t.Fatalf("expected no attempts field for a non-BadGateway error, got %+v", body.Attempts)
	}
}

func TestRenderError_TooManyRequestsSetsRetryAfter(t *testing.T) {
	resp := RenderError("req-3", gwerrors.TooManyRequests(1500))

	if resp.Status != 429 {
		t.Fatalf("expected 429, got %d", resp.Status)
	}
	if got := resp.Header.Get("Retry-After"); got != "2" {
		t.Fatalf("expected Retry-After rounded up to 2, got %q", got)
	}
}
