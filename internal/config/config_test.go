package config

import "testing"

func TestLoad_DefaultsWhenUnset(t *testing.T) {
	t.Setenv("UPSTREAMS", "svc-a=http://localhost:9001@1@1000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.BindAddr != "0.0.0.0:8080" {
		t.Fatalf("expected default bind addr, got %q", cfg.BindAddr)
	}
	if cfg.RateLimit.Algorithm != "token_bucket" {
		t.Fatalf("expected default algorithm token_bucket, got %q", cfg.RateLimit.Algorithm)
	}
	if cfg.ConcurrencyMax != 0 {
		t.Fatalf("expected default concurrency max 0, got %d", cfg.ConcurrencyMax)
	}
}

func TestLoad_ParsesUpstreamsEntry(t *testing.T) {
	t.Setenv("UPSTREAMS", "svc-a=http://localhost:9001@3@1500,svc-b=http://localhost:9002@1@2000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Upstreams) != 2 {
		t.Fatalf("expected 2 upstreams, got %d", len(cfg.Upstreams))
	}
	if cfg.Upstreams[0].Name != "svc-a" || cfg.Upstreams[0].Weight != 3 || cfg.Upstreams[0].TimeoutMs != 1500 {
		t.Fatalf("unexpected first upstream: %+v", cfg.Upstreams[0])
	}
}

func TestLoad_RejectsMalformedUpstreamsEntry(t *testing.T) {
	t.Setenv("UPSTREAMS", "svc-a=not-a-url@1@1000")

	if _, err := Load(); err == nil {
		t.Fatalf("expected an error for a malformed upstream URL")
	}
}

func TestLoad_RejectsEmptyUpstreams(t *testing.T) {
	t.Setenv("UPSTREAMS", "")

	if _, err := Load(); err == nil {
		t.Fatalf("expected an error when no upstream is declared")
	}
}

func TestLoad_ParsesRoutesEntry(t *testing.T) {
	t.Setenv("UPSTREAMS", "svc-a=http://localhost:9001@1@1000")
	t.Setenv("ROUTES", "/api=svc-a|svc-b,/health=svc-a")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Routes) != 2 {
		t.Fatalf("expected 2 routes, got %d", len(cfg.Routes))
	}
	if cfg.Routes[0].Prefix != "/api" || len(cfg.Routes[0].Upstreams) != 2 {
		t.Fatalf("unexpected first route: %+v", cfg.Routes[0])
	}
}

func TestLoad_RejectsMalformedRoutesEntry(t *testing.T) {
	t.Setenv("UPSTREAMS", "svc-a=http://localhost:9001@1@1000")
	t.Setenv("ROUTES", "no-equals-sign")

	if _, err := Load(); err == nil {
		t.Fatalf("expected an error for a malformed routes entry")
	}
}

func TestLoad_RejectsRedisBackendWithoutAddr(t *testing.T) {
	t.Setenv("UPSTREAMS", "svc-a=http://localhost:9001@1@1000")
	t.Setenv("RATE_LIMIT_BACKEND", "redis")
	t.Setenv("RATE_LIMIT_REDIS_ADDR", "")

	if _, err := Load(); err == nil {
		t.Fatalf("expected an error when redis backend lacks an address")
	}
}

func TestLoad_MalformedIntEnvAbortsStartup(t *testing.T) {
	t.Setenv("UPSTREAMS", "svc-a=http://localhost:9001@1@1000")
	t.Setenv("CB_FAILURE_THRESHOLD", "not-a-number")

	if _, err := Load(); err == nil {
		t.Fatalf("expected a malformed int env to abort startup, not fall back to a default")
	}
}

func TestLoad_MalformedFloatEnvAbortsStartup(t *testing.T) {
	t.Setenv("UPSTREAMS", "svc-a=http://localhost:9001@1@1000")
	t.Setenv("ROUTING_WEIGHT_FACTOR", "not-a-float")

	if _, err := Load(); err == nil {
		t.Fatalf("expected a malformed float env to abort startup")
	}
}

func TestLoad_MalformedBoolEnvAbortsStartup(t *testing.T) {
	t.Setenv("UPSTREAMS", "svc-a=http://localhost:9001@1@1000")
	t.Setenv("RATE_LIMIT_FAIL_OPEN", "not-a-bool")

	if _, err := Load(); err == nil {
		t.Fatalf("expected a malformed bool env to abort startup")
	}
}

func TestLoad_MalformedDurationEnvAbortsStartup(t *testing.T) {
	t.Setenv("UPSTREAMS", "svc-a=http://localhost:9001@1@1000")
	t.Setenv("READ_TIMEOUT", "not-a-duration")

	if _, err := Load(); err == nil {
		t.Fatalf("expected a malformed duration env to abort startup")
	}
}

func TestLoad_ValidationRequireHostDefaultsTrue(t *testing.T) {
	t.Setenv("UPSTREAMS", "svc-a=http://localhost:9001@1@1000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.Validation.RequireHost {
		t.Fatalf("expected RequireHost to default true")
	}
}
