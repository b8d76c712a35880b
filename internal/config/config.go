// Package config builds the gateway's immutable configuration snapshot
// from a flat environment-variable map: manual os.Getenv plus small
// typed parse helpers, strict-fail on malformed values. Config loading
// from a flat key/value map stays on the standard library rather than
// reaching for a config framework (see DESIGN.md).
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Upstream is one upstream's configuration as parsed from UPSTREAMS.
type Upstream struct {
	Name      string
	URL       *url.URL
	Weight    int
	TimeoutMs int
}

// Route is one route's configuration as parsed from ROUTES.
type Route struct {
	Prefix    string
	Upstreams []string
}

// RateLimit holds every RATE_LIMIT_* tunable.
type RateLimit struct {
	Algorithm string // "token_bucket" | "sliding_window"
	Backend   string // "memory" | "redis"
	KeyHeader string
	FailOpen  bool

	TokenBucketCapacity int
	TokenBucketRefill   float64

	SlidingWindowSeconds int
	SlidingWindowMax     int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// CircuitBreaker holds the breaker thresholds.
type CircuitBreaker struct {
	FailureThreshold int
	OpenSeconds      int
	HalfOpenMax      int
}

// Routing holds the router's scoring weights.
type Routing struct {
	Base             float64
	WeightFactor     float64
	InFlightPenalty  float64
	FailurePenalty   float64
	PreferLowLatency bool
}

// Validation holds the admission-validation tunables.
type Validation struct {
	AllowedMethods []string
	RequireHost    bool
	MaxHeaders     int
	MaxBodyBytes   int64
}

// Stats holds the optional rate-limit decision stats sink.
type Stats struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Prefix        string
	TTL           time.Duration
	Bucket        string
	TrackKeys     bool
}

// Config is the immutable snapshot of every tunable, built once at
// startup. Nothing downstream mutates it.
type Config struct {
	BindAddr string

	APIKeys            []string
	AuthHeader         string
	AuthExemptPrefixes []string

	Upstreams []Upstream
	Routes    []Route

	RateLimit      RateLimit
	CircuitBreaker CircuitBreaker
	Routing        Routing
	Validation     Validation
	Stats          Stats

	ConcurrencyMax     int
	ConcurrencyTimeout time.Duration

	RequestHeaderTimeout time.Duration
	ReadTimeout          time.Duration
	WriteTimeout         time.Duration
	IdleTimeout          time.Duration
}

// Load reads and validates every tunable from the process environment.
// Parsing is strict: a malformed value aborts startup (exit code 2)
// rather than silently falling back to a default.
func Load() (Config, error) {
	var cfg Config
	var err error

	cfg.BindAddr = getenvDefault("BIND_ADDR", "0.0.0.0:8080")

	cfg.APIKeys = splitNonEmpty(getenvDefault("API_KEYS", "dev-key"), ",")
	cfg.AuthHeader = getenvDefault("AUTH_HEADER", "x-api-key")
	cfg.AuthExemptPrefixes = splitNonEmpty(getenvDefault("AUTH_EXEMPT_PREFIXES", "/health"), ",")

	if cfg.Upstreams, err = parseUpstreams(getenvDefault("UPSTREAMS", "")); err != nil {
		return Config{}, err
	}
	if len(cfg.Upstreams) == 0 {
		return Config{}, fmt.Errorf("config: UPSTREAMS must declare at least one upstream")
	}

	if cfg.Routes, err = parseRoutes(getenvDefault("ROUTES", "/=svc-a|svc-b,/health=svc-a")); err != nil {
		return Config{}, err
	}
	if len(cfg.Routes) == 0 {
		return Config{}, fmt.Errorf("config: ROUTES must declare at least one route")
	}

	if cfg.RateLimit, err = loadRateLimit(); err != nil {
		return Config{}, err
	}

	cfg.CircuitBreaker.FailureThreshold, err = getenvIntDefault("CB_FAILURE_THRESHOLD", 5)
	if err != nil {
		return Config{}, err
	}
	cfg.CircuitBreaker.OpenSeconds, err = getenvIntDefault("CB_OPEN_SECONDS", 20)
	if err != nil {
		return Config{}, err
	}
	cfg.CircuitBreaker.HalfOpenMax, err = getenvIntDefault("CB_HALF_OPEN_MAX", 1)
	if err != nil {
		return Config{}, err
	}
	if cfg.CircuitBreaker.FailureThreshold < 1 {
		return Config{}, fmt.Errorf("config: CB_FAILURE_THRESHOLD must be >= 1")
	}
	if cfg.CircuitBreaker.HalfOpenMax < 1 {
		return Config{}, fmt.Errorf("config: CB_HALF_OPEN_MAX must be >= 1")
	}

	if cfg.Routing, err = loadRouting(); err != nil {
		return Config{}, err
	}

	if cfg.Validation, err = loadValidation(); err != nil {
		return Config{}, err
	}

	if cfg.Stats, err = loadStats(); err != nil {
		return Config{}, err
	}

	if cfg.ConcurrencyMax, err = getenvIntDefault("CONCURRENCY_MAX", 0); err != nil {
		return Config{}, err
	}
	if cfg.ConcurrencyMax < 0 {
		return Config{}, fmt.Errorf("config: CONCURRENCY_MAX must be >= 0")
	}
	if cfg.ConcurrencyTimeout, err = getenvDurationDefault("CONCURRENCY_TIMEOUT", 0); err != nil {
		return Config{}, err
	}

	if cfg.RequestHeaderTimeout, err = getenvDurationDefault("REQUEST_HEADER_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.ReadTimeout, err = getenvDurationDefault("READ_TIMEOUT", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.WriteTimeout, err = getenvDurationDefault("WRITE_TIMEOUT", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.IdleTimeout, err = getenvDurationDefault("IDLE_TIMEOUT", 90*time.Second); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func loadRateLimit() (RateLimit, error) {
	var rl RateLimit
	var err error

	rl.Algorithm = getenvDefault("RATE_LIMIT_ALGORITHM", "token_bucket")
	rl.Backend = getenvDefault("RATE_LIMIT_BACKEND", "memory")
	rl.KeyHeader = getenvDefault("RATE_LIMIT_KEY_HEADER", "x-api-key")
	if rl.FailOpen, err = getenvBoolDefault("RATE_LIMIT_FAIL_OPEN", false); err != nil {
		return RateLimit{}, err
	}

	if rl.TokenBucketCapacity, err = getenvIntDefault("RATE_LIMIT_TOKEN_BUCKET_CAPACITY", 200); err != nil {
		return RateLimit{}, err
	}
	if rl.TokenBucketRefill, err = getenvFloatDefault("RATE_LIMIT_TOKEN_BUCKET_REFILL_PER_SEC", 100); err != nil {
		return RateLimit{}, err
	}

	if rl.SlidingWindowSeconds, err = getenvIntDefault("RATE_LIMIT_SLIDING_WINDOW_SECONDS", 60); err != nil {
		return RateLimit{}, err
	}
	if rl.SlidingWindowMax, err = getenvIntDefault("RATE_LIMIT_SLIDING_WINDOW_MAX", 600); err != nil {
		return RateLimit{}, err
	}

	rl.RedisAddr = getenvDefault("RATE_LIMIT_REDIS_ADDR", "")
	rl.RedisPassword = os.Getenv("RATE_LIMIT_REDIS_PASSWORD")
	if rl.RedisDB, err = getenvIntDefault("RATE_LIMIT_REDIS_DB", 0); err != nil {
		return RateLimit{}, err
	}
	rl.RedisPrefix = getenvDefault("RATE_LIMIT_REDIS_PREFIX", "gateway:ratelimit")

	switch rl.Algorithm {
	case "token_bucket", "sliding_window":
	default:
		return RateLimit{}, fmt.Errorf("config: RATE_LIMIT_ALGORITHM must be token_bucket or sliding_window, got %q", rl.Algorithm)
	}

	switch rl.Backend {
	case "memory":
	case "redis":
		if strings.TrimSpace(rl.RedisAddr) == "" {
			return RateLimit{}, fmt.Errorf("config: RATE_LIMIT_REDIS_ADDR is required when RATE_LIMIT_BACKEND=redis")
		}
	default:
		return RateLimit{}, fmt.Errorf("config: RATE_LIMIT_BACKEND must be memory or redis, got %q", rl.Backend)
	}

	if rl.TokenBucketCapacity <= 0 {
		return RateLimit{}, fmt.Errorf("config: RATE_LIMIT_TOKEN_BUCKET_CAPACITY must be > 0")
	}
	if rl.TokenBucketRefill <= 0 {
		return RateLimit{}, fmt.Errorf("config: RATE_LIMIT_TOKEN_BUCKET_REFILL_PER_SEC must be > 0")
	}
	if rl.SlidingWindowSeconds <= 0 {
		return RateLimit{}, fmt.Errorf("config: RATE_LIMIT_SLIDING_WINDOW_SECONDS must be > 0")
	}
	if rl.SlidingWindowMax <= 0 {
		return RateLimit{}, fmt.Errorf("config: RATE_LIMIT_SLIDING_WINDOW_MAX must be > 0")
	}

	return rl, nil
}

func loadRouting() (Routing, error) {
	var r Routing
	var err error

	if r.Base, err = getenvFloatDefault("ROUTING_BASE", 1000); err != nil {
		return Routing{}, err
	}
	if r.WeightFactor, err = getenvFloatDefault("ROUTING_WEIGHT_FACTOR", 100); err != nil {
		return Routing{}, err
	}
	if r.InFlightPenalty, err = getenvFloatDefault("ROUTING_IN_FLIGHT_PENALTY", 12); err != nil {
		return Routing{}, err
	}
	if r.FailurePenalty, err = getenvFloatDefault("ROUTING_FAILURE_PENALTY", 250); err != nil {
		return Routing{}, err
	}
	if r.PreferLowLatency, err = getenvBoolDefault("ROUTING_PREFER_LOW_LATENCY", true); err != nil {
		return Routing{}, err
	}
	return r, nil
}

func loadValidation() (Validation, error) {
	var v Validation
	var err error

	v.AllowedMethods = splitNonEmpty(getenvDefault("VALIDATION_ALLOWED_METHODS", "GET,POST,PUT,PATCH,DELETE,OPTIONS"), ",")
	if v.RequireHost, err = getenvBoolDefault("VALIDATION_REQUIRE_HOST", true); err != nil {
		return Validation{}, err
	}
	if v.MaxHeaders, err = getenvIntDefault("VALIDATION_MAX_HEADERS", 128); err != nil {
		return Validation{}, err
	}
	if v.MaxBodyBytes, err = getenvInt64Default("MAX_BODY_BYTES", 1<<20); err != nil {
		return Validation{}, err
	}
	return v, nil
}

func loadStats() (Stats, error) {
	var s Stats
	var err error

	if s.Enabled, err = getenvBoolDefault("RATE_STATS_ENABLED", false); err != nil {
		return Stats{}, err
	}
	s.RedisAddr = getenvDefault("RATE_STATS_REDIS_ADDR", "")
	s.RedisPassword = os.Getenv("RATE_STATS_REDIS_PASSWORD")
	if s.RedisDB, err = getenvIntDefault("RATE_STATS_REDIS_DB", 0); err != nil {
		return Stats{}, err
	}
	s.Prefix = getenvDefault("RATE_STATS_PREFIX", "ratelimit:stats")
	if s.TTL, err = getenvDurationDefault("RATE_STATS_TTL", 24*time.Hour); err != nil {
		return Stats{}, err
	}
	s.Bucket = getenvDefault("RATE_STATS_BUCKET", "minute")
	if s.TrackKeys, err = getenvBoolDefault("RATE_STATS_TRACK_KEYS", false); err != nil {
		return Stats{}, err
	}

	if s.Enabled && s.RedisAddr == "" {
		return Stats{}, fmt.Errorf("config: RATE_STATS_REDIS_ADDR is required when RATE_STATS_ENABLED=true")
	}
	return s, nil
}

// parseUpstreams parses "name=url@weight@timeout_ms,...".
func parseUpstreams(raw string) ([]Upstream, error) {
	var out []Upstream
	for _, item := range splitNonEmpty(raw, ",") {
		nameAndRest := strings.SplitN(item, "=", 2)
		if len(nameAndRest) != 2 {
			return nil, fmt.Errorf("config: malformed UPSTREAMS entry %q, want name=url@weight@timeout_ms", item)
		}
		name := strings.TrimSpace(nameAndRest[0])
		parts := strings.Split(nameAndRest[1], "@")
		if name == "" || len(parts) != 3 {
			return nil, fmt.Errorf("config: malformed UPSTREAMS entry %q, want name=url@weight@timeout_ms", item)
		}

		u, err := url.Parse(strings.TrimSpace(parts[0]))
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("config: malformed UPSTREAMS url in entry %q", item)
		}
		weight, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil || weight <= 0 {
			return nil, fmt.Errorf("config: malformed UPSTREAMS weight in entry %q", item)
		}
		timeoutMs, err := strconv.Atoi(strings.TrimSpace(parts[2]))
		if err != nil || timeoutMs <= 0 {
			return nil, fmt.Errorf("config: malformed UPSTREAMS timeout_ms in entry %q", item)
		}

		out = append(out, Upstream{Name: name, URL: u, Weight: weight, TimeoutMs: timeoutMs})
	}
	return out, nil
}

// parseRoutes parses "prefix=u1|u2,...".
func parseRoutes(raw string) ([]Route, error) {
	var out []Route
	for _, item := range splitNonEmpty(raw, ",") {
		prefixAndRest := strings.SplitN(item, "=", 2)
		if len(prefixAndRest) != 2 {
			return nil, fmt.Errorf("config: malformed ROUTES entry %q, want prefix=u1|u2", item)
		}
		prefix := strings.TrimSpace(prefixAndRest[0])
		upstreams := splitNonEmpty(prefixAndRest[1], "|")
		if prefix == "" || len(upstreams) == 0 {
			return nil, fmt.Errorf("config: malformed ROUTES entry %q, want prefix=u1|u2", item)
		}
		out = append(out, Route{Prefix: prefix, Upstreams: upstreams})
	}
	return out, nil
}

func splitNonEmpty(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// getenvIntDefault returns def when k is unset, and errors rather than
// falling back to def when k is set to a value strconv.Atoi rejects —
// every numeric/bool/duration tunable aborts startup on a malformed
// value the same way parseUpstreams/parseRoutes already do.
func getenvIntDefault(k string, def int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: malformed %s %q: %w", k, v, err)
	}
	return i, nil
}

func getenvInt64Default(k string, def int64) (int64, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("config: malformed %s %q: %w", k, v, err)
	}
	return i, nil
}

func getenvFloatDefault(k string, def float64) (float64, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("config: malformed %s %q: %w", k, v, err)
	}
	return f, nil
}

func getenvBoolDefault(k string, def bool) (bool, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("config: malformed %s %q: %w", k, v, err)
	}
	return b, nil
}

func getenvDurationDefault(k string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: malformed %s %q: %w", k, v, err)
	}
	return d, nil
}
