package gateway

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"apigateway/internal/breaker"
	"apigateway/internal/clock"
	"apigateway/internal/concurrency"
	"apigateway/internal/forwarder"
	"apigateway/internal/metrics"
	"apigateway/internal/pipeline"
	"apigateway/internal/route"
	"apigateway/internal/router"
	"apigateway/internal/upstreamtab"

	"github.com/rs/zerolog"
)

// panicMiddleware panics on every request, to exercise ServeHTTP's
// recover path.
type panicMiddleware struct{}

func (panicMiddleware) Name() string                                        { return "panics" }
func (panicMiddleware) OnRequest(ctx *pipeline.Context) pipeline.Decision    { panic("boom") }
func (panicMiddleware) OnResponse(ctx *pipeline.Context, resp *pipeline.Response) *pipeline.Response {
	return resp
}

func newTestGateway(t *testing.T, upstreamURL string, stages ...pipeline.Middleware) *Gateway {
	t.Helper()
	u, err := url.Parse(upstreamURL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	upstreams, err := upstreamtab.NewTable([]*upstreamtab.Descriptor{
		{Name: "svc-a", BaseURL: u, Weight: 1, Timeout: 2 * time.Second},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	return New(Config{
		MaxBodyBytes: 1 << 20,
		Routes:       route.NewTable([]route.Route{{Prefix: "/api", Upstreams: []string{"svc-a"}}}),
		Upstreams:    upstreams,
		Router:       router.DefaultConfig(),
		Forwarder: &forwarder.Client{
			HTTPClient: http.DefaultClient,
			Upstreams:  upstreams,
			Metrics:    metrics.NewRegistry([]string{"svc-a"}),
			Breakers:   breaker.NewRegistry(3, 20*time.Second, 1, zerolog.Nop()),
			Clock:      clock.Real(),
			Log:        zerolog.Nop(),
		},
		Clock:  clock.Real(),
		Log:    zerolog.Nop(),
		Stages: stages,
	})
}

func TestServeHTTP_HappyPathForwardsToUpstream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer upstream.Close()

	gw := newTestGateway(t, upstream.URL)

	req := httptest.NewRequest(http.MethodGet, "/api/widgets", nil)
	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "ok" {
		t.Fatalf("expected upstream body relayed, got %q", rec.Body.String())
	}
}

func TestServeHTTP_UnmatchedRouteRespondsBadGateway(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	gw := newTestGateway(t, upstream.URL)

	req := httptest.NewRequest(http.MethodGet, "/nowhere", nil)
	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 for an unmatched route, got %d", rec.Code)
	}
}

func TestServeHTTP_PanicIsRecoveredAs500(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	gw := newTestGateway(t, upstream.URL, panicMiddleware{})

	req := httptest.NewRequest(http.MethodGet, "/api/widgets", nil)
	req.Header.Set("X-Request-Id", "req-panic-1")
	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected a recovered panic to respond 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "req-panic-1") {
		t.Fatalf("expected the fallback request id echoed in the body, got %q", rec.Body.String())
	}
}

func TestServeHTTP_ConcurrencyExhaustionRespondsServiceUnavailable(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	gw := newTestGateway(t, upstream.URL)
	gw.concurrency = concurrency.Service{Pool: concurrency.NewPool(1), AcquireTimeout: 10 * time.Millisecond}

	release, ok := gw.concurrency.Pool.Acquire(httptest.NewRequest(http.MethodGet, "/api/widgets", nil).Context())
	if !ok {
		t.Fatalf("expected to occupy the single slot")
	}
	defer release()

	req := httptest.NewRequest(http.MethodGet, "/api/widgets", nil)
	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 once the concurrency pool is exhausted, got %d", rec.Code)
	}
}

// errorBody always fails on Read, forcing httpadapter.FromRequest's body
// read to return an error.
type errorBody struct{}

func (errorBody) Read([]byte) (int, error) { return 0, errors.New("read failure") }
func (errorBody) Close() error             { return nil }

func TestServeHTTP_BodyReadErrorRespondsBadRequest(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	gw := newTestGateway(t, upstream.URL)

	req := httptest.NewRequest(http.MethodPost, "/api/widgets", nil)
	req.Body = errorBody{}
	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on a body read error, got %d", rec.Code)
	}
}
