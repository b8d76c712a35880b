package httpadapter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"apigateway/internal/pipeline"
)

func TestFromRequest_ReadsBodyUpToLimit(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/widgets?x=1", strings.NewReader("hello"))
	req.Host = "example.com"

	ctx, err := FromRequest(req, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(ctx.Body) != "hello" {
		t.Fatalf("expected body %q, got %q", "hello", ctx.Body)
	}
	if ctx.Path != "/widgets" || ctx.Query != "x=1" {
		t.Fatalf("expected path/query preserved, got %q %q", ctx.Path, ctx.Query)
	}
	if ctx.Header.Get("Host") != "example.com" {
		t.Fatalf("expected Host header set, got %q", ctx.Header.Get("Host"))
	}
}

func TestFromRequest_StopsAtMaxBodyBytesPlusOne(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("abcdefghij"))

	ctx, err := FromRequest(req, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ctx.Body) != 6 {
		t.Fatalf("expected exactly maxBodyBytes+1 bytes read, got %d", len(ctx.Body))
	}
}

func TestWriteResponse_WritesStatusHeadersAndBody(t *testing.T) {
	resp := pipeline.NewResponse(201)
	resp.Header.Set("X-Custom", "v1")
	resp.Body = []byte("created")

	rec := httptest.NewRecorder()
	WriteResponse(rec, resp)

	if rec.Code != 201 {
		t.Fatalf("expected status 201, got %d", rec.Code)
	}
	if rec.Header().Get("X-Custom") != "v1" {
		t.Fatalf("expected header preserved")
	}
	if rec.Body.String() != "created" {
		t.Fatalf("expected body preserved, got %q", rec.Body.String())
	}
}

func TestBuildUpstreamRequest_StripsHopByHopAndHost(t *testing.T) {
	ctx := &pipeline.Context{
		Method: http.MethodGet,
		Path:   "/items",
		Query:  "limit=10",
		Header: pipeline.NewHeader(),
	}
	ctx.Header.Set("Connection", "keep-alive")
	ctx.Header.Set("Host", "inbound.example.com")
	ctx.Header.Set("X-Api-Key", "secret")

	req, err := BuildUpstreamRequest(context.Background(), "http://upstream.local/", ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.URL.String() != "http://upstream.local/items?limit=10" {
		t.Fatalf("unexpected URL: %s", req.URL.String())
	}
	if req.Header.Get("Connection") != "" {
		t.Fatalf("expected Connection header stripped")
	}
	if req.Header.Get("Host") != "" {
		t.Fatalf("expected Host header not copied as a regular header")
	}
	if req.Header.Get("X-Api-Key") != "secret" {
		t.Fatalf("expected non-hop-by-hop header forwarded")
	}
}

func TestBuildUpstreamRequest_IncludesBody(t *testing.T) {
	ctx := &pipeline.Context{
		Method: http.MethodPost,
		Path:   "/items",
		Header: pipeline.NewHeader(),
		Body:   []byte("payload"),
	}

	req, err := BuildUpstreamRequest(context.Background(), "http://upstream.local", ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Body == nil {
		t.Fatalf("expected a non-nil body")
	}
	got := make([]byte, 7)
	n, _ := req.Body.Read(got)
	if string(got[:n]) != "payload" {
		t.Fatalf("expected body %q, got %q", "payload", got[:n])
	}
}
