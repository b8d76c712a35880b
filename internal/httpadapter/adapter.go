// Package httpadapter is the boundary between net/http and the engine's
// own pipeline.Context / pipeline.Response types. It also owns the one
// piece of wire knowledge both the inbound and outbound edges need —
// which headers are hop-by-hop and must never be forwarded.
package httpadapter

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	"apigateway/internal/pipeline"
)

// HopByHop lists the headers that are meaningful only for one network hop
// and must be stripped before forwarding.
var HopByHop = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Proxy-Connection":    true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

// FromRequest builds a pipeline.Context from an inbound *http.Request,
// reading the body up to maxBodyBytes+1 bytes so the validation stage can
// distinguish "exactly the limit" from "over the limit" without buffering
// an unbounded body first.
func FromRequest(r *http.Request, maxBodyBytes int64) (*pipeline.Context, error) {
	hdr := pipeline.NewHeader()
	for k, vs := range r.Header {
		hdr[http.CanonicalHeaderKey(k)] = append([]string(nil), vs...)
	}
	if r.Host != "" {
		hdr.Set("Host", r.Host)
	}

	var body []byte
	if r.Body != nil {
		limited := io.LimitReader(r.Body, maxBodyBytes+1)
		b, err := io.ReadAll(limited)
		if err != nil {
			return nil, err
		}
		body = b
	}

	return &pipeline.Context{
		Method:     r.Method,
		Path:       r.URL.Path,
		Query:      r.URL.RawQuery,
		Header:     hdr,
		Body:       body,
		RemoteAddr: r.RemoteAddr,
	}, nil
}

// WriteResponse writes a pipeline.Response to w.
func WriteResponse(w http.ResponseWriter, resp *pipeline.Response) {
	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.Status)
	if len(resp.Body) > 0 {
		_, _ = w.Write(resp.Body)
	}
}

// BuildUpstreamRequest constructs an outbound *http.Request for ctx
// against baseURL, stripping hop-by-hop headers and rewriting Host.
func BuildUpstreamRequest(parent context.Context, baseURL string, ctx *pipeline.Context) (*http.Request, error) {
	url := strings.TrimRight(baseURL, "/") + ctx.Path
	if ctx.Query != "" {
		url += "?" + ctx.Query
	}

	var body io.Reader
	if len(ctx.Body) > 0 {
		body = bytes.NewReader(ctx.Body)
	}

	req, err := http.NewRequestWithContext(parent, ctx.Method, url, body)
	if err != nil {
		return nil, err
	}

	for k, vs := range ctx.Header {
		if HopByHop[k] || k == "Host" {
			continue
		}
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return req, nil
}
