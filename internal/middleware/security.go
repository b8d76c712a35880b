package middleware

import "apigateway/internal/pipeline"

// Security sets the fixed response headers on the way back out, so they
// apply even to rejections produced by later stages. Its
// OnRequest never short-circuits, so as long as the gateway orchestrator
// places it ahead of validation/auth/rate-limit in the stage order, it is
// guaranteed to have "entered" before any of those can reject — which is
// what makes its OnResponse run on every response, including rejections.
type Security struct{}

func NewSecurity() *Security { return &Security{} }

func (m *Security) Name() string { return "security" }

func (m *Security) OnRequest(ctx *pipeline.Context) pipeline.Decision {
	return pipeline.Continue()
}

func (m *Security) OnResponse(ctx *pipeline.Context, resp *pipeline.Response) *pipeline.Response {
	resp.Header.Set("X-Content-Type-Options", "nosniff")
	resp.Header.Set("X-Frame-Options", "DENY")
	resp.Header.Set("Referrer-Policy", "no-referrer")
	resp.Header.Set("X-Request-Id", ctx.RequestID)
	return resp
}
