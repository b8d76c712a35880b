package pipeline

// Decision is the tagged variant a middleware's request-side hook
// returns: either let the request continue, or short-circuit with a
// response. It is modeled as a struct with a discriminant rather than an
// interface because the set of variants is fixed at compile time.
type Decision struct {
	shortCircuit bool
	response     *Response
}

// Continue lets the request proceed to the next stage.
func Continue() Decision { return Decision{} }

// ShortCircuit stops request-side processing; every already-entered
// middleware still runs its response-side hook, in reverse order, on resp.
func ShortCircuit(resp *Response) Decision {
	return Decision{shortCircuit: true, response: resp}
}

func (d Decision) IsShortCircuit() bool { return d.shortCircuit }
func (d Decision) Response() *Response  { return d.response }

// Middleware is any component polymorphic over the two pipeline
// capabilities. OnResponse receives the response as it stands after every
// later stage has run and may adapt it (e.g. add security headers); it
// must return the (possibly modified) response.
type Middleware interface {
	Name() string
	OnRequest(ctx *Context) Decision
	OnResponse(ctx *Context, resp *Response) *Response
}

// Pipeline runs a fixed ordered sequence of middlewares, followed by a
// terminal stage, with short-circuit semantics on the request path and
// full reverse-order response-side unwinding regardless of where the
// request side stopped.
type Pipeline struct {
	stages   []Middleware
	terminal func(ctx *Context) *Response
}

func New(terminal func(ctx *Context) *Response, stages ...Middleware) *Pipeline {
	return &Pipeline{stages: stages, terminal: terminal}
}

// Run executes the pipeline for one request and returns the final response.
func (p *Pipeline) Run(ctx *Context) *Response {
	entered := 0
	var resp *Response

	for _, mw := range p.stages {
		entered++
		dec := mw.OnRequest(ctx)
		if dec.IsShortCircuit() {
			resp = dec.Response()
			break
		}
	}

	if resp == nil {
		resp = p.terminal(ctx)
	}

	for i := entered - 1; i >= 0; i-- {
		resp = p.stages[i].OnResponse(ctx, resp)
	}
	return resp
}
