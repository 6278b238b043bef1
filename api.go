// Package hellotrace provides a small distributed tracing core: span creation
// with parent linkage, an active span carried in context.Context, baggage that
// flows to every descendant, and inject/extract of span contexts over text
// header carriers.
//
// Core Components:
//   - SpanContext: Immutable trace/span identity plus baggage.
//   - Span: Mutable record of one operation until Finish.
//   - Scope: Binds a span as the active span of a context.
//   - Tracer: Creates spans, owns the propagator, sampler and reporter.
//   - Propagator: Encodes a SpanContext into headers and back.
//   - Reporter: Receives finished spans (Collector, RemoteReporter, logging).
//
// Basic Usage:
//
//	tracer := hellotrace.New("hello-world")
//	defer tracer.Close(context.Background())
//
//	ctx, scope := tracer.StartActiveSpan(ctx, "say-hello")
//	defer scope.Close()
//	scope.Span().SetTag("hello-to", "world")
//
//	// Children pick up the active span from ctx.
//	ctx, child := tracer.StartActiveSpan(ctx, "format")
//	defer child.Close()
//
// Cross-process:
//
//	carrier := propagation.HeaderCarrier(req.Header)
//	_ = tracer.Inject(child.Span().Context(), carrier)
//
//	// Receiving side.
//	parent, err := tracer.Extract(propagation.HeaderCarrier(r.Header))
//	span := tracer.StartSpan(r.Context(), "format", hellotrace.ChildOf(parent))
//
// Thread Safety:
//
// Tracer, Span and Scope are safe for concurrent use. The active span lives in
// context.Context, so each goroutine or request sees only the scopes pushed on
// the context it was handed.
//
// Wire Format:
//
// The default JaegerPropagator writes `uber-trace-id: trace:span:parent:flags`
// plus one `uberctx-<key>` header per baggage item. TraceContextPropagator
// speaks W3C traceparent/baggage.
package hellotrace

// Standard tag keys set by the transport helpers.
const (
	TagSpanKind   = "span.kind"
	TagHTTPMethod = "http.method"
	TagHTTPURL    = "http.url"
	TagHTTPStatus = "http.status_code"
	TagError      = "error"
	TagComponent  = "component"

	SpanKindClient = "client"
	SpanKindServer = "server"
)
