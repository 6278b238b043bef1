package hellotrace

import (
	"context"
	"sync/atomic"
)

// scopeKeyType is a private type for context keys to avoid collisions.
type scopeKeyType string

const scopeKey scopeKeyType = "hellotrace.scope"

// Scope binds a span as the active span of a context.
// Scopes form a stack through Previous; closing one makes the previous
// open scope current again for every context that carries it.
type Scope struct {
	span          *Span
	previous      *Scope
	ctx           context.Context
	finishOnClose bool
	closed        atomic.Bool
}

// Span returns the span this scope activated.
func (s *Scope) Span() *Span { return s.span }

// Previous returns the scope that was active when this one opened.
func (s *Scope) Previous() *Scope { return s.previous }

// Context returns the context in which this scope's span is active.
func (s *Scope) Context() context.Context { return s.ctx }

// IsClosed reports whether Close has been called.
func (s *Scope) IsClosed() bool { return s.closed.Load() }

// Close deactivates the scope and, when opened with finish-on-close,
// finishes the span. Only the first call has an effect.
func (s *Scope) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.finishOnClose {
		return s.span.Finish()
	}
	return nil
}

// activeScope returns the innermost open scope carried by ctx.
func activeScope(ctx context.Context) *Scope {
	if ctx == nil {
		return nil
	}
	scope, _ := ctx.Value(scopeKey).(*Scope)
	for scope != nil && scope.closed.Load() {
		scope = scope.previous
	}
	return scope
}

// SpanFromContext returns the active span of ctx, or nil.
func SpanFromContext(ctx context.Context) *Span {
	if scope := activeScope(ctx); scope != nil {
		return scope.span
	}
	return nil
}

// ContextWithSpan returns a context in which span is active.
// The returned scope is never closed implicitly and does not finish the span.
func ContextWithSpan(ctx context.Context, span *Span) context.Context {
	ctx, _ = pushScope(ctx, span, false)
	return ctx
}

func pushScope(ctx context.Context, span *Span, finishOnClose bool) (context.Context, *Scope) {
	if ctx == nil {
		ctx = context.Background()
	}
	scope := &Scope{
		span:          span,
		previous:      activeScope(ctx),
		finishOnClose: finishOnClose,
	}
	scope.ctx = context.WithValue(ctx, scopeKey, scope)
	return scope.ctx, scope
}
