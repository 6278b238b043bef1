package spanhttp

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/zoobzio/hellotrace"
)

type middlewareConfig struct {
	logger    *zap.Logger
	operation func(c *gin.Context) string
}

// MiddlewareOption configures Middleware.
type MiddlewareOption func(*middlewareConfig)

// WithLogger logs malformed incoming trace headers to logger.
func WithLogger(logger *zap.Logger) MiddlewareOption {
	return func(c *middlewareConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithOperationName names server spans with fn instead of the route path.
func WithOperationName(fn func(c *gin.Context) string) MiddlewareOption {
	return func(c *middlewareConfig) {
		if fn != nil {
			c.operation = fn
		}
	}
}

// Middleware starts a server span for every request. The span is a child of
// the span context found in the request headers, or a new root when there is
// none. A malformed header is logged and the request starts a fresh trace.
// The span is active in c.Request.Context() for the rest of the chain.
func Middleware(tracer *hellotrace.Tracer, opts ...MiddlewareOption) gin.HandlerFunc {
	cfg := middlewareConfig{
		logger:    zap.NewNop(),
		operation: routeName,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(c *gin.Context) {
		parent, err := tracer.Extract(propagation.HeaderCarrier(c.Request.Header))
		if err != nil {
			cfg.logger.Warn("ignoring malformed trace header",
				zap.String("path", c.Request.URL.Path),
				zap.Error(err),
			)
		}

		ctx, scope := tracer.StartActiveSpan(c.Request.Context(), cfg.operation(c),
			hellotrace.ChildOf(parent),
			hellotrace.WithTags(map[string]any{
				hellotrace.TagSpanKind:   hellotrace.SpanKindServer,
				hellotrace.TagComponent:  Component,
				hellotrace.TagHTTPMethod: c.Request.Method,
				hellotrace.TagHTTPURL:    c.Request.URL.String(),
			}),
		)
		defer scope.Close()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		span := scope.Span()
		status := c.Writer.Status()
		span.SetTag(hellotrace.TagHTTPStatus, status)
		if status >= http.StatusInternalServerError {
			span.SetTag(hellotrace.TagError, true)
		}
		for _, ginErr := range c.Errors {
			span.SetError(ginErr.Err)
		}
	}
}

// SpanFromGin returns the server span of the current request.
func SpanFromGin(c *gin.Context) *hellotrace.Span {
	return hellotrace.SpanFromContext(c.Request.Context())
}

func routeName(c *gin.Context) string {
	if path := c.FullPath(); path != "" {
		return c.Request.Method + " " + path
	}
	return c.Request.Method + " " + c.Request.URL.Path
}
