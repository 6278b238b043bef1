// Package service provides the formatter and publisher HTTP services.
package service

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/zoobzio/hellotrace"
	"github.com/zoobzio/hellotrace/internal/greeting"
	"github.com/zoobzio/hellotrace/spanhttp"
)

// Default listen addresses.
const (
	FormatterAddr = ":8081"
	PublisherAddr = ":8082"
)

// NewFormatterRouter serves GET /format?helloTo=<name>. The greeting word
// comes from the "greeting" baggage item of the incoming trace.
func NewFormatterRouter(tracer *hellotrace.Tracer, logger *zap.Logger, gatherer prometheus.Gatherer) *gin.Engine {
	router, traced := newRouter(tracer, logger, gatherer, "format")
	traced.GET("/format", func(c *gin.Context) {
		span := spanhttp.SpanFromGin(c)
		helloTo := c.Query("helloTo")

		result, err := greeting.Format(span.BaggageItem(greeting.BaggageKey), helloTo)
		if err != nil {
			span.SetError(err)
			c.String(http.StatusBadRequest, err.Error())
			return
		}

		span.LogEvent("string-format", "value", result)
		c.String(http.StatusOK, result)
	})
	return router
}

// NewPublisherRouter serves GET /publish?helloStr=<text> and prints the text.
func NewPublisherRouter(tracer *hellotrace.Tracer, printer *greeting.Printer, logger *zap.Logger, gatherer prometheus.Gatherer) *gin.Engine {
	router, traced := newRouter(tracer, logger, gatherer, "publish")
	traced.GET("/publish", func(c *gin.Context) {
		span := spanhttp.SpanFromGin(c)
		helloStr := c.Query("helloStr")
		if helloStr == "" {
			err := errors.New("helloStr is required")
			span.SetError(err)
			c.String(http.StatusBadRequest, err.Error())
			return
		}

		if err := printer.Print(helloStr); err != nil {
			_ = c.Error(err)
			c.String(http.StatusInternalServerError, "print failed")
			return
		}
		span.LogEvent("println", "value", helloStr)
		c.String(http.StatusOK, "published")
	})
	return router
}

func newRouter(tracer *hellotrace.Tracer, logger *zap.Logger, gatherer prometheus.Gatherer, operation string) (*gin.Engine, *gin.RouterGroup) {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	traced := router.Group("/")
	traced.Use(spanhttp.Middleware(tracer,
		spanhttp.WithLogger(logger),
		spanhttp.WithOperationName(func(*gin.Context) string { return operation }),
	))
	return router, traced
}

// RequestIDHeader carries the request id echoed on every response.
const RequestIDHeader = "X-Request-ID"

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(RequestIDHeader, requestID)

		c.Next()
		logger.Info("request",
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
