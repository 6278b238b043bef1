// Package hello implements the hello-world client flow: a root "say-hello"
// span that formats a greeting and prints it, either through the formatter
// and publisher services or in process.
package hello

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/zoobzio/hellotrace"
	"github.com/zoobzio/hellotrace/internal/greeting"
	"github.com/zoobzio/hellotrace/spanhttp"
)

// TagHelloTo records the greeting target on the root span.
const TagHelloTo = "hello-to"

// Config holds the client settings.
type Config struct {
	FormatterURL string
	PublisherURL string
	// Local formats and prints in process instead of calling the services.
	Local bool
}

// DefaultConfig points at the services on localhost.
func DefaultConfig() Config {
	return Config{
		FormatterURL: "http://localhost:8081",
		PublisherURL: "http://localhost:8082",
	}
}

// Client runs the say-hello flow.
type Client struct {
	tracer  *hellotrace.Tracer
	http    *spanhttp.Client
	printer *greeting.Printer
	logger  *zap.Logger
	cfg     Config
}

// NewClient builds a client. httpClient may be nil in local mode.
func NewClient(tracer *hellotrace.Tracer, httpClient *spanhttp.Client, printer *greeting.Printer, logger *zap.Logger, cfg Config) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.FormatterURL = strings.TrimSuffix(cfg.FormatterURL, "/")
	cfg.PublisherURL = strings.TrimSuffix(cfg.PublisherURL, "/")
	return &Client{tracer: tracer, http: httpClient, printer: printer, logger: logger, cfg: cfg}
}

// SayHello formats a greeting for helloTo and prints it. A non-empty
// greetingWord travels as baggage to every downstream span.
func (c *Client) SayHello(ctx context.Context, helloTo, greetingWord string) (string, error) {
	ctx, scope := c.tracer.StartActiveSpan(ctx, "say-hello",
		hellotrace.WithTag(TagHelloTo, helloTo),
	)
	defer scope.Close()
	span := scope.Span()
	if greetingWord != "" {
		span.SetBaggageItem(greeting.BaggageKey, greetingWord)
	}

	helloStr, err := c.formatString(ctx, helloTo)
	if err != nil {
		span.SetError(err)
		return "", err
	}
	if err := c.printHello(ctx, helloStr); err != nil {
		span.SetError(err)
		return "", err
	}

	c.logger.Info("said hello",
		zap.String("trace_id", span.TraceID().String()),
		zap.String("value", helloStr),
	)
	return helloStr, nil
}

func (c *Client) formatString(ctx context.Context, helloTo string) (string, error) {
	if c.cfg.Local {
		var helloStr string
		err := c.tracer.WithSpan(ctx, "format", func(ctx context.Context) error {
			span := hellotrace.SpanFromContext(ctx)
			var err error
			helloStr, err = greeting.Format(span.BaggageItem(greeting.BaggageKey), helloTo)
			if err != nil {
				return err
			}
			span.LogEvent("string-format", "value", helloStr)
			return nil
		})
		return helloStr, err
	}

	url := c.cfg.FormatterURL + "/format"
	var helloStr string
	err := c.tracer.WithSpan(ctx, "formatString", func(ctx context.Context) error {
		var err error
		helloStr, err = c.http.Fetch(ctx, url, map[string]string{"helloTo": helloTo})
		if err != nil {
			return err
		}
		hellotrace.SpanFromContext(ctx).LogEvent("string-format", "value", helloStr)
		return nil
	}, spanhttp.ClientSpan(http.MethodGet, url))
	return helloStr, err
}

func (c *Client) printHello(ctx context.Context, helloStr string) error {
	if c.cfg.Local {
		return c.tracer.WithSpan(ctx, "println", func(ctx context.Context) error {
			if err := c.printer.Print(helloStr); err != nil {
				return err
			}
			hellotrace.SpanFromContext(ctx).LogEvent("println", "value", helloStr)
			return nil
		})
	}

	url := c.cfg.PublisherURL + "/publish"
	return c.tracer.WithSpan(ctx, "printHello", func(ctx context.Context) error {
		if _, err := c.http.Fetch(ctx, url, map[string]string{"helloStr": helloStr}); err != nil {
			return err
		}
		hellotrace.SpanFromContext(ctx).LogEvent("println", "value", helloStr)
		return nil
	}, spanhttp.ClientSpan(http.MethodGet, url))
}
