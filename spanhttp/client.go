package spanhttp

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/otel/propagation"

	"github.com/zoobzio/hellotrace"
)

// Component is the component tag value on spans created by this package.
const Component = "spanhttp"

// ClientConfig tunes the traced HTTP client.
type ClientConfig struct {
	Timeout       time.Duration
	RetryCount    int
	RetryWaitTime time.Duration
	RetryMaxWait  time.Duration
	UserAgent     string
}

// DefaultClientConfig returns the configuration used by the hello client.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:       10 * time.Second,
		RetryCount:    2,
		RetryWaitTime: 100 * time.Millisecond,
		RetryMaxWait:  2 * time.Second,
		UserAgent:     "hellotrace/1.0",
	}
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.URL, e.StatusCode, e.Body)
}

// Client is a resty client whose requests run inside client spans.
type Client struct {
	resty  *resty.Client
	tracer *hellotrace.Tracer
}

// NewClient creates a traced client.
func NewClient(tracer *hellotrace.Tracer, cfg ClientConfig) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.RetryCount
	retryClient.RetryWaitMin = cfg.RetryWaitTime
	retryClient.RetryWaitMax = cfg.RetryMaxWait
	retryClient.Logger = nil
	// Hand the last response back once retries run out so callers see a
	// StatusError instead of a transport error.
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	restyClient := resty.NewWithClient(retryClient.StandardClient())
	restyClient.SetTimeout(cfg.Timeout)
	if cfg.UserAgent != "" {
		restyClient.SetHeader("User-Agent", cfg.UserAgent)
	}

	return &Client{resty: restyClient, tracer: tracer}
}

// Resty exposes the underlying client for callers that need raw access.
func (c *Client) Resty() *resty.Client { return c.resty }

// ClientSpan returns the start options that mark a span as an outgoing
// HTTP call.
func ClientSpan(method, url string) hellotrace.StartOption {
	return hellotrace.WithTags(map[string]any{
		hellotrace.TagSpanKind:   hellotrace.SpanKindClient,
		hellotrace.TagComponent:  Component,
		hellotrace.TagHTTPMethod: method,
		hellotrace.TagHTTPURL:    url,
	})
}

// Get issues a GET to url inside a client span named operation, a child of
// the active span of ctx. Transport failures and non-2xx responses are
// recorded on the span and returned.
func (c *Client) Get(ctx context.Context, operation, url string, query map[string]string) (string, error) {
	var body string
	err := c.tracer.WithSpan(ctx, operation, func(ctx context.Context) error {
		var err error
		body, err = c.Fetch(ctx, url, query)
		return err
	}, ClientSpan(http.MethodGet, url))
	return body, err
}

// Fetch issues a GET to url carrying the active span of ctx in the request
// headers. The response status is tagged on that span. Without an active
// span the request goes out untraced.
func (c *Client) Fetch(ctx context.Context, url string, query map[string]string) (string, error) {
	req := c.resty.R().
		SetContext(ctx).
		SetQueryParams(query)

	span := hellotrace.SpanFromContext(ctx)
	if span != nil {
		if err := c.tracer.Inject(span.Context(), propagation.HeaderCarrier(req.Header)); err != nil {
			return "", fmt.Errorf("injecting span context: %w", err)
		}
	}

	resp, err := req.Get(url)
	if err != nil {
		return "", fmt.Errorf("GET %s: %w", url, err)
	}

	if span != nil {
		span.SetTag(hellotrace.TagHTTPStatus, resp.StatusCode())
	}
	if resp.IsError() {
		return "", &StatusError{URL: url, StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	return resp.String(), nil
}
