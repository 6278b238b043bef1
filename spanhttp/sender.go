package spanhttp

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/zoobzio/hellotrace"
)

// HTTPSender posts encoded span batches to a collector endpoint.
// It implements hellotrace.Sender.
type HTTPSender struct {
	resty    *resty.Client
	endpoint string
}

// NewHTTPSender creates a sender for endpoint, e.g. http://collector:14268/api/spans.
func NewHTTPSender(endpoint string, timeout time.Duration) *HTTPSender {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &HTTPSender{resty: client, endpoint: endpoint}
}

// Send implements hellotrace.Sender.
func (s *HTTPSender) Send(ctx context.Context, b hellotrace.Batch) error {
	body, err := hellotrace.EncodeBatch(b)
	if err != nil {
		return fmt.Errorf("encoding span batch: %w", err)
	}

	resp, err := s.resty.R().
		SetContext(ctx).
		SetBody(body).
		Post(s.endpoint)
	if err != nil {
		return fmt.Errorf("posting span batch: %w", err)
	}
	if resp.IsError() {
		return &StatusError{URL: s.endpoint, StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	return nil
}

// Close implements hellotrace.Sender.
func (s *HTTPSender) Close() error {
	s.resty.GetClient().CloseIdleConnections()
	return nil
}
