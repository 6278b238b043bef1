// Package kafkasender ships hellotrace span batches to a Kafka topic.
//
// Every span becomes one message keyed by its trace id, so all spans of a
// trace land on the same partition. The value is a single-span batch encoded
// with hellotrace.EncodeBatch.
package kafkasender

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/zoobzio/hellotrace"
)

// Config holds the Kafka writer settings.
type Config struct {
	Brokers      []string
	Topic        string
	MaxAttempts  int
	WriteTimeout time.Duration
	RequiredAcks kafka.RequiredAcks
}

// Writer is the subset of *kafka.Writer the sender needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Sender implements hellotrace.Sender on top of a Kafka writer.
type Sender struct {
	writer Writer
	logger *zap.Logger
	closed atomic.Bool
}

// New creates a sender backed by a kafka-go writer.
func New(cfg Config, logger *zap.Logger) (*Sender, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka sender: no brokers configured")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka sender: topic is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.RequiredAcks == 0 {
		cfg.RequiredAcks = kafka.RequireOne
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		MaxAttempts:  cfg.MaxAttempts,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: cfg.RequiredAcks,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Warn(fmt.Sprintf(msg, args...), zap.String("component", "kafka-writer"))
		}),
	}
	return NewWithWriter(writer, logger), nil
}

// NewWithWriter wraps an existing writer.
func NewWithWriter(w Writer, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{writer: w, logger: logger}
}

// Send implements hellotrace.Sender.
func (s *Sender) Send(ctx context.Context, b hellotrace.Batch) error {
	if s.closed.Load() {
		return hellotrace.ErrTracerClosed
	}
	msgs := make([]kafka.Message, 0, len(b.Spans))
	for _, rec := range b.Spans {
		value, err := hellotrace.EncodeBatch(hellotrace.Batch{
			Process: b.Process,
			Spans:   []hellotrace.SpanRecord{rec},
		})
		if err != nil {
			return fmt.Errorf("encoding span %s: %w", rec.SpanID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(rec.TraceID.String()),
			Value: value,
			Headers: []kafka.Header{
				{Key: "service", Value: []byte(b.Process.ServiceName)},
			},
		})
	}
	if len(msgs) == 0 {
		return nil
	}
	if err := s.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("writing %d spans to kafka: %w", len(msgs), err)
	}
	s.logger.Debug("spans written to kafka", zap.Int("count", len(msgs)))
	return nil
}

// Close implements hellotrace.Sender. Only the first call closes the writer.
func (s *Sender) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.writer.Close()
}
