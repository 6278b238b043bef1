package hellotrace

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Reporter receives finished, sampled spans.
// Report must not block; Close flushes what is still pending.
type Reporter interface {
	Report(rec SpanRecord)
	Close(ctx context.Context) error
}

// ReporterFunc adapts a function to Reporter. Close is a no-op.
type ReporterFunc func(rec SpanRecord)

// Report implements Reporter.
func (f ReporterFunc) Report(rec SpanRecord) { f(rec) }

// Close implements Reporter.
func (ReporterFunc) Close(context.Context) error { return nil }

// NullReporter discards every span.
type NullReporter struct{}

// Report implements Reporter.
func (NullReporter) Report(SpanRecord) {}

// Close implements Reporter.
func (NullReporter) Close(context.Context) error { return nil }

// CompositeReporter fans spans out to several reporters.
type CompositeReporter struct {
	reporters []Reporter
}

// NewCompositeReporter returns a reporter that forwards to all of rs.
func NewCompositeReporter(rs ...Reporter) *CompositeReporter {
	return &CompositeReporter{reporters: rs}
}

// Report implements Reporter.
func (c *CompositeReporter) Report(rec SpanRecord) {
	for _, r := range c.reporters {
		r.Report(rec)
	}
}

// Close closes every member and joins their errors.
func (c *CompositeReporter) Close(ctx context.Context) error {
	var errs []error
	for _, r := range c.reporters {
		if err := r.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LoggingReporter writes one log line per finished span.
type LoggingReporter struct {
	logger *zap.Logger
}

// NewLoggingReporter returns a reporter logging to logger.
func NewLoggingReporter(logger *zap.Logger) *LoggingReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingReporter{logger: logger}
}

// Report implements Reporter.
func (r *LoggingReporter) Report(rec SpanRecord) {
	fields := []zap.Field{
		zap.String("trace_id", rec.TraceID.String()),
		zap.String("span_id", rec.SpanID.String()),
		zap.String("operation", rec.Name),
		zap.Duration("duration", rec.Duration),
		zap.String("service", rec.Service),
	}
	if rec.ParentID.IsValid() {
		fields = append(fields, zap.String("parent_id", rec.ParentID.String()))
	}
	if failed, _ := rec.Tags[TagError].(bool); failed {
		r.logger.Error("span completed with error", fields...)
		return
	}
	r.logger.Info("span completed", fields...)
}

// Close implements Reporter.
func (r *LoggingReporter) Close(context.Context) error {
	// Sync fails on stdout/stderr on some platforms; nothing to recover.
	_ = r.logger.Sync()
	return nil
}
