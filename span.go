package hellotrace

import (
	"fmt"
	"sync"
	"time"
)

// LogRecord is a timestamped set of fields attached to a span.
type LogRecord struct {
	Timestamp time.Time      `json:"timestamp"`
	Fields    map[string]any `json:"fields"`
}

// SpanRecord is the immutable snapshot of a finished span handed to reporters.
//
//nolint:govet // Field order follows the JSON layout
type SpanRecord struct {
	Tags      map[string]any    `json:"tags,omitempty"`
	Baggage   map[string]string `json:"baggage,omitempty"`
	Logs      []LogRecord       `json:"logs,omitempty"`
	StartTime time.Time         `json:"start_time"`
	EndTime   time.Time         `json:"end_time"`
	Duration  time.Duration     `json:"duration"`
	TraceID   TraceID           `json:"trace_id"`
	SpanID    SpanID            `json:"span_id"`
	ParentID  SpanID            `json:"parent_id"`
	Name      string            `json:"name"`
	Service   string            `json:"service"`
	Flags     byte              `json:"flags"`
}

// Context rebuilds the SpanContext the record was finished with.
func (r SpanRecord) Context() SpanContext {
	return NewSpanContext(r.TraceID, r.SpanID, r.ParentID, r.Flags, r.Baggage)
}

// Span is a live, traced operation. It is mutable until Finish.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field order optimized for readability
type Span struct {
	tracer    *Tracer
	tags      map[string]any
	logs      []LogRecord
	startTime time.Time
	endTime   time.Time
	context   SpanContext
	name      string
	mu        sync.Mutex
	finished  bool
}

// Tracer returns the tracer that created the span.
func (s *Span) Tracer() *Tracer { return s.tracer }

// Context returns the span's current SpanContext.
func (s *Span) Context() SpanContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.context
}

// TraceID returns the trace id of this span.
func (s *Span) TraceID() TraceID { return s.Context().TraceID() }

// SpanID returns the span id of this span.
func (s *Span) SpanID() SpanID { return s.Context().SpanID() }

// ParentID returns the parent span id, zero for a root span.
func (s *Span) ParentID() SpanID { return s.Context().ParentID() }

// OperationName returns the span's name.
func (s *Span) OperationName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// SetOperationName renames the span. No-op after Finish.
func (s *Span) SetOperationName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.name = name
}

// StartTime returns when the span started.
func (s *Span) StartTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startTime
}

// IsFinished reports whether Finish has been called.
func (s *Span) IsFinished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// SetTag attaches or overwrites a tag.
// Values are stored as string, int64, float64 or bool; anything else is
// formatted with fmt.Sprint. No-op after Finish.
func (s *Span) SetTag(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished {
		return
	}
	if s.tags == nil {
		s.tags = make(map[string]any)
	}
	s.tags[key] = normalizeValue(value)
}

// Tag returns a tag value by key.
func (s *Span) Tag(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tags == nil {
		return nil, false
	}
	v, ok := s.tags[key]
	return v, ok
}

// LogFields appends a log record stamped with the tracer's clock.
func (s *Span) LogFields(fields map[string]any) {
	s.LogFieldsAt(s.tracer.clock.Now(), fields)
}

// LogFieldsAt appends a log record with an explicit timestamp. No-op after Finish.
func (s *Span) LogFieldsAt(ts time.Time, fields map[string]any) {
	copied := make(map[string]any, len(fields))
	for k, v := range fields {
		copied[k] = normalizeValue(v)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.logs = append(s.logs, LogRecord{Timestamp: ts, Fields: copied})
}

// LogEvent logs event=<event> plus alternating key/value pairs.
// A trailing key without value is dropped.
func (s *Span) LogEvent(event string, kv ...any) {
	fields := make(map[string]any, 1+len(kv)/2)
	fields["event"] = event
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	s.LogFields(fields)
}

// SetError marks the span as failed and logs the error message.
func (s *Span) SetError(err error) {
	if err == nil {
		return
	}
	s.SetTag(TagError, true)
	s.LogEvent("error", "error.object", err.Error())
}

// Logs returns a copy of the span's log records.
func (s *Span) Logs() []LogRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LogRecord, len(s.logs))
	copy(out, s.logs)
	return out
}

// SetBaggageItem replaces the span's context with one carrying key=value.
// Spans already started from the previous context keep their snapshot.
// No-op after Finish.
func (s *Span) SetBaggageItem(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.context = s.context.WithBaggageItem(key, value)
}

// BaggageItem returns a baggage value visible to this span.
func (s *Span) BaggageItem(key string) string {
	return s.Context().BaggageItem(key)
}

// Finish ends the span at the tracer's current time.
func (s *Span) Finish() error {
	return s.FinishAt(s.tracer.clock.Now())
}

// FinishAt ends the span at t and hands it to the reporter if sampled.
// A second call returns ErrAlreadyFinished and changes nothing.
func (s *Span) FinishAt(t time.Time) error {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return ErrAlreadyFinished
	}
	s.finished = true
	s.endTime = t
	rec := s.recordLocked()
	s.mu.Unlock()

	s.tracer.finishSpan(rec)
	return nil
}

// Record returns a snapshot of the span. EndTime is zero while unfinished.
func (s *Span) Record() SpanRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recordLocked()
}

func (s *Span) recordLocked() SpanRecord {
	rec := SpanRecord{
		TraceID:   s.context.traceID,
		SpanID:    s.context.spanID,
		ParentID:  s.context.parentID,
		Flags:     s.context.flags,
		Name:      s.name,
		Service:   s.tracer.serviceName,
		StartTime: s.startTime,
		EndTime:   s.endTime,
	}
	if !s.endTime.IsZero() {
		rec.Duration = s.endTime.Sub(s.startTime)
	}
	if len(s.tags) > 0 || len(s.tracer.processTags) > 0 {
		rec.Tags = make(map[string]any, len(s.tags)+len(s.tracer.processTags))
		for k, v := range s.tracer.processTags {
			rec.Tags[k] = v
		}
		for k, v := range s.tags {
			rec.Tags[k] = v
		}
	}
	if len(s.logs) > 0 {
		rec.Logs = make([]LogRecord, len(s.logs))
		copy(rec.Logs, s.logs)
	}
	if len(s.context.baggage) > 0 {
		rec.Baggage = s.context.Baggage()
	}
	return rec
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case string, int64, float64, bool:
		return val
	case int:
		return int64(val)
	case int32:
		return int64(val)
	case int16:
		return int64(val)
	case int8:
		return int64(val)
	case uint32:
		return int64(val)
	case uint16:
		return int64(val)
	case uint8:
		return int64(val)
	case float32:
		return float64(val)
	case error:
		return val.Error()
	default:
		return fmt.Sprint(val)
	}
}
