package hellotrace

import (
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"go.opentelemetry.io/otel/trace"
)

// Process describes the service that emitted a batch.
type Process struct {
	ServiceName string         `json:"service_name"`
	Tags        map[string]any `json:"tags,omitempty"`
}

// Batch is the unit a RemoteReporter hands to its Sender.
type Batch struct {
	Process Process      `json:"process"`
	Spans   []SpanRecord `json:"spans"`
}

//nolint:govet // Field order follows the JSON layout
type wireSpan struct {
	Tags      map[string]any    `json:"tags,omitempty"`
	Baggage   map[string]string `json:"baggage,omitempty"`
	Logs      []LogRecord       `json:"logs,omitempty"`
	StartTime time.Time         `json:"start_time"`
	EndTime   time.Time         `json:"end_time"`
	Duration  time.Duration     `json:"duration"`
	TraceID   string            `json:"trace_id"`
	SpanID    string            `json:"span_id"`
	ParentID  string            `json:"parent_id,omitempty"`
	Name      string            `json:"name"`
	Service   string            `json:"service"`
	Flags     byte              `json:"flags"`
}

type wireBatch struct {
	Process Process    `json:"process"`
	Spans   []wireSpan `json:"spans"`
}

// EncodeBatch renders a batch as JSON with hex ids.
func EncodeBatch(b Batch) ([]byte, error) {
	wb := wireBatch{Process: b.Process, Spans: make([]wireSpan, len(b.Spans))}
	for i, rec := range b.Spans {
		ws := wireSpan{
			Tags:      rec.Tags,
			Baggage:   rec.Baggage,
			Logs:      rec.Logs,
			StartTime: rec.StartTime,
			EndTime:   rec.EndTime,
			Duration:  rec.Duration,
			TraceID:   rec.TraceID.String(),
			SpanID:    rec.SpanID.String(),
			Name:      rec.Name,
			Service:   rec.Service,
			Flags:     rec.Flags,
		}
		if rec.ParentID.IsValid() {
			ws.ParentID = rec.ParentID.String()
		}
		wb.Spans[i] = ws
	}
	return sonic.Marshal(&wb)
}

// DecodeBatch parses the output of EncodeBatch. Numeric tag values come back as float64.
func DecodeBatch(data []byte) (Batch, error) {
	var wb wireBatch
	if err := sonic.Unmarshal(data, &wb); err != nil {
		return Batch{}, fmt.Errorf("decoding span batch: %w", err)
	}

	b := Batch{Process: wb.Process, Spans: make([]SpanRecord, len(wb.Spans))}
	for i, ws := range wb.Spans {
		traceID, err := trace.TraceIDFromHex(ws.TraceID)
		if err != nil {
			return Batch{}, fmt.Errorf("span %d trace id: %w", i, err)
		}
		spanID, err := trace.SpanIDFromHex(ws.SpanID)
		if err != nil {
			return Batch{}, fmt.Errorf("span %d span id: %w", i, err)
		}
		var parentID SpanID
		if ws.ParentID != "" {
			if parentID, err = trace.SpanIDFromHex(ws.ParentID); err != nil {
				return Batch{}, fmt.Errorf("span %d parent id: %w", i, err)
			}
		}
		b.Spans[i] = SpanRecord{
			Tags:      ws.Tags,
			Baggage:   ws.Baggage,
			Logs:      ws.Logs,
			StartTime: ws.StartTime,
			EndTime:   ws.EndTime,
			Duration:  ws.Duration,
			TraceID:   traceID,
			SpanID:    spanID,
			ParentID:  parentID,
			Name:      ws.Name,
			Service:   ws.Service,
			Flags:     ws.Flags,
		}
	}
	return b, nil
}
