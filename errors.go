package hellotrace

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyFinished is returned when a span is finished twice.
	ErrAlreadyFinished = errors.New("span already finished")

	// ErrMalformedHeader matches any MalformedHeaderError.
	ErrMalformedHeader = errors.New("malformed trace header")

	// ErrFlushTimeout is returned by Close when spans were dropped at the flush deadline.
	ErrFlushTimeout = errors.New("flush timed out, pending spans dropped")

	// ErrInvalidSpanContext is returned when injecting a zero SpanContext.
	ErrInvalidSpanContext = errors.New("invalid span context")

	// ErrTracerClosed is returned by senders used after Close.
	ErrTracerClosed = errors.New("tracer closed")
)

// MalformedHeaderError describes a trace header that is present but cannot be decoded.
type MalformedHeaderError struct {
	Header string
	Value  string
	Reason string
}

func (e *MalformedHeaderError) Error() string {
	return fmt.Sprintf("malformed trace header %q=%q: %s", e.Header, e.Value, e.Reason)
}

// Is makes errors.Is(err, ErrMalformedHeader) match.
func (e *MalformedHeaderError) Is(target error) bool {
	return target == ErrMalformedHeader
}

func malformed(header, value, reason string) error {
	return &MalformedHeaderError{Header: header, Value: value, Reason: reason}
}
