// Package greeting holds the business logic of the hello services.
package greeting

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// BaggageKey is the baggage item that overrides the greeting word.
const BaggageKey = "greeting"

// DefaultGreeting is used when no greeting baggage is present.
const DefaultGreeting = "Hello"

// ErrMissingTarget is returned when there is nobody to greet.
var ErrMissingTarget = errors.New("helloTo is required")

// Format builds "<greeting>, <helloTo>!".
func Format(greeting, helloTo string) (string, error) {
	if helloTo == "" {
		return "", ErrMissingTarget
	}
	if greeting == "" {
		greeting = DefaultGreeting
	}
	return fmt.Sprintf("%s, %s!", greeting, helloTo), nil
}

// Printer writes published lines to an output stream.
type Printer struct {
	w  io.Writer
	mu sync.Mutex
}

// NewPrinter returns a printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Print writes s followed by a newline.
func (p *Printer) Print(s string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := fmt.Fprintln(p.w, s)
	return err
}
