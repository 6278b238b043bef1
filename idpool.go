package hellotrace

import (
	"crypto/rand"
	"encoding/binary"
	"sync"
	"sync/atomic"
	"time"
)

// IDPool keeps a buffer of pre-generated ids to amortize crypto/rand overhead.
type IDPool[T any] struct {
	factory func() T
	ids     chan T
	stopCh  chan struct{}
	mu      sync.Mutex
	closed  bool
}

// NewIDPool creates a pool with the given capacity and starts its refill goroutine.
func NewIDPool[T any](capacity int, factory func() T) *IDPool[T] {
	pool := &IDPool[T]{
		ids:     make(chan T, capacity),
		factory: factory,
		stopCh:  make(chan struct{}),
	}
	go pool.refill()
	return pool
}

// Get returns a pooled id, or generates one directly when the pool is empty.
func (p *IDPool[T]) Get() T {
	select {
	case id := <-p.ids:
		return id
	default:
		return p.factory()
	}
}

func (p *IDPool[T]) refill() {
	for {
		select {
		case <-p.stopCh:
			return
		case p.ids <- p.factory():
		}
	}
}

// Close stops the refill goroutine. Get keeps working afterwards.
func (p *IDPool[T]) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.closed {
		close(p.stopCh)
		p.closed = true
	}
}

var fallbackSeq atomic.Uint64

// newTraceID returns a random non-zero trace id.
func newTraceID() TraceID {
	var id TraceID
	for !id.IsValid() {
		if _, err := rand.Read(id[:]); err != nil {
			// Fallback to a time-based id if crypto/rand fails.
			binary.BigEndian.PutUint64(id[:8], uint64(time.Now().UnixNano()))
			binary.BigEndian.PutUint64(id[8:], fallbackSeq.Add(1))
		}
	}
	return id
}

// newSpanID returns a random non-zero span id.
func newSpanID() SpanID {
	var id SpanID
	for !id.IsValid() {
		if _, err := rand.Read(id[:]); err != nil {
			binary.BigEndian.PutUint64(id[:], uint64(time.Now().UnixNano())^fallbackSeq.Add(1))
		}
	}
	return id
}

// traceIDLow returns the low 64 bits of a trace id.
func traceIDLow(id TraceID) uint64 {
	return binary.BigEndian.Uint64(id[8:])
}
