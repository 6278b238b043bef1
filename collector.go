package hellotrace

import (
	"context"
	"sync"
	"sync/atomic"
)

// Collector buffers finished spans in memory until Export.
// It implements Reporter and is safe for concurrent use.
//
//nolint:govet // Field alignment optimized for readability over memory efficiency
type Collector struct {
	spans        []SpanRecord
	spansCh      chan SpanRecord
	stopCh       chan struct{}
	done         chan struct{}
	droppedCount atomic.Int64
	mu           sync.Mutex
	intake       sync.RWMutex
	closed       atomic.Bool
	syncMode     atomic.Bool
	stopOnce     sync.Once
}

// NewCollector creates a collector whose intake channel holds bufferSize spans.
func NewCollector(bufferSize int) *Collector {
	c := &Collector{
		spans:   make([]SpanRecord, 0, 8),
		spansCh: make(chan SpanRecord, bufferSize),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	go c.start()
	return c
}

func (c *Collector) start() {
	defer close(c.done)

	for {
		select {
		case <-c.stopCh:
			// Drain remaining spans before shutdown.
			for {
				select {
				case rec := <-c.spansCh:
					c.buffer(rec)
				default:
					return
				}
			}
		case rec := <-c.spansCh:
			c.buffer(rec)
		}
	}
}

// Report implements Reporter. When the intake channel is full the span is
// dropped and counted instead of blocking the caller.
func (c *Collector) Report(rec SpanRecord) {
	// Close waits for in-flight reports so none lands after the drain.
	c.intake.RLock()
	defer c.intake.RUnlock()

	if c.closed.Load() {
		c.droppedCount.Add(1)
		return
	}

	if c.syncMode.Load() {
		c.buffer(rec)
		return
	}

	select {
	case c.spansCh <- rec:
	default:
		c.droppedCount.Add(1)
	}
}

// Close stops intake and waits for queued spans to be buffered, bounded by ctx.
// Buffered spans stay available to Export.
func (c *Collector) Close(ctx context.Context) error {
	c.stopOnce.Do(func() {
		c.intake.Lock()
		c.closed.Store(true)
		c.intake.Unlock()
		close(c.stopCh)
	})
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ErrFlushTimeout
	}
}

func (c *Collector) buffer(rec SpanRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.spans) >= cap(c.spans) {
		currentCap := cap(c.spans)
		var newCap int
		if currentCap < 1024 {
			newCap = currentCap * 2
		} else {
			// Grow by 50% for large buffers.
			newCap = currentCap + currentCap/2
		}
		if newCap < 32 {
			newCap = 32
		}
		grown := make([]SpanRecord, len(c.spans), newCap)
		copy(grown, c.spans)
		c.spans = grown
	}
	c.spans = append(c.spans, rec)
}

// Export returns all buffered spans and clears the buffer.
func (c *Collector) Export() []SpanRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.spans) == 0 {
		return nil
	}

	result := make([]SpanRecord, len(c.spans))
	copy(result, c.spans)

	// Shrink only very oversized buffers to avoid allocation churn.
	if cap(c.spans) > 256 && len(c.spans) < cap(c.spans)/8 {
		newCap := cap(c.spans) / 4
		if newCap < 32 {
			newCap = 32
		}
		c.spans = make([]SpanRecord, 0, newCap)
	} else {
		c.spans = c.spans[:0]
	}

	return result
}

// Count returns the number of buffered spans.
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.spans)
}

// DroppedCount returns the number of spans dropped due to backpressure or close.
func (c *Collector) DroppedCount() int64 {
	return c.droppedCount.Load()
}

// SetSyncMode makes Report buffer directly, bypassing the intake channel.
// Used by tests that need deterministic collection.
func (c *Collector) SetSyncMode(sync bool) {
	c.syncMode.Store(sync)
}

// Reset clears buffered spans and the drop counter.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.spans = c.spans[:0]
	c.droppedCount.Store(0)
}
