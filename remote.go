package hellotrace

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
)

// Sender ships a batch of spans to a backend.
type Sender interface {
	Send(ctx context.Context, b Batch) error
	Close() error
}

// RemoteReporterConfig tunes a RemoteReporter. Zero fields take defaults.
type RemoteReporterConfig struct {
	Process       Process
	Clock         clockz.Clock
	Logger        *zap.Logger
	Metrics       *Metrics
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration
	SendTimeout   time.Duration
	Workers       int
	WorkerQueue   int
}

func (c *RemoteReporterConfig) setDefaults() {
	if c.Clock == nil {
		c.Clock = clockz.RealClock
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1000
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = time.Second
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 5 * time.Second
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.WorkerQueue <= 0 {
		c.WorkerQueue = 16
	}
}

// RemoteReporter batches spans on a background goroutine and hands each batch
// to a bounded worker pool that calls the Sender. Report never blocks: spans
// arriving at a full queue are dropped and counted. Every reported span is
// counted exactly once, as reported or as dropped.
//
//nolint:govet // Field order optimized for readability
type RemoteReporter struct {
	cfg      RemoteReporterConfig
	sender   Sender
	queue    chan SpanRecord
	stop     chan struct{}
	loopDone chan struct{}
	workers  *workerPool
	abortCtx context.Context
	abort    context.CancelFunc
	closeCtx context.Context
	pending  atomic.Int64
	reported atomic.Int64
	dropped  atomic.Int64
	closed   atomic.Bool
	intake   sync.RWMutex
	settleMu sync.Mutex
	timedOut bool
	once     sync.Once
	closeErr error
}

// NewRemoteReporter starts a reporter that delivers batches through sender.
func NewRemoteReporter(sender Sender, cfg RemoteReporterConfig) *RemoteReporter {
	cfg.setDefaults()
	abortCtx, abort := context.WithCancel(context.Background())
	r := &RemoteReporter{
		cfg:      cfg,
		sender:   sender,
		queue:    make(chan SpanRecord, cfg.QueueSize),
		stop:     make(chan struct{}),
		loopDone: make(chan struct{}),
		workers:  newWorkerPool(cfg.Workers, cfg.WorkerQueue),
		abortCtx: abortCtx,
		abort:    abort,
	}
	go r.loop()
	return r
}

// Report implements Reporter.
func (r *RemoteReporter) Report(rec SpanRecord) {
	r.intake.RLock()
	defer r.intake.RUnlock()

	if r.closed.Load() {
		r.drop(DropClosed, 1)
		return
	}
	select {
	case r.queue <- rec:
		r.pending.Add(1)
	default:
		r.drop(DropQueueFull, 1)
	}
}

// Reported returns the number of spans the sender accepted.
func (r *RemoteReporter) Reported() int64 { return r.reported.Load() }

// Dropped returns the number of spans that were never delivered.
func (r *RemoteReporter) Dropped() int64 { return r.dropped.Load() }

// Close stops intake, sends every queued span and closes the sender once
// the workers have exited. If ctx expires first, in-flight sends are
// cancelled, the spans not yet delivered are dropped and ErrFlushTimeout is
// returned. Later calls return the first result.
func (r *RemoteReporter) Close(ctx context.Context) error {
	r.once.Do(func() {
		if ctx == nil {
			ctx = context.Background()
		}
		r.intake.Lock()
		r.closed.Store(true)
		r.intake.Unlock()
		r.closeCtx = ctx
		close(r.stop)

		released := make(chan struct{})
		go func() {
			defer close(released)
			<-r.loopDone
			r.workers.shutdown()
			if err := r.sender.Close(); err != nil {
				r.cfg.Logger.Warn("closing span sender", zap.Error(err))
			}
			r.abort()
		}()

		select {
		case <-released:
		case <-ctx.Done():
		}
		r.closeErr = r.flushTimedOut()
	})
	return r.closeErr
}

// flushTimedOut drops every span not yet delivered and cancels in-flight
// sends. Sends that finish afterwards are not counted again. It returns nil
// when nothing was pending.
func (r *RemoteReporter) flushTimedOut() error {
	r.settleMu.Lock()
	r.timedOut = true
	lost := int(r.pending.Swap(0))
	r.settleMu.Unlock()
	r.abort()

	if lost == 0 {
		return nil
	}
	r.drop(DropFlushTimeout, lost)
	r.cfg.Metrics.flushTimeout()
	r.cfg.Logger.Warn("span flush timed out", zap.Int("dropped", lost))
	return ErrFlushTimeout
}

// settle resolves n pending spans as reported or dropped for reason.
// After a flush timeout those spans were already counted.
func (r *RemoteReporter) settle(n int, reason string) {
	r.settleMu.Lock()
	defer r.settleMu.Unlock()
	if r.timedOut {
		return
	}
	r.pending.Add(-int64(n))
	if reason != "" {
		r.drop(reason, n)
		return
	}
	r.reported.Add(int64(n))
	r.cfg.Metrics.spansReported(n)
}

func (r *RemoteReporter) loop() {
	defer close(r.loopDone)

	batch := make([]SpanRecord, 0, r.cfg.BatchSize)
	flushC := r.cfg.Clock.After(r.cfg.FlushInterval)
	for {
		select {
		case rec := <-r.queue:
			batch = append(batch, rec)
			if len(batch) >= r.cfg.BatchSize {
				batch = r.dispatch(batch)
				flushC = r.cfg.Clock.After(r.cfg.FlushInterval)
			}
		case <-flushC:
			batch = r.dispatch(batch)
			flushC = r.cfg.Clock.After(r.cfg.FlushInterval)
		case <-r.stop:
			r.drain(batch)
			return
		}
	}
}

// drain hands the remaining spans to the workers, waiting for queue room
// until the close deadline. Spans left behind stay pending for the timeout.
func (r *RemoteReporter) drain(batch []SpanRecord) {
	for {
		select {
		case rec := <-r.queue:
			batch = append(batch, rec)
			if len(batch) < r.cfg.BatchSize {
				continue
			}
		default:
		}
		if len(batch) > 0 && !r.submitWait(batch) {
			return
		}
		if len(batch) < r.cfg.BatchSize {
			return
		}
		batch = make([]SpanRecord, 0, r.cfg.BatchSize)
	}
}

func (r *RemoteReporter) submitWait(batch []SpanRecord) bool {
	b := Batch{Process: r.cfg.Process, Spans: batch}
	return r.workers.submitWait(r.closeCtx, func() { r.send(b) })
}

// dispatch submits batch to the worker pool and returns an empty buffer.
func (r *RemoteReporter) dispatch(batch []SpanRecord) []SpanRecord {
	if len(batch) == 0 {
		return batch
	}
	b := Batch{Process: r.cfg.Process, Spans: batch}
	if !r.workers.submit(func() { r.send(b) }) {
		r.settle(len(batch), DropQueueFull)
	}
	return make([]SpanRecord, 0, r.cfg.BatchSize)
}

func (r *RemoteReporter) send(b Batch) {
	n := len(b.Spans)
	if r.abortCtx.Err() != nil {
		r.settle(n, DropFlushTimeout)
		return
	}
	ctx, cancel := context.WithTimeout(r.abortCtx, r.cfg.SendTimeout)
	defer cancel()

	if err := r.sender.Send(ctx, b); err != nil {
		r.cfg.Logger.Warn("sending span batch", zap.Int("spans", n), zap.Error(err))
		r.settle(n, DropSendError)
		return
	}
	r.settle(n, "")
}

func (r *RemoteReporter) drop(reason string, n int) {
	if n <= 0 {
		return
	}
	r.dropped.Add(int64(n))
	r.cfg.Metrics.spansDropped(reason, n)
}

// workerPool runs submitted tasks on a fixed number of goroutines.
//
//nolint:govet // Field order optimized for functionality over memory
type workerPool struct {
	tasks chan func()
	stop  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once
}

func newWorkerPool(workers, queueSize int) *workerPool {
	w := &workerPool{
		tasks: make(chan func(), queueSize),
		stop:  make(chan struct{}),
	}
	w.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go w.run()
	}
	return w
}

func (w *workerPool) run() {
	defer w.wg.Done()
	for {
		select {
		case task := <-w.tasks:
			task()
		case <-w.stop:
			// Finish what was queued before shutdown.
			for {
				select {
				case task := <-w.tasks:
					task()
				default:
					return
				}
			}
		}
	}
}

// submit queues task, reporting false when the queue is full.
func (w *workerPool) submit(task func()) bool {
	select {
	case w.tasks <- task:
		return true
	default:
		return false
	}
}

// submitWait queues task, waiting for room until ctx is done.
func (w *workerPool) submitWait(ctx context.Context, task func()) bool {
	select {
	case w.tasks <- task:
		return true
	case <-ctx.Done():
		return false
	}
}

// shutdown runs the queued tasks and waits for the workers to exit.
func (w *workerPool) shutdown() {
	w.once.Do(func() { close(w.stop) })
	w.wg.Wait()
}
