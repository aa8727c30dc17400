// Package snapshot runs persistence work off the request path.
package snapshot

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/personaforge/personaforge/pkg/logger"
)

// Task persists the current state for one key.
type Task func(ctx context.Context) error

type queueRecorder interface {
	SetSnapshotQueueDepth(n int)
	RecordPersistenceWarning(component string)
}

// Config configures a Writer.
type Config struct {
	Workers     int
	TaskTimeout time.Duration
}

// Writer is a pool of workers executing snapshot tasks. Tasks are coalesced
// per key: while a key waits in the queue a newer task replaces the older
// one, and a key never runs on two workers at once.
type Writer struct {
	workers int
	timeout time.Duration
	log     logger.Logger
	metrics queueRecorder

	mu       sync.Mutex
	cond     *sync.Cond
	order    []string
	pending  map[string]Task
	inflight map[string]bool
	closed   bool

	running   atomic.Bool
	wg        sync.WaitGroup
	processed atomic.Int64
	failed    atomic.Int64
}

// Option configures a Writer.
type Option func(*Writer)

// WithLogger sets the logger for failed tasks.
func WithLogger(l logger.Logger) Option {
	return func(w *Writer) { w.log = l }
}

// WithMetrics reports queue depth and failures.
func WithMetrics(m queueRecorder) Option {
	return func(w *Writer) { w.metrics = m }
}

// NewWriter creates a stopped Writer.
func NewWriter(cfg Config, opts ...Option) *Writer {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 10 * time.Second
	}
	w := &Writer{
		workers:  cfg.Workers,
		timeout:  cfg.TaskTimeout,
		log:      logger.Nop(),
		pending:  make(map[string]Task),
		inflight: make(map[string]bool),
	}
	w.cond = sync.NewCond(&w.mu)
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start launches the workers.
func (w *Writer) Start() {
	if !w.running.CompareAndSwap(false, true) {
		return
	}
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.worker()
	}
}

// Submit queues task for key. It returns false once the Writer is closed.
func (w *Writer) Submit(key string, task Task) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return false
	}
	if _, queued := w.pending[key]; queued {
		w.pending[key] = task
		return true
	}
	w.pending[key] = task
	if !w.inflight[key] {
		w.order = append(w.order, key)
		w.cond.Signal()
	}
	w.reportDepthLocked()
	return true
}

// Pending returns the number of keys waiting or running.
func (w *Writer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pendingLocked()
}

// Flush waits until every submitted task has run or ctx is done.
func (w *Writer) Flush(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		if w.Pending() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("snapshot: flush: %d keys outstanding: %w", w.Pending(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// Close stops accepting tasks, drains the queue and waits for the workers.
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	w.closed = true
	w.cond.Broadcast()
	w.mu.Unlock()

	if !w.running.Load() {
		return nil
	}
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		w.running.Store(false)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("snapshot: close: %w", ctx.Err())
	}
}

// TasksProcessed returns the number of tasks run, failed ones included.
func (w *Writer) TasksProcessed() int64 { return w.processed.Load() }

// TasksFailed returns the number of tasks that returned an error or panicked.
func (w *Writer) TasksFailed() int64 { return w.failed.Load() }

func (w *Writer) worker() {
	defer w.wg.Done()
	for {
		w.mu.Lock()
		for len(w.order) == 0 && !w.closed {
			w.cond.Wait()
		}
		if len(w.order) == 0 {
			w.mu.Unlock()
			return
		}
		key := w.order[0]
		w.order = w.order[1:]
		task := w.pending[key]
		delete(w.pending, key)
		w.inflight[key] = true
		w.mu.Unlock()

		w.run(key, task)

		w.mu.Lock()
		delete(w.inflight, key)
		if _, again := w.pending[key]; again {
			w.order = append(w.order, key)
			w.cond.Signal()
		}
		w.reportDepthLocked()
		w.mu.Unlock()
	}
}

func (w *Writer) run(key string, task Task) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			w.fail(ctx, key, fmt.Errorf("panic: %v", r))
		}
		w.processed.Add(1)
	}()

	if err := task(ctx); err != nil {
		w.fail(ctx, key, err)
	}
}

func (w *Writer) fail(ctx context.Context, key string, err error) {
	w.failed.Add(1)
	w.log.WarnContext(ctx, "snapshot write failed", "key", key, "error", err)
	if w.metrics != nil {
		w.metrics.RecordPersistenceWarning("snapshot")
	}
}

func (w *Writer) pendingLocked() int {
	n := len(w.pending)
	for k := range w.inflight {
		if _, queued := w.pending[k]; !queued {
			n++
		}
	}
	return n
}

func (w *Writer) reportDepthLocked() {
	if w.metrics != nil {
		w.metrics.SetSnapshotQueueDepth(len(w.pending))
	}
}
