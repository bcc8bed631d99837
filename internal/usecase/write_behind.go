package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"SignalGrid/internal/domain/models"
	"SignalGrid/internal/domain/repository"
	applogger "SignalGrid/pkg/logger"
)

// WriteBehind persists grid records asynchronously. A single worker drains a
// bounded queue, so writes reach the store in the order they were enqueued.
// Enqueue never blocks: a full queue drops the write.
type WriteBehind struct {
	store   repository.GridStore
	metrics repository.Metrics
	log     *applogger.Logger
	timeout time.Duration
	size    int

	mu      sync.RWMutex
	queue   chan models.PersistedRecord
	started bool
	closed  bool
	done    chan struct{}
}

type WriteBehindOption func(*WriteBehind)

// WithQueueSize sets the number of writes that may wait for the worker.
func WithQueueSize(n int) WriteBehindOption {
	return func(w *WriteBehind) {
		if n > 0 {
			w.size = n
		}
	}
}

// WithPutTimeout bounds each store write.
func WithPutTimeout(d time.Duration) WriteBehindOption {
	return func(w *WriteBehind) {
		if d > 0 {
			w.timeout = d
		}
	}
}

// WithWriteBehindLogger sets the logger.
func WithWriteBehindLogger(l *applogger.Logger) WriteBehindOption {
	return func(w *WriteBehind) {
		if l != nil {
			w.log = l
		}
	}
}

// NewWriteBehind creates the queue; call Start to launch the worker.
func NewWriteBehind(store repository.GridStore, metrics repository.Metrics, opts ...WriteBehindOption) *WriteBehind {
	w := &WriteBehind{
		store:   store,
		metrics: metrics,
		log:     applogger.Nop(),
		timeout: 5 * time.Second,
		size:    1024,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.queue = make(chan models.PersistedRecord, w.size)
	return w
}

// Start launches the worker. Calling it twice has no effect.
func (w *WriteBehind) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started || w.closed {
		return
	}
	w.started = true
	go w.run()
}

// Enqueue schedules rec for persistence. It reports false when the write was dropped.
func (w *WriteBehind) Enqueue(rec models.PersistedRecord) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.metrics.RecordPersist("dropped")
		return false
	}
	select {
	case w.queue <- rec:
		return true
	default:
		w.metrics.RecordPersist("dropped")
		w.log.Warn("persist queue full, write dropped",
			applogger.String("key", rec.Key),
			applogger.Int("capacity", cap(w.queue)),
		)
		return false
	}
}

// Pending returns the number of queued writes.
func (w *WriteBehind) Pending() int {
	return len(w.queue)
}

// Close stops accepting writes and waits for queued ones to drain or ctx to expire.
func (w *WriteBehind) Close(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	started := w.started
	close(w.queue)
	w.mu.Unlock()

	if !started {
		return nil
	}
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("persist drain: %d writes pending: %w", len(w.queue), ctx.Err())
	}
}

func (w *WriteBehind) run() {
	defer close(w.done)
	for rec := range w.queue {
		w.put(rec)
	}
}

func (w *WriteBehind) put(rec models.PersistedRecord) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	err := w.store.Put(ctx, rec)
	w.metrics.RecordLatency("store_put", time.Since(start).Seconds())
	if err != nil {
		w.metrics.RecordPersist("error")
		w.metrics.RecordError("store_put")
		w.log.Error("persist grid record",
			applogger.String("key", rec.Key),
			applogger.Error(err),
		)
		return
	}
	w.metrics.RecordPersist("ok")
}
