package log

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// DefaultQueueSize is the AsyncHandler queue capacity used when none is given.
const DefaultQueueSize = 1024

type asyncEntry struct {
	ctx    context.Context //nolint:containedctx // carried to the writer goroutine
	next   slog.Handler
	record slog.Record
}

// asyncQueue is shared by an AsyncHandler and every handler derived from it.
type asyncQueue struct {
	mu      sync.RWMutex
	closed  bool
	ch      chan asyncEntry
	done    chan struct{}
	dropped atomic.Int64
}

// AsyncHandler hands records to a single writer goroutine through a bounded
// queue so that logging never blocks the caller on I/O. When the queue is
// full the record is dropped and counted.
type AsyncHandler struct {
	next  slog.Handler
	queue *asyncQueue
}

// NewAsyncHandler starts the writer goroutine for next. queueSize <= 0 uses
// DefaultQueueSize. Call Close to flush and stop it.
func NewAsyncHandler(next slog.Handler, queueSize int) *AsyncHandler {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	q := &asyncQueue{
		ch:   make(chan asyncEntry, queueSize),
		done: make(chan struct{}),
	}
	go q.run()
	return &AsyncHandler{next: next, queue: q}
}

func (q *asyncQueue) run() {
	defer close(q.done)
	for e := range q.ch {
		_ = e.next.Handle(e.ctx, e.record) //nolint:errcheck // best-effort sink
	}
}

// Enabled implements slog.Handler.
func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle implements slog.Handler. It never blocks.
func (h *AsyncHandler) Handle(ctx context.Context, r slog.Record) error {
	q := h.queue
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.dropped.Add(1)
		return nil
	}
	select {
	case q.ch <- asyncEntry{ctx: context.WithoutCancel(ctx), next: h.next, record: r.Clone()}:
	default:
		q.dropped.Add(1)
	}
	return nil
}

// WithAttrs implements slog.Handler.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{next: h.next.WithAttrs(attrs), queue: h.queue}
}

// WithGroup implements slog.Handler.
func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{next: h.next.WithGroup(name), queue: h.queue}
}

// Dropped returns the number of records discarded because the queue was
// full or the handler was closed.
func (h *AsyncHandler) Dropped() int64 {
	return h.queue.dropped.Load()
}

// Close writes every queued record and stops the writer goroutine.
// It is safe to call more than once.
func (h *AsyncHandler) Close() error {
	q := h.queue
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	q.mu.Unlock()
	<-q.done
	return nil
}
