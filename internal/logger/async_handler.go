package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// AsyncOptions configures the queue in front of a remote log sink.
type AsyncOptions struct {
	// BufferSize is the number of records held before new ones are dropped.
	BufferSize int
	// FlushTimeout bounds Shutdown when its context has no deadline.
	FlushTimeout time.Duration
	// OnDrop is called for every record dropped because the queue was full.
	OnDrop func()
}

func (o AsyncOptions) withDefaults() AsyncOptions {
	if o.BufferSize <= 0 {
		o.BufferSize = 1024
	}
	if o.FlushTimeout <= 0 {
		o.FlushTimeout = 5 * time.Second
	}
	return o
}

type queued struct {
	ctx    context.Context
	record slog.Record
	sink   slog.Handler
}

// shipQueue is shared by every handler derived from one AsyncHandler, so
// WithAttrs children feed the same goroutine.
type shipQueue struct {
	opts    AsyncOptions
	records chan queued
	done    chan struct{}

	mu      sync.RWMutex // guards closed against concurrent sends
	closed  bool
	dropped atomic.Uint64
}

func newShipQueue(opts AsyncOptions) *shipQueue {
	q := &shipQueue{
		opts: opts.withDefaults(),
		done: make(chan struct{}),
	}
	q.records = make(chan queued, q.opts.BufferSize)
	go q.drain()
	return q
}

func (q *shipQueue) drain() {
	defer close(q.done)
	for item := range q.records {
		// A failing remote sink must not take the local log down with it.
		_ = item.sink.Handle(item.ctx, item.record)
	}
}

func (q *shipQueue) push(item queued) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return
	}
	select {
	case q.records <- item:
	default:
		q.dropped.Add(1)
		if q.opts.OnDrop != nil {
			q.opts.OnDrop()
		}
	}
}

func (q *shipQueue) close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.records)
	q.mu.Unlock()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.opts.FlushTimeout)
		defer cancel()
	}
	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AsyncHandler hands records to a background goroutine so shipping logs to
// Better Stack never blocks a webhook reply or a refresh pass. When the
// queue is full the record is dropped and counted.
type AsyncHandler struct {
	queue *shipQueue
	sink  slog.Handler
}

// NewAsyncHandler starts the queue for sink.
func NewAsyncHandler(sink slog.Handler, opts AsyncOptions) *AsyncHandler {
	return &AsyncHandler{queue: newShipQueue(opts), sink: sink}
}

func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.sink.Enabled(ctx, level)
}

func (h *AsyncHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.sink.Enabled(ctx, r.Level) {
		h.queue.push(queued{ctx: context.WithoutCancel(ctx), record: r.Clone(), sink: h.sink})
	}
	return nil
}

func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{queue: h.queue, sink: h.sink.WithAttrs(attrs)}
}

func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{queue: h.queue, sink: h.sink.WithGroup(name)}
}

// Dropped returns how many records were dropped on a full queue.
func (h *AsyncHandler) Dropped() uint64 {
	if h == nil {
		return 0
	}
	return h.queue.dropped.Load()
}

// Shutdown stops accepting records and waits for the queue to drain.
// Records logged afterwards are discarded.
func (h *AsyncHandler) Shutdown(ctx context.Context) error {
	if h == nil || h.queue == nil {
		return nil
	}
	return h.queue.close(ctx)
}
