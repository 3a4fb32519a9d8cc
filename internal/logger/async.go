package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Closer flushes and stops an async handler on shutdown.
type Closer interface {
	Close()
}

// nopCloser is the Closer for synchronous mode.
type nopCloser struct{}

func (nopCloser) Close() {}

// queued pairs a record with the handler that must format it, so attributes
// added via WithAttrs survive the hand-off to the worker.
type queued struct {
	h   slog.Handler
	rec slog.Record
}

// asyncCore is the queue and worker pool shared by an AsyncHandler and all
// its WithAttrs/WithGroup clones.
type asyncCore struct {
	queue   chan queued
	wg      sync.WaitGroup
	dropped atomic.Int64
}

func (c *asyncCore) drain() {
	defer c.wg.Done()
	for q := range c.queue {
		_ = q.h.Handle(context.Background(), q.rec)
	}
}

// AsyncHandler decouples log emission from request latency: Handle enqueues
// and returns immediately, workers do the formatting and writing. When the
// queue is full the record is dropped rather than blocking the caller.
type AsyncHandler struct {
	inner slog.Handler
	core  *asyncCore
}

// NewAsyncHandler wraps inner with a queue of the given size drained by the
// given number of workers.
func NewAsyncHandler(inner slog.Handler, queueSize, workers int) *AsyncHandler {
	core := &asyncCore{queue: make(chan queued, queueSize)}
	for range workers {
		core.wg.Add(1)
		go core.drain()
	}
	return &AsyncHandler{inner: inner, core: core}
}

// Enabled delegates to the wrapped handler.
func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle enqueues the record, dropping it when the queue is full.
func (h *AsyncHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	select {
	case h.core.queue <- queued{h: h.inner, rec: rec}:
	default:
		h.core.dropped.Add(1)
	}
	return nil
}

// WithAttrs returns a clone sharing the queue and workers.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithAttrs(attrs), core: h.core}
}

// WithGroup returns a clone sharing the queue and workers.
func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithGroup(name), core: h.core}
}

// DroppedCount reports how many records were discarded on a full queue.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.core.dropped.Load()
}

// Close stops intake and waits for the workers to drain the queue. Must be
// called exactly once, on the handler returned by NewAsyncHandler.
func (h *AsyncHandler) Close() {
	close(h.core.queue)
	h.core.wg.Wait()
}
