package async

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/crimson-sun/evtship/internal/model"
	"github.com/crimson-sun/evtship/internal/output"
)

const (
	defaultBufferSize   = 64
	defaultDrainTimeout = 5 * time.Second
)

// Option configures an Async wrapper.
type Option func(*Async)

// WithBufferSize sets the number of batches that may wait. Default: 64.
func WithBufferSize(n int) Option {
	return func(a *Async) { a.bufSize = n }
}

// WithLogger sets the logger for drops, timeouts and the default error
// callback. Default: a logger that discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(a *Async) { a.log = l }
}

// WithOnError sets the callback invoked when the inner sink fails.
// Default: logs a warning.
func WithOnError(f func(model.EventBatch, error)) Option {
	return func(a *Async) { a.errFunc = f }
}

// WithDropOnFull makes Send return immediately, dropping the batch, when
// the buffer is full instead of blocking.
func WithDropOnFull() Option {
	return func(a *Async) { a.dropOnFull = true }
}

// WithDrainTimeout bounds how long Close waits for queued batches. Default: 5s.
func WithDrainTimeout(d time.Duration) Option {
	return func(a *Async) { a.drainTimeout = d }
}

// Async hands batches to a background goroutine that writes them to the
// wrapped sink. Send reports only whether the batch was queued; errors of
// the inner sink go to the error callback.
type Async struct {
	inner        output.Sink
	ch           chan model.EventBatch
	done         chan struct{}
	errFunc      func(model.EventBatch, error)
	log          *slog.Logger
	bufSize      int
	dropOnFull   bool
	drainTimeout time.Duration

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// New wraps inner. The drain goroutine starts immediately.
func New(inner output.Sink, opts ...Option) *Async {
	a := &Async{
		inner:        inner,
		bufSize:      defaultBufferSize,
		drainTimeout: defaultDrainTimeout,
		log:          slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.errFunc == nil {
		a.errFunc = func(b model.EventBatch, err error) {
			a.log.Warn("async sink write error", "batch_id", b.ID, "error", err)
		}
	}
	a.ch = make(chan model.EventBatch, a.bufSize)
	a.done = make(chan struct{})
	go a.drain()
	return a
}

// Send queues the batch. It blocks while the buffer is full unless
// WithDropOnFull was given, and gives up when ctx ends. Batches sent after
// Close are dropped.
func (a *Async) Send(ctx context.Context, batch model.EventBatch) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil
	}
	if a.dropOnFull {
		select {
		case a.ch <- batch:
		default:
			a.log.Warn("async sink buffer full, dropping batch",
				"batch_id", batch.ID, "source", batch.Source.Name, "events", batch.Len())
		}
		return nil
	}
	select {
	case a.ch <- batch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting batches, waits for the queue to drain (bounded by
// the drain timeout), then closes the inner sink.
func (a *Async) Close() error {
	var err error
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.ch)
		a.mu.Unlock()
		select {
		case <-a.done:
		case <-time.After(a.drainTimeout):
			a.log.Warn("async sink drain timed out")
		}
		err = a.inner.Close()
	})
	return err
}

func (a *Async) drain() {
	defer close(a.done)
	for batch := range a.ch {
		if err := a.inner.Send(context.Background(), batch); err != nil {
			a.errFunc(batch, err)
		}
	}
}
