// Package pipeline moves records from a reader through translation into
// batches and hands them to the dispatcher.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/crimson-sun/evtship/internal/deadletter"
	"github.com/crimson-sun/evtship/internal/metrics"
	"github.com/crimson-sun/evtship/internal/model"
)

const (
	defaultBatchSize     = 100
	defaultFlushInterval = 2 * time.Second
	defaultDrainTimeout  = 30 * time.Second
)

// Processor translates one native record. *engine.Engine implements it.
type Processor interface {
	Process(rec model.NativeRecord, src model.LogSource) (model.CanonicalEvent, error)
}

// Deliverer sends one batch to the sink. *dispatch.Dispatcher implements it.
type Deliverer interface {
	Deliver(ctx context.Context, batch model.EventBatch) error
}

// Committer persists bookmarks. *bookmark.Store implements it.
type Committer interface {
	Commit(source string, recordID uint64) error
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithBatchSize sets the number of events per batch. Default: 100.
func WithBatchSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithFlushInterval bounds how long a partial live batch waits. Default: 2s.
func WithFlushInterval(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.flushInterval = d
		}
	}
}

// WithDrainTimeout bounds the final flush after a stop. Default: 30s.
func WithDrainTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.drainTimeout = d
		}
	}
}

// WithLogger sets the logger. Default: discard.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// WithMetrics records read and skip counts into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithDeadLetter sets the handler for batches that fail in Stream.
// Default: drop.
func WithDeadLetter(h deadletter.Handler) Option {
	return func(p *Pipeline) { p.deadLetter = h }
}

// WithBookmarks makes Stream commit the last record id of each handled batch.
func WithBookmarks(c Committer) Option {
	return func(p *Pipeline) { p.bookmarks = c }
}

// Pipeline connects a translator and a dispatcher. One Pipeline may serve
// many sources; Replay and Stream keep all per-source state on the stack.
type Pipeline struct {
	engine     Processor
	dispatcher Deliverer

	batchSize     int
	flushInterval time.Duration
	drainTimeout  time.Duration

	log        *slog.Logger
	metrics    *metrics.Metrics
	deadLetter deadletter.Handler
	bookmarks  Committer
}

// New creates a Pipeline from the given components.
func New(eng Processor, d Deliverer, opts ...Option) *Pipeline {
	p := &Pipeline{
		engine:        eng,
		dispatcher:    d,
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
		drainTimeout:  defaultDrainTimeout,
		log:           slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics = metrics.Discard()
	}
	if p.deadLetter == nil {
		p.deadLetter = deadletter.NewDrop(p.log, p.metrics)
	}
	return p
}

// translate converts rec, logging and counting records that must be skipped.
func (p *Pipeline) translate(rec model.NativeRecord, src model.LogSource) (model.CanonicalEvent, bool) {
	p.metrics.RecordsRead.WithLabelValues(src.Name).Inc()
	ev, err := p.engine.Process(rec, src)
	if err == nil {
		return ev, true
	}
	reason := metrics.ReasonOther
	switch {
	case errors.Is(err, model.ErrUnmappedSeverity):
		reason = metrics.ReasonUnmappedSeverity
	case errors.Is(err, model.ErrUnformattableRecord):
		reason = metrics.ReasonUnformattable
	}
	p.metrics.RecordsSkipped.WithLabelValues(src.Name, reason).Inc()
	p.log.Warn("skipping record", "source", src.Name, "record_id", rec.RecordID, "reason", reason, "error", err)
	return model.CanonicalEvent{}, false
}
