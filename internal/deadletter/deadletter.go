// Package deadletter decides what happens to a batch that could not be
// delivered in service mode: drop it, spool it to disk, or publish it to a
// NATS JetStream stream for later replay.
package deadletter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/crimson-sun/evtship/internal/metrics"
	"github.com/crimson-sun/evtship/internal/model"
)

// Policy names accepted in configuration.
const (
	PolicyDrop      = "drop"
	PolicySpool     = "spool"
	PolicyJetStream = "jetstream"
)

// Reasons attached to an Entry.
const (
	ReasonFailed   = "failed"
	ReasonRejected = "rejected"
)

// Handler takes ownership of an undeliverable batch. Once Handle returns
// nil the batch counts as handled and the source's bookmark may advance.
type Handler interface {
	Handle(ctx context.Context, batch model.EventBatch, cause error) error
	Close() error
}

// Entry is the record written for one dead batch.
type Entry struct {
	ID           string                 `json:"id"`
	BatchID      string                 `json:"batch_id"`
	Source       string                 `json:"source"`
	Handle       string                 `json:"handle"`
	Reason       string                 `json:"reason"`
	Error        string                 `json:"error"`
	FailedAt     time.Time              `json:"failed_at"`
	LastRecordID uint64                 `json:"last_record_id,omitempty"`
	Events       []model.CanonicalEvent `json:"events"`
}

// NewEntry builds the entry for batch. The reason is derived from cause.
func NewEntry(batch model.EventBatch, cause error) Entry {
	reason := ReasonFailed
	if errors.Is(cause, model.ErrDeliveryRejected) {
		reason = ReasonRejected
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return Entry{
		ID:           uuid.NewString(),
		BatchID:      batch.ID,
		Source:       batch.Source.Name,
		Handle:       batch.Source.Handle,
		Reason:       reason,
		Error:        msg,
		FailedAt:     time.Now().UTC(),
		LastRecordID: batch.LastRecordID,
		Events:       batch.Events,
	}
}

// Drop logs and discards the batch.
type Drop struct {
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewDrop creates the drop policy.
func NewDrop(log *slog.Logger, m *metrics.Metrics) *Drop {
	return &Drop{log: orDiscard(log), metrics: orDiscardMetrics(m)}
}

func (d *Drop) Handle(_ context.Context, batch model.EventBatch, cause error) error {
	d.metrics.DeadLetters.WithLabelValues(PolicyDrop).Inc()
	d.log.Error("dropping undeliverable batch",
		"batch_id", batch.ID, "source", batch.Source.Name, "events", batch.Len(), "error", cause)
	return nil
}

func (d *Drop) Close() error { return nil }

// Options configures New.
type Options struct {
	Policy string

	SpoolDir     string
	MaxFileBytes int64

	NATSURL string
	Stream  string
	Subject string

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// New builds the handler for opts.Policy. An empty policy means drop.
func New(ctx context.Context, opts Options) (Handler, error) {
	switch opts.Policy {
	case "", PolicyDrop:
		return NewDrop(opts.Logger, opts.Metrics), nil
	case PolicySpool:
		return NewSpool(opts.SpoolDir, opts.MaxFileBytes, opts.Logger, opts.Metrics)
	case PolicyJetStream:
		return DialJetStream(ctx, opts.NATSURL, opts.Stream, opts.Subject, opts.Logger, opts.Metrics)
	default:
		return nil, fmt.Errorf("%w: unknown dead-letter policy %q", model.ErrInvalidInput, opts.Policy)
	}
}

func orDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.New(slog.DiscardHandler)
	}
	return l
}

func orDiscardMetrics(m *metrics.Metrics) *metrics.Metrics {
	if m == nil {
		return metrics.Discard()
	}
	return m
}
