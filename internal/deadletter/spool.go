package deadletter

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/crimson-sun/evtship/internal/metrics"
	"github.com/crimson-sun/evtship/internal/model"
	"github.com/crimson-sun/evtship/internal/output/file"
)

const spoolFile = "deadletter.ndjson"

// Spool appends one JSON line per dead batch to {dir}/deadletter.ndjson,
// rotating at maxBytes.
type Spool struct {
	out     *file.Sink
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewSpool opens the spool file under dir.
func NewSpool(dir string, maxBytes int64, log *slog.Logger, m *metrics.Metrics) (*Spool, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: spool policy needs a directory", model.ErrInvalidInput)
	}
	out, err := file.New(filepath.Join(dir, spoolFile), file.WithMaxSize(maxBytes))
	if err != nil {
		return nil, fmt.Errorf("deadletter: %w", err)
	}
	return &Spool{out: out, log: orDiscard(log), metrics: orDiscardMetrics(m)}, nil
}

func (s *Spool) Handle(_ context.Context, batch model.EventBatch, cause error) error {
	entry := NewEntry(batch, cause)
	if err := s.out.Append(entry); err != nil {
		return fmt.Errorf("deadletter: spool batch %s: %w", batch.ID, err)
	}
	s.metrics.DeadLetters.WithLabelValues(PolicySpool).Inc()
	s.log.Warn("spooled undeliverable batch",
		"batch_id", batch.ID, "source", batch.Source.Name, "events", batch.Len(), "reason", entry.Reason, "path", s.out.Path())
	return nil
}

func (s *Spool) Close() error {
	return s.out.Close()
}
