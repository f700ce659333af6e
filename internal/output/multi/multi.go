package multi

import (
	"context"
	"errors"
	"log/slog"

	"github.com/crimson-sun/evtship/internal/model"
	"github.com/crimson-sun/evtship/internal/output"
)

// Tee sends each batch to a primary sink and, once the primary accepted it,
// to every mirror. Only the primary decides the outcome of Send; mirror
// failures are logged so a broken mirror never causes a redelivery.
type Tee struct {
	primary output.Sink
	mirrors []output.Sink
	log     *slog.Logger
}

// New creates a Tee. A nil logger discards mirror errors.
func New(log *slog.Logger, primary output.Sink, mirrors ...output.Sink) *Tee {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Tee{primary: primary, mirrors: mirrors, log: log}
}

// Send delivers to the primary, then to each mirror sequentially.
func (t *Tee) Send(ctx context.Context, batch model.EventBatch) error {
	if err := t.primary.Send(ctx, batch); err != nil {
		return err
	}
	for i, m := range t.mirrors {
		if err := m.Send(ctx, batch); err != nil {
			t.log.Warn("mirror write failed", "mirror", i, "batch_id", batch.ID, "error", err)
		}
	}
	return nil
}

// Close calls Close on every wrapped sink, collecting errors.
func (t *Tee) Close() error {
	errs := []error{t.primary.Close()}
	for _, m := range t.mirrors {
		errs = append(errs, m.Close())
	}
	return errors.Join(errs...)
}
