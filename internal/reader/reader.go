// Package reader defines how native event records are pulled from a log
// source. Concrete readers live in subpackages and register themselves
// under a scheme.
package reader

import (
	"context"
	"log/slog"

	"github.com/crimson-sun/evtship/internal/model"
)

// Reader yields native records from one source, in source order.
type Reader interface {
	// Next returns the next record. Finite readers return io.EOF when the
	// source is exhausted. Live readers block until a record arrives or ctx
	// is cancelled, in which case they return ctx.Err().
	Next(ctx context.Context) (model.NativeRecord, error)

	// Close releases the underlying handle.
	Close() error
}

// OpenOptions are passed to a reader constructor.
type OpenOptions struct {
	// After is the bookmark: live readers skip records whose RecordID is
	// less than or equal to it. Zero reads from the start.
	After uint64

	Logger *slog.Logger
}

// Log returns the configured logger, or one that discards everything.
func (o OpenOptions) Log() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.Logger
}
