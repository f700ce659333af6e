//go:build windows

package wineventlog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/sys/windows"

	"github.com/crimson-sun/evtship/internal/model"
)

// FileReader reads a saved .evtx log from first to last record through
// EvtQuery. Messages are formatted with the publisher metadata installed
// on this machine.
type FileReader struct {
	path    string
	query   evtHandle
	log     *slog.Logger
	pending []evtHandle
	batch   []evtHandle
	done    bool
	*renderer
}

// OpenFile opens the saved log at path.
func OpenFile(path string, log *slog.Logger) (*FileReader, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("wineventlog: open %s: %w", path, err)
	}
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return nil, fmt.Errorf("wineventlog: %w: path %q: %v", model.ErrInvalidInput, path, err)
	}
	q, _ := windows.UTF16PtrFromString("*")
	h, err := evtQuery(p, q, evtQueryFilePath|evtQueryForwardDirection)
	if err != nil {
		return nil, fmt.Errorf("wineventlog: query %s: %w", path, err)
	}
	log = log.With("reader", "evtx", "path", path)
	return &FileReader{
		path:     path,
		query:    h,
		log:      log,
		batch:    make([]evtHandle, fetchSize),
		renderer: newRenderer(log),
	}, nil
}

// Next returns the next record, or io.EOF after the last one.
func (r *FileReader) Next(ctx context.Context) (model.NativeRecord, error) {
	for {
		if err := ctx.Err(); err != nil {
			return model.NativeRecord{}, err
		}
		if len(r.pending) > 0 {
			h := r.pending[0]
			r.pending = r.pending[1:]
			rec, err := r.convert(h)
			evtClose(h)
			if err != nil {
				r.log.Warn("skipping unrenderable event", "error", err)
				continue
			}
			return rec, nil
		}
		if r.done {
			return model.NativeRecord{}, io.EOF
		}

		n, err := evtNext(r.query, r.batch, windows.INFINITE)
		switch {
		case err == nil:
			r.pending = append(r.pending[:0], r.batch[:n]...)
		case err == windows.ERROR_NO_MORE_ITEMS:
			r.done = true
		default:
			return model.NativeRecord{}, fmt.Errorf("wineventlog: next in %s: %w", r.path, err)
		}
	}
}

// Close releases the query and any unread handles.
func (r *FileReader) Close() error {
	for _, h := range r.pending {
		evtClose(h)
	}
	r.pending = nil
	r.renderer.close()
	evtClose(r.query)
	return nil
}
