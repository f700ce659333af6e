// Package filetail follows a growing event XML file, such as the output of
// a scheduled "wevtutil qe /f:xml" appended to disk, as a live source.
package filetail

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/crimson-sun/evtship/internal/evtxml"
	"github.com/crimson-sun/evtship/internal/model"
	"github.com/crimson-sun/evtship/internal/reader"
)

const readChunk = 32 * 1024

func init() {
	reader.Register(reader.SchemeFile, func(_ context.Context, target string, opts reader.OpenOptions) (reader.Reader, error) {
		return Open(target, opts)
	})
}

// Reader tails one UTF-8 file. It reads everything already present, then
// blocks on filesystem notifications. An incomplete trailing element is
// kept until the writer finishes it. Records at or below the bookmark are
// skipped; the bookmark advances as records are returned, so a file that is
// truncated or recreated does not replay them.
type Reader struct {
	path    string
	after   uint64
	watcher *fsnotify.Watcher
	log     *slog.Logger

	f      *os.File
	offset int64
	buf    []byte
	pos    int // start of unconsumed bytes in buf
	chunk  []byte
}

// Open starts watching path. The file may not exist yet; the directory must.
func Open(path string, opts reader.OpenOptions) (*Reader, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("filetail: %w: %v", model.ErrInvalidInput, err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("filetail: watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, fmt.Errorf("filetail: %w: watch %s: %v", model.ErrInvalidInput, filepath.Dir(abs), err)
	}
	r := &Reader{
		path:    abs,
		after:   opts.After,
		watcher: w,
		log:     opts.Log().With("reader", "filetail", "path", abs),
		chunk:   make([]byte, readChunk),
	}
	if err := r.reopen(); err != nil && !errors.Is(err, os.ErrNotExist) {
		w.Close()
		return nil, err
	}
	return r, nil
}

// Next returns the next complete record past the bookmark.
func (r *Reader) Next(ctx context.Context) (model.NativeRecord, error) {
	for {
		if err := ctx.Err(); err != nil {
			return model.NativeRecord{}, err
		}

		if rec, ok := r.take(); ok {
			return rec, nil
		}

		grew, err := r.fill()
		if err != nil {
			return model.NativeRecord{}, err
		}
		if grew {
			continue
		}

		if err := r.wait(ctx); err != nil {
			return model.NativeRecord{}, err
		}
	}
}

// take pops complete fragments from the buffer until one yields a record
// that is past the bookmark.
func (r *Reader) take() (model.NativeRecord, bool) {
	for {
		start, end, ok := evtxml.NextFragment(r.buf[r.pos:])
		if !ok {
			// Drop leading noise but keep a partial element.
			r.pos += start
			return model.NativeRecord{}, false
		}
		frag := r.buf[r.pos+start : r.pos+end]
		r.pos += end
		rec, err := evtxml.Parse(frag)
		if err != nil {
			r.log.Warn("skipping malformed event", "error", err)
			continue
		}
		if rec.RecordID != 0 && rec.RecordID <= r.after {
			continue
		}
		if rec.RecordID > r.after {
			r.after = rec.RecordID
		}
		return rec, true
	}
}

// fill reads at most one chunk of whatever has been appended since the last
// read. It reports whether any bytes arrived.
func (r *Reader) fill() (bool, error) {
	if r.f == nil {
		return false, nil
	}
	if info, err := r.f.Stat(); err == nil && info.Size() < r.offset {
		r.log.Info("file truncated, reading from start")
		if err := r.reopen(); err != nil {
			return false, err
		}
	}
	r.compact()
	n, err := r.f.Read(r.chunk)
	if n > 0 {
		r.buf = append(r.buf, r.chunk[:n]...)
		r.offset += int64(n)
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return n > 0, fmt.Errorf("filetail: read %s: %w", r.path, err)
	}
	return n > 0, nil
}

// compact drops consumed bytes once they make up more than half the buffer.
func (r *Reader) compact() {
	switch {
	case r.pos == len(r.buf):
		r.buf, r.pos = r.buf[:0], 0
	case r.pos > len(r.buf)/2:
		n := copy(r.buf, r.buf[r.pos:])
		r.buf, r.pos = r.buf[:n], 0
	}
}

// wait blocks until the file changes or ctx is done.
func (r *Reader) wait(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return fmt.Errorf("filetail: watcher closed")
			}
			r.log.Warn("watch error", "error", err)
		case ev, ok := <-r.watcher.Events:
			if !ok {
				return fmt.Errorf("filetail: watcher closed")
			}
			if filepath.Clean(ev.Name) != r.path {
				continue
			}
			switch {
			case ev.Has(fsnotify.Create):
				if err := r.reopen(); err != nil && !errors.Is(err, os.ErrNotExist) {
					return err
				}
				return nil
			case ev.Has(fsnotify.Write):
				if r.f == nil {
					if err := r.reopen(); err != nil && !errors.Is(err, os.ErrNotExist) {
						return err
					}
				}
				return nil
			case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
				r.log.Info("file moved away, waiting for it to reappear")
				r.closeFile()
			}
		}
	}
}

// reopen opens the file from its start, discarding buffered bytes.
func (r *Reader) reopen() error {
	r.closeFile()
	f, err := os.Open(r.path)
	if err != nil {
		return fmt.Errorf("filetail: open %s: %w", r.path, err)
	}
	r.f = f
	r.offset = 0
	r.buf, r.pos = r.buf[:0], 0
	return nil
}

func (r *Reader) closeFile() {
	if r.f != nil {
		r.f.Close()
		r.f = nil
	}
}

// Close stops watching and closes the file.
func (r *Reader) Close() error {
	r.closeFile()
	return r.watcher.Close()
}
