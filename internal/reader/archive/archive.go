// Package archive reads previously exported event log files from start to end.
// Files ending in .evtx are binary logs saved by Event Viewer or wevtutil;
// anything else is read as rendered event XML.
package archive

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/crimson-sun/evtship/internal/evtxml"
	"github.com/crimson-sun/evtship/internal/model"
	"github.com/crimson-sun/evtship/internal/reader"
)

// ExtEVTX is the extension of binary event log files.
const ExtEVTX = ".evtx"

func init() {
	reader.Register(reader.SchemeArchive, func(_ context.Context, target string, opts reader.OpenOptions) (reader.Reader, error) {
		return Open(target, opts.Log())
	})
}

// Open picks the reader for path by its extension. Neither kind has a
// resume point: every Open starts at the first record.
func Open(path string, log *slog.Logger) (reader.Reader, error) {
	if IsEVTX(path) {
		return openEVTX(path, log)
	}
	return OpenXML(path)
}

// IsEVTX reports whether path names a binary event log file.
func IsEVTX(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ExtEVTX)
}

// Reader decodes records sequentially from an XML export file.
type Reader struct {
	path string
	f    *os.File
	dec  *evtxml.Decoder
	n    int
}

// OpenXML opens the XML export file at path.
func OpenXML(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", path, err)
	}
	return &Reader{
		path: path,
		f:    f,
		dec:  evtxml.NewDecoder(bufio.NewReaderSize(f, 64*1024)),
	}, nil
}

// Next returns the next record, or io.EOF after the last one.
func (r *Reader) Next(ctx context.Context) (model.NativeRecord, error) {
	if err := ctx.Err(); err != nil {
		return model.NativeRecord{}, err
	}
	rec, err := r.dec.Next()
	if errors.Is(err, io.EOF) {
		return model.NativeRecord{}, io.EOF
	}
	if err != nil {
		return model.NativeRecord{}, fmt.Errorf("archive: %s record %d: %w", r.path, r.n+1, err)
	}
	r.n++
	return rec, nil
}

// Close closes the file.
func (r *Reader) Close() error {
	return r.f.Close()
}
