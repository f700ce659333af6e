// Package source turns a command-line path into the ordered list of archived
// event log files to replay.
package source

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/crimson-sun/evtship/internal/model"
)

// DefaultExtension is the archive file extension matched when none is
// configured: binary logs saved by Event Viewer or wevtutil.
const DefaultExtension = ".evtx"

// Resolve returns the archived sources under path. A regular file yields
// exactly one source. A directory yields every file below it, at any depth,
// whose name ends with ext (compared case-insensitively), in walk order.
// Anything else fails with model.ErrInvalidInput.
func Resolve(path, ext string) ([]model.LogSource, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: no path given", model.ErrInvalidInput)
	}
	if ext == "" {
		ext = DefaultExtension
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s is neither a file nor a directory: %v", model.ErrInvalidInput, path, err)
	}
	if info.Mode().IsRegular() {
		return []model.LogSource{archive(path)}, nil
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is neither a file nor a directory", model.ErrInvalidInput, path)
	}

	var sources []model.LogSource
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(d.Name()), ext) {
			sources = append(sources, archive(p))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: walk %s: %v", model.ErrInvalidInput, path, err)
	}
	return sources, nil
}

func archive(path string) model.LogSource {
	return model.LogSource{
		Name:   filepath.Base(path),
		Handle: path,
		Kind:   model.Archive,
	}
}
