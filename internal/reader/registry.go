package reader

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/crimson-sun/evtship/internal/model"
)

// Scheme names used by the built-in readers.
const (
	SchemeArchive     = "archive"
	SchemeFile        = "file"
	SchemeWinEventLog = "wineventlog"
)

// Constructor opens a reader for target, the source handle with any scheme
// prefix removed.
type Constructor func(ctx context.Context, target string, opts OpenOptions) (Reader, error)

var (
	mu       sync.RWMutex
	registry = map[string]Constructor{}
)

// Register adds a reader constructor under the given scheme.
func Register(scheme string, ctor Constructor) {
	mu.Lock()
	defer mu.Unlock()
	registry[scheme] = ctor
}

// Get returns the reader constructor for the given scheme.
func Get(scheme string) (Constructor, error) {
	mu.RLock()
	defer mu.RUnlock()
	ctor, ok := registry[scheme]
	if !ok {
		return nil, fmt.Errorf("%w: no reader for scheme %q", model.ErrInvalidInput, scheme)
	}
	return ctor, nil
}

// Schemes returns the registered scheme names, sorted.
func Schemes() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Split resolves a source to its scheme and target. Archived sources always
// use the archive scheme. A live handle of the form "scheme:target" uses the
// named scheme when one is registered; anything else is a Windows channel
// name.
func Split(src model.LogSource) (scheme, target string) {
	if src.Kind == model.Archive {
		return SchemeArchive, src.Handle
	}
	if prefix, rest, ok := strings.Cut(src.Handle, ":"); ok && prefix != SchemeArchive {
		mu.RLock()
		_, known := registry[prefix]
		mu.RUnlock()
		if known || prefix == SchemeWinEventLog {
			return prefix, rest
		}
	}
	return SchemeWinEventLog, src.Handle
}

// Open opens a reader for src using the constructor registered for its scheme.
func Open(ctx context.Context, src model.LogSource, opts OpenOptions) (Reader, error) {
	scheme, target := Split(src)
	ctor, err := Get(scheme)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", src.Name, err)
	}
	if target == "" {
		return nil, fmt.Errorf("open %s: %w: empty %s target", src.Name, model.ErrInvalidInput, scheme)
	}
	r, err := ctor(ctx, target, opts)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", src.Name, err)
	}
	return r, nil
}
