// Package stdout writes batches as NDJSON for dry runs.
package stdout

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/crimson-sun/evtship/internal/model"
)

// Sink writes JSON-encoded canonical events, one per line.
type Sink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// New creates a Sink writing to os.Stdout, optionally pretty-printed.
func New(pretty bool) *Sink {
	return NewWriter(os.Stdout, pretty)
}

// NewWriter creates a Sink writing to w.
func NewWriter(w io.Writer, pretty bool) *Sink {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return &Sink{enc: enc}
}

func (s *Sink) Send(_ context.Context, batch model.EventBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range batch.Events {
		if err := s.enc.Encode(ev); err != nil {
			return fmt.Errorf("stdout output: %w", err)
		}
	}
	return nil
}

func (s *Sink) Close() error {
	return nil
}
