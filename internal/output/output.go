// Package output defines sinks that accept batches of canonical events.
package output

import (
	"context"
	"fmt"
	"time"

	"github.com/crimson-sun/evtship/internal/model"
)

// Sink delivers one batch per call. Send performs exactly one outbound
// attempt; retrying is the caller's concern.
type Sink interface {
	Send(ctx context.Context, batch model.EventBatch) error
	Close() error
}

// StatusError reports a non-2xx response from an HTTP sink.
type StatusError struct {
	StatusCode int
	Body       string        // first 512 bytes
	RetryAfter time.Duration // parsed Retry-After, zero when absent
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// Transient reports whether the status is worth retrying: server errors,
// request timeouts and rate limiting.
func (e *StatusError) Transient() bool {
	return e.StatusCode >= 500 || e.StatusCode == 408 || e.StatusCode == 429
}
