// Package seq delivers batches to a Seq server's raw events endpoint.
package seq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/crimson-sun/evtship/internal/model"
	"github.com/crimson-sun/evtship/internal/output"
)

const (
	defaultTimeout = 10 * time.Second
	rawEventsPath  = "/api/events/raw"
	apiKeyHeader   = "X-Seq-ApiKey"
	maxErrorBody   = 512
)

// Option configures a seq Sink.
type Option func(*Sink)

// WithAPIKey sets the API key sent in the X-Seq-ApiKey header.
func WithAPIKey(key string) Option {
	return func(s *Sink) { s.apiKey = key }
}

// WithTimeout sets the HTTP client timeout. Default: 10s.
func WithTimeout(d time.Duration) Option {
	return func(s *Sink) { s.client.Timeout = d }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Sink) { s.client = c }
}

// Sink POSTs each batch as {"Events":[...]} to {server}/api/events/raw.
type Sink struct {
	client *http.Client
	url    string
	apiKey string
}

// New creates a sink for the server at serverURL, e.g. http://localhost:5341.
func New(serverURL string, opts ...Option) *Sink {
	s := &Sink{
		client: &http.Client{Timeout: defaultTimeout},
		url:    strings.TrimRight(serverURL, "/") + rawEventsPath,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send makes a single delivery attempt. Any 2xx is success; other statuses
// return *output.StatusError. Transport failures are returned as-is.
func (s *Sink) Send(ctx context.Context, batch model.EventBatch) error {
	body, err := json.Marshal(batch.Payload())
	if err != nil {
		return fmt.Errorf("seq: %w: marshal: %v", model.ErrDeliveryRejected, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("seq: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set(apiKeyHeader, s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("seq: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &output.StatusError{
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(snippet)),
		RetryAfter: retryAfter(resp.Header.Get("Retry-After")),
	}
}

// Close releases idle connections.
func (s *Sink) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func retryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
