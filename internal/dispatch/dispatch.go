// Package dispatch delivers event batches to a sink with retries and a
// global bound on concurrent deliveries.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/semaphore"

	"github.com/crimson-sun/evtship/internal/metrics"
	"github.com/crimson-sun/evtship/internal/model"
	"github.com/crimson-sun/evtship/internal/output"
)

// Policy controls retrying. It is read-only once the Dispatcher is built.
type Policy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxInFlight    int
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:     5,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		MaxInFlight:    2,
	}
}

// DeliveryError reports a batch that was not delivered. It matches
// model.ErrDeliveryFailed or model.ErrDeliveryRejected with errors.Is, and
// the last underlying error as well.
type DeliveryError struct {
	BatchID  string
	Source   string
	Attempts int
	Kind     error // model.ErrDeliveryFailed or model.ErrDeliveryRejected
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("batch %s from %s: %v after %d attempt(s): %v", e.BatchID, e.Source, e.Kind, e.Attempts, e.Err)
}

func (e *DeliveryError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// Rejected reports whether the sink refused the batch outright.
func (e *DeliveryError) Rejected() bool {
	return errors.Is(e.Kind, model.ErrDeliveryRejected)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger. Default: discard.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.log = l }
}

// WithMetrics records delivery outcomes into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// Dispatcher is shared by all pipelines of a process so that MaxInFlight
// bounds deliveries globally.
type Dispatcher struct {
	sink    output.Sink
	policy  Policy
	sem     *semaphore.Weighted
	log     *slog.Logger
	metrics *metrics.Metrics
}

// New creates a Dispatcher for sink. Zero policy fields take their defaults.
func New(sink output.Sink, policy Policy, opts ...Option) *Dispatcher {
	def := DefaultPolicy()
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if policy.InitialBackoff <= 0 {
		policy.InitialBackoff = def.InitialBackoff
	}
	if policy.MaxBackoff <= 0 {
		policy.MaxBackoff = def.MaxBackoff
	}
	if policy.MaxBackoff < policy.InitialBackoff {
		policy.MaxBackoff = policy.InitialBackoff
	}
	if policy.MaxInFlight <= 0 {
		policy.MaxInFlight = def.MaxInFlight
	}

	d := &Dispatcher{
		sink:   sink,
		policy: policy,
		sem:    semaphore.NewWeighted(int64(policy.MaxInFlight)),
		log:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.metrics == nil {
		d.metrics = metrics.Discard()
	}
	return d
}

// Policy returns the effective policy.
func (d *Dispatcher) Policy() Policy { return d.policy }

// Deliver sends batch, retrying transient failures with exponential
// backoff. It blocks while MaxInFlight deliveries are already running. A
// nil return means the sink acknowledged the batch with a 2xx. Empty
// batches are never sent.
func (d *Dispatcher) Deliver(ctx context.Context, batch model.EventBatch) error {
	if batch.Len() == 0 {
		return nil
	}
	src := batch.Source.Name

	if err := d.sem.Acquire(ctx, 1); err != nil {
		return &DeliveryError{BatchID: batch.ID, Source: src, Kind: model.ErrDeliveryFailed, Err: err}
	}
	defer d.sem.Release(1)
	d.metrics.InFlight.Inc()
	defer d.metrics.InFlight.Dec()

	var (
		attempts int
		rejected bool
		hint     retryHint
	)
	op := func() error {
		attempts++
		err := d.sink.Send(ctx, batch)
		if err == nil {
			return nil
		}
		if !transient(err) {
			rejected = true
			return backoff.Permanent(err)
		}
		hint.observe(err)
		return err
	}

	b := backoff.WithContext(backoff.WithMaxRetries(d.newBackOff(&hint), uint64(d.policy.MaxRetries)), ctx)
	notify := func(err error, wait time.Duration) {
		d.metrics.DeliveryRetries.WithLabelValues(src).Inc()
		d.log.Warn("delivery attempt failed, retrying",
			"batch_id", batch.ID, "source", src, "attempt", attempts, "wait", wait, "error", err)
	}

	start := time.Now()
	err := backoff.RetryNotify(op, b, notify)
	elapsed := time.Since(start).Seconds()

	switch {
	case err == nil:
		d.metrics.DeliveryDuration.WithLabelValues(metrics.OutcomeDelivered).Observe(elapsed)
		d.metrics.Batches.WithLabelValues(src, metrics.OutcomeDelivered).Inc()
		d.metrics.EventsDelivered.WithLabelValues(src).Add(float64(batch.Len()))
		d.log.Debug("batch delivered", "batch_id", batch.ID, "source", src, "events", batch.Len(), "attempts", attempts)
		return nil
	case rejected:
		d.metrics.DeliveryDuration.WithLabelValues(metrics.OutcomeRejected).Observe(elapsed)
		d.metrics.Batches.WithLabelValues(src, metrics.OutcomeRejected).Inc()
		return &DeliveryError{BatchID: batch.ID, Source: src, Attempts: attempts, Kind: model.ErrDeliveryRejected, Err: err}
	default:
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w (last error: %v)", ctxErr, err)
		}
		d.metrics.DeliveryDuration.WithLabelValues(metrics.OutcomeFailed).Observe(elapsed)
		d.metrics.Batches.WithLabelValues(src, metrics.OutcomeFailed).Inc()
		return &DeliveryError{BatchID: batch.ID, Source: src, Attempts: attempts, Kind: model.ErrDeliveryFailed, Err: err}
	}
}

func (d *Dispatcher) newBackOff(hint *retryHint) backoff.BackOff {
	exp := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(d.policy.InitialBackoff),
		backoff.WithMaxInterval(d.policy.MaxBackoff),
		backoff.WithMaxElapsedTime(0),
	)
	return &hintedBackOff{BackOff: exp, hint: hint, max: d.policy.MaxBackoff}
}

// transient classifies a sink error. Status errors follow their code;
// transport errors and everything else not explicitly rejected are retried.
func transient(err error) bool {
	if errors.Is(err, model.ErrDeliveryRejected) {
		return false
	}
	var se *output.StatusError
	if errors.As(err, &se) {
		return se.Transient()
	}
	return true
}

// retryHint remembers a server-requested delay from the last failure.
type retryHint struct {
	after time.Duration
}

func (h *retryHint) observe(err error) {
	h.after = 0
	var se *output.StatusError
	if errors.As(err, &se) {
		h.after = se.RetryAfter
	}
}

// hintedBackOff waits at least as long as the server asked, capped at max.
type hintedBackOff struct {
	backoff.BackOff
	hint *retryHint
	max  time.Duration
}

func (b *hintedBackOff) NextBackOff() time.Duration {
	next := b.BackOff.NextBackOff()
	if next == backoff.Stop {
		return next
	}
	if b.hint.after > next {
		next = min(b.hint.after, b.max)
	}
	return next
}
