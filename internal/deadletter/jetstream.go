package deadletter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/crimson-sun/evtship/internal/metrics"
	"github.com/crimson-sun/evtship/internal/model"
)

// Publisher is the part of jetstream.JetStream used to publish entries.
type Publisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// JetStream publishes each dead batch to {subject}.{reason}. The entry id
// doubles as the message id so a retried publish is deduplicated.
type JetStream struct {
	pub     Publisher
	subject string
	nc      *nats.Conn
	log     *slog.Logger
	metrics *metrics.Metrics
}

// DialJetStream connects to url and makes sure the stream exists.
func DialJetStream(ctx context.Context, url, stream, subject string, log *slog.Logger, m *metrics.Metrics) (*JetStream, error) {
	if url == "" || stream == "" || subject == "" {
		return nil, fmt.Errorf("%w: jetstream policy needs nats_url, stream and subject", model.ErrInvalidInput)
	}
	nc, err := nats.Connect(url, nats.Name("evtship-deadletter"), nats.Timeout(5*time.Second))
	if err != nil {
		return nil, fmt.Errorf("deadletter: connect %s: %w", url, err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("deadletter: jetstream: %w", err)
	}
	if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     stream,
		Subjects: []string{subject + ".>"},
		Storage:  jetstream.FileStorage,
	}); err != nil {
		nc.Close()
		return nil, fmt.Errorf("deadletter: create stream %s: %w", stream, err)
	}
	q := NewJetStream(js, subject, log, m)
	q.nc = nc
	q.log.Info("dead-letter stream ready", "stream", stream, "subject", subject+".>")
	return q, nil
}

// NewJetStream wraps an existing publisher.
func NewJetStream(pub Publisher, subject string, log *slog.Logger, m *metrics.Metrics) *JetStream {
	return &JetStream{pub: pub, subject: subject, log: orDiscard(log), metrics: orDiscardMetrics(m)}
}

func (q *JetStream) Handle(ctx context.Context, batch model.EventBatch, cause error) error {
	entry := NewEntry(batch, cause)
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("deadletter: marshal batch %s: %w", batch.ID, err)
	}
	subject := q.subject + "." + entry.Reason
	ack, err := q.pub.Publish(ctx, subject, data, jetstream.WithMsgID(entry.ID))
	if err != nil {
		return fmt.Errorf("deadletter: publish batch %s: %w", batch.ID, err)
	}
	q.metrics.DeadLetters.WithLabelValues(PolicyJetStream).Inc()
	q.log.Warn("published undeliverable batch",
		"batch_id", batch.ID, "source", batch.Source.Name, "events", batch.Len(), "subject", subject, "seq", ack.Sequence)
	return nil
}

// Close drains the connection when DialJetStream opened it.
func (q *JetStream) Close() error {
	if q.nc == nil {
		return nil
	}
	return q.nc.Drain()
}
