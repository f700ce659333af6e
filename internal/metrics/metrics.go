// Package metrics holds the Prometheus collectors for record reading,
// translation and delivery.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Skip reasons recorded on RecordsSkipped.
const (
	ReasonUnmappedSeverity = "unmapped_severity"
	ReasonUnformattable    = "unformattable"
	ReasonOther            = "other"
)

// Batch outcomes recorded on Batches and DeliveryDuration.
const (
	OutcomeDelivered = "delivered"
	OutcomeFailed    = "failed"
	OutcomeRejected  = "rejected"
)

// Metrics groups every collector. Create one per process with New and pass
// it to the components that record into it.
type Metrics struct {
	RecordsRead      *prometheus.CounterVec
	RecordsSkipped   *prometheus.CounterVec
	EventsDelivered  *prometheus.CounterVec
	Batches          *prometheus.CounterVec
	DeliveryRetries  *prometheus.CounterVec
	DeliveryDuration *prometheus.HistogramVec
	InFlight         prometheus.Gauge
	DeadLetters      *prometheus.CounterVec
	SourcesRunning   prometheus.Gauge
}

// New registers all collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RecordsRead: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "evtship_records_read_total",
				Help: "Total number of native records read",
			},
			[]string{"source"},
		),
		RecordsSkipped: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "evtship_records_skipped_total",
				Help: "Total number of records skipped because they could not be translated",
			},
			[]string{"source", "reason"},
		),
		EventsDelivered: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "evtship_events_delivered_total",
				Help: "Total number of events acknowledged by the sink",
			},
			[]string{"source"},
		),
		Batches: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "evtship_batches_total",
				Help: "Total number of batches by final delivery outcome",
			},
			[]string{"source", "outcome"},
		),
		DeliveryRetries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "evtship_delivery_retries_total",
				Help: "Total number of delivery retries after transient failures",
			},
			[]string{"source"},
		),
		DeliveryDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "evtship_delivery_duration_seconds",
				Help:    "Time from first attempt to final outcome of a batch, including retries",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
			},
			[]string{"outcome"},
		),
		InFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "evtship_deliveries_in_flight",
				Help: "Number of batches currently being delivered",
			},
		),
		DeadLetters: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "evtship_dead_letter_batches_total",
				Help: "Total number of batches handed to the dead-letter policy",
			},
			[]string{"policy"},
		),
		SourcesRunning: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "evtship_sources_running",
				Help: "Number of live sources with an active pipeline",
			},
		),
	}
}

// Discard returns Metrics registered with a private registry that nothing
// exposes.
func Discard() *Metrics {
	return New(prometheus.NewRegistry())
}
