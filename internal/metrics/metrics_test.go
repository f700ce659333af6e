package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordsRead.WithLabelValues("System").Add(3)
	m.RecordsSkipped.WithLabelValues("System", ReasonUnmappedSeverity).Inc()
	m.Batches.WithLabelValues("System", OutcomeDelivered).Inc()
	m.DeliveryDuration.WithLabelValues(OutcomeDelivered).Observe(0.02)
	m.InFlight.Set(1)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.RecordsRead.WithLabelValues("System")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsSkipped.WithLabelValues("System", ReasonUnmappedSeverity)))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	for _, want := range []string{
		"evtship_records_read_total",
		"evtship_records_skipped_total",
		"evtship_batches_total",
		"evtship_delivery_duration_seconds",
		"evtship_deliveries_in_flight",
	} {
		assert.True(t, names[want], want)
	}
}

func TestNew_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		Discard()
		Discard()
	})
}

func TestNew_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
