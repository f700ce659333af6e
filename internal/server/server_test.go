package server

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crimson-sun/evtship/internal/lifecycle"
	"github.com/crimson-sun/evtship/internal/metrics"
)

func TestHealthz(t *testing.T) {
	tests := []struct {
		state lifecycle.State
		code  int
	}{
		{lifecycle.Idle, http.StatusServiceUnavailable},
		{lifecycle.Running, http.StatusOK},
		{lifecycle.Stopping, http.StatusServiceUnavailable},
		{lifecycle.Stopped, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			s := New(":0", prometheus.NewRegistry(), func() lifecycle.State { return tt.state }, nil)
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.JSONEq(t, fmt.Sprintf(`{"state":%q}`, tt.state.String()), rec.Body.String())
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.EventsDelivered.WithLabelValues("Application").Add(3)

	s := New(":0", reg, func() lifecycle.State { return lifecycle.Running }, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `evtship_events_delivered_total{source="Application"} 3`)
}

func TestMethodNotAllowed(t *testing.T) {
	s := New(":0", prometheus.NewRegistry(), func() lifecycle.State { return lifecycle.Running }, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStartStop(t *testing.T) {
	s := New("127.0.0.1:0", prometheus.NewRegistry(), func() lifecycle.State { return lifecycle.Running }, nil)
	require.NoError(t, s.Start())
	require.NoError(t, s.Stop(context.Background()))
}

func TestStartBindError(t *testing.T) {
	ln := httptest.NewServer(http.NotFoundHandler())
	defer ln.Close()

	s := New(ln.Listener.Addr().String(), prometheus.NewRegistry(), func() lifecycle.State { return lifecycle.Idle }, nil)
	assert.Error(t, s.Start())
}
