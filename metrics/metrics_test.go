package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveLookup(true, 3, "", 2, time.Second)
		m.AddAnomalies(2)
		m.BatchStarted()("completed")
		m.ObserveDelivery("webhook", nil)
		m.ObserveHTTP("GET", "/x", "200", time.Millisecond)
	})
}

func TestObserveLookup(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveLookup(true, 4, "", 1, time.Second)
	m.ObserveLookup(false, 0, "NAVIGATION_TIMEOUT", 0, time.Second)
	m.ObserveLookup(false, 0, "", 5, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.LookupsTotal.WithLabelValues("found", "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LookupsTotal.WithLabelValues("not_found", "NAVIGATION_TIMEOUT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LookupsTotal.WithLabelValues("not_found", "")))
}

func TestBatchStarted(t *testing.T) {
	m := New(prometheus.NewRegistry())

	done := m.BatchStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BatchesInFlight))
	done("completed")
	assert.Equal(t, 0.0, testutil.ToFloat64(m.BatchesInFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BatchesTotal.WithLabelValues("completed")))

	m.ObserveDelivery("kafka", errors.New("down"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SinkDeliveriesTotal.WithLabelValues("kafka", "error")))
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.AddAnomalies(3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "maprank_parse_anomalies_total 3")
}
