// Package metrics defines the Prometheus collectors for rank lookups, batches
// and the HTTP API, and exposes a handler for scraping.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	LookupsTotal        *prometheus.CounterVec
	LookupCycles        prometheus.Histogram
	LookupDuration      prometheus.Histogram
	ParseAnomaliesTotal prometheus.Counter
	FoundRank           prometheus.Histogram
	BatchesTotal        *prometheus.CounterVec
	BatchesInFlight     prometheus.Gauge
	SinkDeliveriesTotal *prometheus.CounterVec

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with reg. Passing nil uses
// the default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		LookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "maprank_lookups_total",
				Help: "Rank resolutions by outcome (found, not_found) and error code.",
			},
			[]string{"outcome", "code"},
		),
		LookupCycles: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "maprank_lookup_cycles",
				Help:    "Snapshot/scroll cycles consumed per resolution.",
				Buckets: []float64{1, 2, 3, 5, 10, 20, 30, 50, 100},
			},
		),
		LookupDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "maprank_lookup_duration_seconds",
				Help:    "Wall time per resolution in seconds.",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60, 120},
			},
		),
		ParseAnomaliesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "maprank_parse_anomalies_total",
				Help: "Organic feed entries seen without a display name.",
			},
		),
		FoundRank: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "maprank_found_rank",
				Help:    "Ordinal position of found targets.",
				Buckets: []float64{1, 3, 5, 10, 20, 50, 100, 200},
			},
		),
		BatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "maprank_batches_total",
				Help: "Batch runs by terminal status.",
			},
			[]string{"status"},
		),
		BatchesInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "maprank_batches_in_flight",
				Help: "Batches currently running.",
			},
		),
		SinkDeliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "maprank_sink_deliveries_total",
				Help: "Completion deliveries by sink and result.",
			},
			[]string{"sink", "result"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, route, and status.",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
			},
			[]string{"method", "route"},
		),
	}

	reg.MustRegister(
		m.LookupsTotal,
		m.LookupCycles,
		m.LookupDuration,
		m.ParseAnomaliesTotal,
		m.FoundRank,
		m.BatchesTotal,
		m.BatchesInFlight,
		m.SinkDeliveriesTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)

	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	} else {
		m.gatherer = prometheus.DefaultGatherer
	}
	return m
}

// ObserveLookup records one finished resolution.
func (m *Metrics) ObserveLookup(found bool, rank int, code string, cycles int, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "not_found"
	if found {
		outcome = "found"
		m.FoundRank.Observe(float64(rank))
	}
	m.LookupsTotal.WithLabelValues(outcome, code).Inc()
	m.LookupCycles.Observe(float64(cycles))
	m.LookupDuration.Observe(elapsed.Seconds())
}

// AddAnomalies counts entries that lacked a display name.
func (m *Metrics) AddAnomalies(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ParseAnomaliesTotal.Add(float64(n))
}

// BatchStarted marks a batch as running. The returned func records
// its terminal status and must be called exactly once.
func (m *Metrics) BatchStarted() func(status string) {
	if m == nil {
		return func(string) {}
	}
	m.BatchesInFlight.Inc()
	return func(status string) {
		m.BatchesInFlight.Dec()
		m.BatchesTotal.WithLabelValues(status).Inc()
	}
}

// ObserveDelivery records a sink delivery result ("ok" or "error").
func (m *Metrics) ObserveDelivery(sink string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.SinkDeliveriesTotal.WithLabelValues(sink, result).Inc()
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, route, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Handler returns the Prometheus scrape HTTP handler for the registry the
// collectors were registered with.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
