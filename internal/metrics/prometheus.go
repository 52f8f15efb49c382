// Package metrics provides Prometheus metrics for the winget source.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight prometheus.Gauge
	searchResults    prometheus.Histogram
	manifestLookups  *prometheus.CounterVec
	hashedBytes      prometheus.Counter
	integrityChecks  *prometheus.CounterVec
}

// New registers the metrics with reg, which also backs Handler.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		gatherer: reg,
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wingetpro_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wingetpro_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method", "route"},
		),
		requestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "wingetpro_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
		),
		searchResults: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "wingetpro_search_results",
				Help:    "Number of packages returned per manifest search",
				Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
			},
		),
		manifestLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wingetpro_manifest_lookups_total",
				Help: "Manifest resolutions by outcome (found, absent)",
			},
			[]string{"outcome"},
		),
		hashedBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "wingetpro_installer_hashed_bytes_total",
				Help: "Bytes of installer content run through SHA-256",
			},
		),
		integrityChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wingetpro_installer_integrity_checks_total",
				Help: "Installer integrity verifications by result",
			},
			[]string{"result"},
		),
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records one finished request. route is the mux path
// template so tenant IDs do not explode label cardinality.
func (m *Metrics) RecordHTTPRequest(method, route string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (m *Metrics) IncRequestsInFlight() {
	if m != nil {
		m.requestsInFlight.Inc()
	}
}

func (m *Metrics) DecRequestsInFlight() {
	if m != nil {
		m.requestsInFlight.Dec()
	}
}

// RecordSearch observes the size of one search result.
func (m *Metrics) RecordSearch(results int) {
	if m != nil {
		m.searchResults.Observe(float64(results))
	}
}

// RecordManifest counts a resolution as found or absent.
func (m *Metrics) RecordManifest(found bool) {
	if m == nil {
		return
	}
	outcome := "absent"
	if found {
		outcome = "found"
	}
	m.manifestLookups.WithLabelValues(outcome).Inc()
}

// RecordHashed adds n bytes to the hashed-bytes counter.
func (m *Metrics) RecordHashed(n int64) {
	if m != nil && n > 0 {
		m.hashedBytes.Add(float64(n))
	}
}

// RecordIntegrityCheck counts one verification.
func (m *Metrics) RecordIntegrityCheck(ok bool) {
	if m == nil {
		return
	}
	result := "mismatch"
	if ok {
		result = "ok"
	}
	m.integrityChecks.WithLabelValues(result).Inc()
}
