// Package metrics provides Prometheus metrics for the bot runtime.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the bot runtime. Each instance
// carries its own registry so parallel tests never collide on
// registration.
type Metrics struct {
	registry *prometheus.Registry

	// Turn metrics
	TurnsTotal   *prometheus.CounterVec
	TurnDuration *prometheus.HistogramVec

	// Authentication metrics
	AuthFailuresTotal *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates a Metrics instance registered on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		TurnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "botframe",
			Name:      "turns_total",
			Help:      "Total number of processed turns.",
		}, []string{"channel", "type", "status"}),
		TurnDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "botframe",
			Name:      "turn_duration_seconds",
			Help:      "Turn processing duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"channel", "type"}),
		AuthFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "botframe",
			Name:      "auth_failures_total",
			Help:      "Total number of rejected inbound requests.",
		}, []string{"category"}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "botframe",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "botframe",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}

	m.registry.MustRegister(
		m.TurnsTotal,
		m.TurnDuration,
		m.AuthFailuresTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)

	return m
}

// Handler returns the Prometheus scrape handler for this instance's
// registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordTurn records one processed turn.
func (m *Metrics) RecordTurn(channel, activityType, status string, duration float64) {
	m.TurnsTotal.WithLabelValues(channel, activityType, status).Inc()
	m.TurnDuration.WithLabelValues(channel, activityType).Observe(duration)
}

// RecordAuthFailure records a rejected inbound request by error category.
func (m *Metrics) RecordAuthFailure(category string) {
	m.AuthFailuresTotal.WithLabelValues(category).Inc()
}

// RecordHTTPRequest records an HTTP request metric.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration float64) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}
