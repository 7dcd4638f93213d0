// Package metrics holds the relay's Prometheus collectors. All methods are
// safe on a nil *Metrics so callers can run without instrumentation.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles Prometheus collectors for the relay.
type Metrics struct {
	Registry         *prometheus.Registry
	JobsTotal        *prometheus.CounterVec
	PollAttempts     prometheus.Histogram
	ProviderRequests *prometheus.CounterVec
	ProviderDuration *prometheus.HistogramVec
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
}

// New constructs and registers all metrics on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	jobs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_jobs_total",
			Help: "Scrape jobs by terminal outcome.",
		},
		[]string{"outcome"},
	)
	pollAttempts := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_poll_attempts",
			Help:    "Status requests made per submitted job.",
			Buckets: []float64{1, 2, 3, 5, 8, 12, 20, 30, 50},
		},
	)
	providerRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_provider_requests_total",
			Help: "Requests sent to the extraction provider by operation and HTTP status.",
		},
		[]string{"op", "code"},
	)
	providerDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_provider_request_duration_seconds",
			Help:    "Latency of extraction provider requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)
	httpRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_http_requests_total",
			Help: "Inbound HTTP requests by route and status.",
		},
		[]string{"method", "route", "code"},
	)
	httpDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_http_request_duration_seconds",
			Help:    "Inbound HTTP request latency.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 20, 40, 60},
		},
		[]string{"method", "route"},
	)

	registry.MustRegister(jobs, pollAttempts, providerRequests, providerDuration, httpRequests, httpDuration)

	return &Metrics{
		Registry:         registry,
		JobsTotal:        jobs,
		PollAttempts:     pollAttempts,
		ProviderRequests: providerRequests,
		ProviderDuration: providerDuration,
		HTTPRequests:     httpRequests,
		HTTPDuration:     httpDuration,
	}
}

// IncJob counts a job reaching a terminal outcome.
func (m *Metrics) IncJob(outcome string) {
	if m == nil {
		return
	}
	m.JobsTotal.WithLabelValues(outcome).Inc()
}

// ObservePollAttempts records how many status requests a job needed.
func (m *Metrics) ObservePollAttempts(n int) {
	if m == nil {
		return
	}
	m.PollAttempts.Observe(float64(n))
}

// ObserveProvider records one provider request. status 0 means the request
// never got a response.
func (m *Metrics) ObserveProvider(op string, status int, d time.Duration) {
	if m == nil {
		return
	}
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	m.ProviderRequests.WithLabelValues(op, code).Inc()
	m.ProviderDuration.WithLabelValues(op).Observe(d.Seconds())
}

// ObserveHTTP records one inbound request.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
