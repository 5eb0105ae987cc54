package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome label values shared by poll, request and API metrics.
const (
	OutcomeSuccess    = "success"
	OutcomeError      = "error"
	OutcomeSuperseded = "superseded"
)

// PollerMetrics holds Prometheus metrics for polling engines.
type PollerMetrics struct {
	Fetches  *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

// NewPollerMetrics creates and registers polling metrics on the given registry.
func NewPollerMetrics(reg prometheus.Registerer) *PollerMetrics {
	m := &PollerMetrics{
		Fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "fetches_total",
			Help:      "Total number of poll fetches by outcome.",
		}, []string{"poller", "outcome"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "fetch_duration_seconds",
			Help:      "Poll fetch latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"poller"}),
	}

	reg.MustRegister(m.Fetches, m.Duration)
	return m
}

// Observe records one fetch.
func (m *PollerMetrics) Observe(poller, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Fetches.WithLabelValues(poller, outcome).Inc()
	m.Duration.WithLabelValues(poller).Observe(d.Seconds())
}

// RequestMetrics holds Prometheus metrics for async request call-sites.
type RequestMetrics struct {
	Calls    *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

// NewRequestMetrics creates and registers request metrics on the given registry.
func NewRequestMetrics(reg prometheus.Registerer) *RequestMetrics {
	m := &RequestMetrics{
		Calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "request",
			Name:      "calls_total",
			Help:      "Total number of request executions by outcome.",
		}, []string{"name", "outcome"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "request",
			Name:      "duration_seconds",
			Help:      "Request execution latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"name"}),
	}

	reg.MustRegister(m.Calls, m.Duration)
	return m
}

// Observe records one execution.
func (m *RequestMetrics) Observe(name, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Calls.WithLabelValues(name, outcome).Inc()
	m.Duration.WithLabelValues(name).Observe(d.Seconds())
}
