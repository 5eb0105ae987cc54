package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// APIMetrics holds Prometheus metrics for the remote API client.
type APIMetrics struct {
	Requests  *prometheus.CounterVec
	Duration  *prometheus.HistogramVec
	Refreshes *prometheus.CounterVec
}

// NewAPIMetrics creates and registers API client metrics on the given registry.
func NewAPIMetrics(reg prometheus.Registerer) *APIMetrics {
	m := &APIMetrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total number of API round trips by method and status class.",
		}, []string{"method", "status"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "API round trip latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "credential_refreshes_total",
			Help:      "Total number of credential refreshes triggered by 401 responses.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(m.Requests, m.Duration, m.Refreshes)
	return m
}

// ObserveRequest records one round trip. A zero status means the request
// never produced a response.
func (m *APIMetrics) ObserveRequest(method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(method, StatusClass(status)).Inc()
	m.Duration.WithLabelValues(method).Observe(d.Seconds())
}

// ObserveRefresh records a credential refresh outcome.
func (m *APIMetrics) ObserveRefresh(outcome string) {
	if m == nil {
		return
	}
	m.Refreshes.WithLabelValues(outcome).Inc()
}

// StatusClass maps an HTTP status to "2xx", "4xx", etc. Zero maps to "none".
func StatusClass(status int) string {
	if status <= 0 {
		return "none"
	}
	return strconv.Itoa(status/100) + "xx"
}
