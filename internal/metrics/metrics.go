package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "livesync"

// Set bundles every collector group used by the sync core.
type Set struct {
	Connection *ConnectionMetrics
	Router     *RouterMetrics
	Poller     *PollerMetrics
	Request    *RequestMetrics
	API        *APIMetrics
}

// NewRegistry creates a Prometheus registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// NewSet creates and registers every collector group on reg.
func NewSet(reg prometheus.Registerer) *Set {
	return &Set{
		Connection: NewConnectionMetrics(reg),
		Router:     NewRouterMetrics(reg),
		Poller:     NewPollerMetrics(reg),
		Request:    NewRequestMetrics(reg),
		API:        NewAPIMetrics(reg),
	}
}

// Handler returns an http.Handler that serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
