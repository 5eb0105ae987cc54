package metrics

import "github.com/prometheus/client_golang/prometheus"

// RouterMetrics holds Prometheus metrics for the event router.
type RouterMetrics struct {
	Received    prometheus.Counter
	Dispatched  prometheus.Counter
	ParseErrors prometheus.Counter
	Ignored     prometheus.Counter
}

// NewRouterMetrics creates and registers event router metrics on the given registry.
func NewRouterMetrics(reg prometheus.Registerer) *RouterMetrics {
	m := &RouterMetrics{
		Received: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "events_received_total",
			Help:      "Total number of frames handed to the router.",
		}),
		Dispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "events_dispatched_total",
			Help:      "Total number of registration updates applied.",
		}),
		ParseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "parse_errors_total",
			Help:      "Total number of malformed frames dropped.",
		}),
		Ignored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "events_ignored_total",
			Help:      "Total number of events no registration accepted.",
		}),
	}

	reg.MustRegister(m.Received, m.Dispatched, m.ParseErrors, m.Ignored)
	return m
}

func (m *RouterMetrics) IncReceived() {
	if m != nil {
		m.Received.Inc()
	}
}

func (m *RouterMetrics) IncDispatched() {
	if m != nil {
		m.Dispatched.Inc()
	}
}

func (m *RouterMetrics) IncParseErrors() {
	if m != nil {
		m.ParseErrors.Inc()
	}
}

func (m *RouterMetrics) IncIgnored() {
	if m != nil {
		m.Ignored.Inc()
	}
}
