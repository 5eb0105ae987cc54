package metrics

import "github.com/prometheus/client_golang/prometheus"

// ConnectionMetrics holds Prometheus metrics for the push channel.
type ConnectionMetrics struct {
	State            *prometheus.GaugeVec
	Reconnects       prometheus.Counter
	MessagesReceived prometheus.Counter
	SendFailures     prometheus.Counter
}

// NewConnectionMetrics creates and registers push channel metrics on the given registry.
func NewConnectionMetrics(reg prometheus.Registerer) *ConnectionMetrics {
	m := &ConnectionMetrics{
		State: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "state",
			Help:      "Current push channel state (1 for the active state, 0 otherwise).",
		}, []string{"state"}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "reconnects_scheduled_total",
			Help:      "Total number of scheduled reconnection attempts.",
		}),
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "messages_received_total",
			Help:      "Total number of inbound push frames.",
		}),
		SendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "send_failures_total",
			Help:      "Total number of outbound frames that could not be written.",
		}),
	}

	reg.MustRegister(m.State, m.Reconnects, m.MessagesReceived, m.SendFailures)
	return m
}

// SetState marks current as the only active state among all.
func (m *ConnectionMetrics) SetState(current string, all ...string) {
	if m == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1
		}
		m.State.WithLabelValues(s).Set(v)
	}
}

// IncReconnects counts a scheduled reconnection.
func (m *ConnectionMetrics) IncReconnects() {
	if m == nil {
		return
	}
	m.Reconnects.Inc()
}

// IncReceived counts an inbound frame.
func (m *ConnectionMetrics) IncReceived() {
	if m == nil {
		return
	}
	m.MessagesReceived.Inc()
}

// IncSendFailures counts a failed write.
func (m *ConnectionMetrics) IncSendFailures() {
	if m == nil {
		return
	}
	m.SendFailures.Inc()
}
