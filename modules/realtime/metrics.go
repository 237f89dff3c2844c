package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "realtime"

// Metrics holds the realtime collectors. A nil *Metrics records nothing.
type Metrics struct {
	inbound     *prometheus.CounterVec
	outbound    *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	transitions *prometheus.CounterVec
}

// NewMetrics registers the realtime collectors on reg. Connection and
// online-user gauges read the registry at scrape time.
func NewMetrics(reg prometheus.Registerer, registry *Registry) *Metrics {
	m := &Metrics{
		inbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "inbound_events_total",
			Help:      "Inbound websocket events by type and outcome.",
		}, []string{"event", "outcome"}),
		outbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "outbound_frames_total",
			Help:      "Frames queued for delivery by event type.",
		}, []string{"event"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "dropped_frames_total",
			Help:      "Frames dropped because the connection was closed or its queue was full.",
		}, []string{"event"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "presence_transitions_total",
			Help:      "User presence transitions.",
		}, []string{"state"}),
	}

	reg.MustRegister(
		m.inbound,
		m.outbound,
		m.dropped,
		m.transitions,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "connections",
			Help:      "Live websocket connections.",
		}, func() float64 { return float64(registry.ConnectionCount()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "online_users",
			Help:      "Users with at least one live connection.",
		}, func() float64 { return float64(registry.OnlineCount()) }),
	)
	return m
}

func (m *Metrics) inboundEvent(event, outcome string) {
	if m == nil {
		return
	}
	m.inbound.WithLabelValues(event, outcome).Inc()
}

func (m *Metrics) sentFrames(event string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.outbound.WithLabelValues(event).Add(float64(n))
}

func (m *Metrics) droppedFrame(event string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(event).Inc()
}

func (m *Metrics) presence(online bool) {
	if m == nil {
		return
	}
	state := "offline"
	if online {
		state = "online"
	}
	m.transitions.WithLabelValues(state).Inc()
}
