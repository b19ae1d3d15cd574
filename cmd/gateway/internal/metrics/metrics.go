package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "option_chain"

// Metrics groups the gateway collectors. A nil *Metrics records nothing.
type Metrics struct {
	connectionsOpen  prometheus.Gauge
	ticks            prometheus.Counter
	ticksSkipped     prometheus.Counter
	framesSent       *prometheus.CounterVec
	framesDropped    prometheus.Counter
	inboundRejected  *prometheus.CounterVec
	sinkPublishError *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connectionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "connections_open",
			Help: "Registered WebSocket connections.",
		}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "ticks_total",
			Help: "Ticks that mutated the chain.",
		}),
		ticksSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "ticks_skipped_total",
			Help: "Ticks skipped for lack of connections.",
		}),
		framesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "frames_sent_total",
			Help: "Frames queued to connections, by frame type.",
		}, []string{"type"}),
		framesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "frames_dropped_total",
			Help: "Frames dropped on a full send queue.",
		}),
		inboundRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "inbound_rejected_total",
			Help: "Inbound frames dropped, by reason.",
		}, []string{"reason"}),
		sinkPublishError: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "sink_publish_errors_total",
			Help: "Tick sink failures, by sink.",
		}, []string{"sink"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.connectionsOpen, m.ticks, m.ticksSkipped, m.framesSent,
			m.framesDropped, m.inboundRejected, m.sinkPublishError,
		)
	}
	return m
}

func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.connectionsOpen.Inc()
	}
}

func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.connectionsOpen.Dec()
	}
}

func (m *Metrics) Tick() {
	if m != nil {
		m.ticks.Inc()
	}
}

func (m *Metrics) TickSkipped() {
	if m != nil {
		m.ticksSkipped.Inc()
	}
}

// FrameSent records a queued frame, or a dropped one when ok is false.
func (m *Metrics) FrameSent(frameType string, ok bool) {
	if m == nil {
		return
	}
	if !ok {
		m.framesDropped.Inc()
		return
	}
	m.framesSent.WithLabelValues(frameType).Inc()
}

func (m *Metrics) InboundRejected(reason string) {
	if m != nil {
		m.inboundRejected.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) SinkError(sink string) {
	if m != nil {
		m.sinkPublishError.WithLabelValues(sink).Inc()
	}
}
