// Package metric exposes prometheus instruments for sockets and devices.
package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "gosp"

// Metrics groups every instrument. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	sent      *prometheus.CounterVec
	received  *prometheus.CounterVec
	dropped   *prometheus.CounterVec
	failures  *prometheus.CounterVec
	endpoints *prometheus.GaugeVec
	pipes     *prometheus.GaugeVec
	forwarded *prometheus.CounterVec
	devFailed *prometheus.CounterVec
	replies   prometheus.Counter
	late      prometheus.Counter
}

// NewMetrics constructs the instruments and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		sent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "socket",
				Name:      "messages_sent_total",
				Help:      "Messages handed to at least one pipe.",
			},
			[]string{"pattern"},
		),
		received: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "socket",
				Name:      "messages_received_total",
				Help:      "Messages returned to a receiver.",
			},
			[]string{"pattern"},
		),
		dropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "socket",
				Name:      "messages_dropped_total",
				Help:      "Messages discarded, by reason.",
			},
			[]string{"pattern", "reason"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "socket",
				Name:      "errors_total",
				Help:      "Failed socket operations, by error kind.",
			},
			[]string{"kind"},
		),
		endpoints: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "socket",
				Name:      "endpoints",
				Help:      "Live endpoints, by role.",
			},
			[]string{"role"},
		),
		pipes: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "socket",
				Name:      "pipes",
				Help:      "Connections that completed the handshake.",
			},
			[]string{"pattern"},
		),
		forwarded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "device",
				Name:      "forwarded_total",
				Help:      "Messages forwarded by a device.",
			},
			[]string{"device"},
		),
		devFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "device",
				Name:      "failures_total",
				Help:      "Devices stopped by a peer failure.",
			},
			[]string{"device"},
		),
		replies: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "survey",
				Name:      "replies_total",
				Help:      "Replies collected before the deadline.",
			},
		),
		late: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "survey",
				Name:      "late_replies_total",
				Help:      "Replies discarded for arriving after the deadline or for an old survey.",
			},
		),
	}
	reg.MustRegister(
		m.sent, m.received, m.dropped, m.failures, m.endpoints,
		m.pipes, m.forwarded, m.devFailed, m.replies, m.late,
	)
	return m
}

func (m *Metrics) MessageSent(pattern string) {
	if m == nil {
		return
	}
	m.sent.WithLabelValues(pattern).Inc()
}

func (m *Metrics) MessageReceived(pattern string) {
	if m == nil {
		return
	}
	m.received.WithLabelValues(pattern).Inc()
}

// MessageDropped counts a discarded message. Reasons are short words such
// as "full", "filtered" or "malformed".
func (m *Metrics) MessageDropped(pattern, reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(pattern, reason).Inc()
}

func (m *Metrics) Failure(kind string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(kind).Inc()
}

// EndpointAdded moves the endpoint gauge of role by delta.
func (m *Metrics) EndpointAdded(role string, delta float64) {
	if m == nil {
		return
	}
	m.endpoints.WithLabelValues(role).Add(delta)
}

func (m *Metrics) PipeAdded(pattern string, delta float64) {
	if m == nil {
		return
	}
	m.pipes.WithLabelValues(pattern).Add(delta)
}

func (m *Metrics) Forwarded(device string) {
	if m == nil {
		return
	}
	m.forwarded.WithLabelValues(device).Inc()
}

func (m *Metrics) DeviceFailed(device string) {
	if m == nil {
		return
	}
	m.devFailed.WithLabelValues(device).Inc()
}

func (m *Metrics) SurveyReply() {
	if m == nil {
		return
	}
	m.replies.Inc()
}

func (m *Metrics) SurveyLate() {
	if m == nil {
		return
	}
	m.late.Inc()
}
