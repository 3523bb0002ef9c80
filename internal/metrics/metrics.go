// Package metrics holds the Prometheus collectors shared by the router, the
// WebSocket upgrade middleware and the HTTP transport.
//
// A nil *Metrics is valid and records nothing, so components can take an
// optional collector without guarding every call site.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "switchboard"

// Dispatch outcomes
const (
	OutcomeRoute    = "route"
	OutcomeFallback = "fallback"
)

// Handshake results
const (
	HandshakeAccepted = "accepted"
	HandshakeRejected = "rejected"
)

// Session outcomes
const (
	SessionCompleted = "completed"
	SessionFailed    = "failed"
)

// Metrics tracks dispatch and WebSocket upgrade activity
type Metrics struct {
	dispatches     *prometheus.CounterVec
	handshakes     *prometheus.CounterVec
	sessions       *prometheus.CounterVec
	activeSessions prometheus.Gauge
}

// New creates the collectors and registers them with reg.
// A nil registerer falls back to the Prometheus default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		dispatches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "dispatches_total",
			Help:      "Requests dispatched by the router, by outcome.",
		}, []string{"method", "outcome"}),
		handshakes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "handshakes_total",
			Help:      "WebSocket opening handshakes, by result and rejection reason.",
		}, []string{"result", "reason"}),
		sessions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "sessions_total",
			Help:      "Upgraded WebSocket sessions that finished, by outcome.",
		}, []string{"outcome"}),
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "active_sessions",
			Help:      "Upgraded WebSocket sessions currently running.",
		}),
	}
}

// RecordDispatch records one routed request
func (m *Metrics) RecordDispatch(method string, fallback bool) {
	if m == nil {
		return
	}
	outcome := OutcomeRoute
	if fallback {
		outcome = OutcomeFallback
	}
	m.dispatches.WithLabelValues(method, outcome).Inc()
}

// RecordHandshake records an accepted handshake, or a rejected one when
// reason is not empty
func (m *Metrics) RecordHandshake(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		m.handshakes.WithLabelValues(HandshakeAccepted, "").Inc()
		return
	}
	m.handshakes.WithLabelValues(HandshakeRejected, reason).Inc()
}

// SessionStarted marks a background session as running
func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

// SessionFinished marks a background session as done
func (m *Metrics) SessionFinished(err error) {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
	if err != nil {
		m.sessions.WithLabelValues(SessionFailed).Inc()
		return
	}
	m.sessions.WithLabelValues(SessionCompleted).Inc()
}
