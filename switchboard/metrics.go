// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package switchboard

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the switchboard's Prometheus collectors. A nil *Metrics
// records nothing.
type Metrics struct {
	waiting        prometheus.Gauge
	responders     prometheus.Gauge
	activeSessions prometheus.Gauge
	connections    prometheus.Gauge

	messages *prometheus.CounterVec
	dropped  *prometheus.CounterVec
	matches  prometheus.Counter
	ended    *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		waiting: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "consult",
			Name:      "waiting_requesters",
			Help:      "Requesters currently in the waiting room.",
		}),
		responders: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "consult",
			Name:      "subscribed_responders",
			Help:      "Responders currently watching the waiting room.",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "consult",
			Name:      "active_sessions",
			Help:      "Consultations currently in progress.",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "consult",
			Name:      "registered_connections",
			Help:      "Connections bound to a participant.",
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "consult",
			Name:      "messages_total",
			Help:      "Inbound messages processed, by type.",
		}, []string{"type"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "consult",
			Name:      "messages_dropped_total",
			Help:      "Inbound messages dropped, by error class.",
		}, []string{"class"}),
		matches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "consult",
			Name:      "matches_total",
			Help:      "Sessions created.",
		}),
		ended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "consult",
			Name:      "sessions_ended_total",
			Help:      "Sessions ended, by reason.",
		}, []string{"reason"}),
	}
	registerer.MustRegister(
		m.waiting,
		m.responders,
		m.activeSessions,
		m.connections,
		m.messages,
		m.dropped,
		m.matches,
		m.ended,
	)
	return m
}

func (m *Metrics) observe(status Status) {
	if m == nil {
		return
	}
	m.waiting.Set(float64(status.Waiting))
	m.responders.Set(float64(status.Responders))
	m.activeSessions.Set(float64(status.ActiveSessions))
	m.connections.Set(float64(status.Connections))
}

// unknownTypeLabel is the messages_total label for every type the
// switchboard does not handle.
const unknownTypeLabel = "unknown"

func (m *Metrics) message(messageType string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(messageType).Inc()
}

func (m *Metrics) drop(class string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(class).Inc()
}

func (m *Metrics) matched() {
	if m == nil {
		return
	}
	m.matches.Inc()
}

func (m *Metrics) sessionEnded(reason EndReason) {
	if m == nil {
		return
	}
	m.ended.WithLabelValues(string(reason)).Inc()
}
