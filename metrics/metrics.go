// Package metrics exposes Prometheus collectors for the booking engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	// TransitionsTotal counts lifecycle operations by action and outcome.
	TransitionsTotal *prometheus.CounterVec

	// ConflictsTotal counts create/edit attempts rejected for overlapping
	// date ranges.
	ConflictsTotal prometheus.Counter

	// NotificationsTotal counts outbound notifications by status.
	NotificationsTotal *prometheus.CounterVec
}

// New creates and registers the collectors on reg. Pass
// prometheus.DefaultRegisterer in production; tests use their own registry
// so repeated construction does not panic on duplicate registration.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TransitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "booking_transitions_total",
				Help:      "Lifecycle operations by action and outcome",
			},
			[]string{"action", "outcome"},
		),
		ConflictsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "booking_conflicts_total",
				Help:      "Requests rejected for overlapping date ranges",
			},
		),
		NotificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "Outbound notifications by status",
			},
			[]string{"status"},
		),
	}
}

// ObserveTransition records one lifecycle operation.
func (m *Metrics) ObserveTransition(action string, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.TransitionsTotal.WithLabelValues(action, outcome).Inc()
}

// ObserveConflict records a rejected overlapping request.
func (m *Metrics) ObserveConflict() {
	m.ConflictsTotal.Inc()
}

// ObserveNotification records an outbound notification attempt.
func (m *Metrics) ObserveNotification(ok bool) {
	status := "sent"
	if !ok {
		status = "failed"
	}
	m.NotificationsTotal.WithLabelValues(status).Inc()
}
