// Package metrics holds the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "taq"

// Metrics groups the counters updated by the reconciler, onboarding and API layer.
type Metrics struct {
	Reconciliations *prometheus.CounterVec
	IdentityRetries prometheus.Counter
	Onboarding      *prometheus.CounterVec
	Logouts         *prometheus.CounterVec
	Payments        *prometheus.CounterVec
	Sessions        prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Reconciliations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "reconciliations_total",
				Help:      "Reconciliation attempts by outcome (found, missing, error, exhausted, discarded).",
			},
			[]string{"outcome"},
		),
		IdentityRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "identity_retries_total",
			Help:      "Retries spent waiting for the identity provider to populate an identity.",
		}),
		Onboarding: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "onboarding",
				Name:      "submissions_total",
				Help:      "Onboarding submissions by result (created, existing, rejected, failed).",
			},
			[]string{"result"},
		),
		Logouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "logouts_total",
				Help:      "Logouts by provider result (ok, provider_error).",
			},
			[]string{"result"},
		),
		Payments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "payments",
				Name:      "demo_total",
				Help:      "Demo payments by result (sent, failed).",
			},
			[]string{"result"},
		),
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Sessions currently held in memory.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.Reconciliations,
			m.IdentityRetries,
			m.Onboarding,
			m.Logouts,
			m.Payments,
			m.Sessions,
		)
	}

	return m
}
