// Package metrics exposes Prometheus metrics for the policy location registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds registry counters. Labels stay low-cardinality: status and
// location enums only, never record ids.
type Metrics struct {
	PoliciesRegistered prometheus.Counter
	StatusTransitions  *prometheus.CounterVec
	IllegalTransitions prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		PoliciesRegistered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "policybridge_policies_registered_total",
			Help: "Total location entries appended to the registry.",
		}),
		StatusTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "policybridge_status_transitions_total",
			Help: "Migration status transitions applied, by target status.",
		}, []string{"status"}),
		IllegalTransitions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "policybridge_illegal_transitions_total",
			Help: "Rejected migration status transitions.",
		}),
	}
}
