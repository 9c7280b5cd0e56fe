// Package metrics exposes Prometheus metrics for migration validation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	ValidationsPassed prometheus.Counter
	ValidationsFailed prometheus.Counter
	RuleFailures      *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		ValidationsPassed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "policybridge_validations_passed_total",
			Help: "Migrations that passed every validation rule.",
		}),
		ValidationsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "policybridge_validations_failed_total",
			Help: "Migrations that failed at least one validation rule.",
		}),
		RuleFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "policybridge_validation_rule_failures_total",
			Help: "Validation rule failures, by rule kind.",
		}, []string{"kind"}),
	}
}
