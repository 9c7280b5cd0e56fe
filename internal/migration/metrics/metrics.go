// Package metrics exposes Prometheus metrics for the migration pipelines.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds pipeline counters and timings. Labels carry pipeline and
// step names only; saga and policy ids never become labels.
type Metrics struct {
	SagasStarted     *prometheus.CounterVec
	SagasCompensated *prometheus.CounterVec
	StepsSucceeded   *prometheus.CounterVec
	StepsFailed      *prometheus.CounterVec
	LineageEdges     prometheus.Counter
	PipelineDuration *prometheus.HistogramVec
}

func New() *Metrics {
	return &Metrics{
		SagasStarted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "policybridge_sagas_started_total",
			Help: "Pipeline runs started, by pipeline.",
		}, []string{"pipeline"}),
		SagasCompensated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "policybridge_sagas_compensated_total",
			Help: "Pipeline runs rolled back after a step failure, by pipeline.",
		}, []string{"pipeline"}),
		StepsSucceeded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "policybridge_saga_steps_succeeded_total",
			Help: "Forward saga steps completed, by pipeline and step.",
		}, []string{"pipeline", "step"}),
		StepsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "policybridge_saga_steps_failed_total",
			Help: "Forward saga steps failed, by pipeline and step.",
		}, []string{"pipeline", "step"}),
		LineageEdges: promauto.NewCounter(prometheus.CounterOpts{
			Name: "policybridge_lineage_edges_total",
			Help: "Provenance edges recorded for completed steps.",
		}),
		PipelineDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "policybridge_pipeline_duration_seconds",
			Help:    "End to end pipeline run duration, by pipeline and outcome.",
			Buckets: prometheus.DefBuckets,
		}, []string{"pipeline", "outcome"}),
	}
}
