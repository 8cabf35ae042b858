package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	executionSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "benchscale_execution_seconds",
		Help:    "Elapsed time reported by single workload executions",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{"workload", "mode"})

	executionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "benchscale_execution_failures_total",
		Help: "Workload executions that exited non-zero or printed no elapsed time",
	}, []string{"workload", "mode"})

	normalizationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "benchscale_normalization_failures_total",
		Help: "Workloads whose scaling graph could not be resolved",
	}, []string{"workload"})
)

// ObserveExecution records the elapsed seconds of one execution.
func ObserveExecution(workload, mode string, seconds float64) {
	executionSeconds.WithLabelValues(workload, mode).Observe(seconds)
}

// CountExecutionFailure records a failed execution.
func CountExecutionFailure(workload, mode string) {
	executionFailures.WithLabelValues(workload, mode).Inc()
}

// CountNormalizationFailure records a workload whose normalization failed.
func CountNormalizationFailure(workload string) {
	normalizationFailures.WithLabelValues(workload).Inc()
}
