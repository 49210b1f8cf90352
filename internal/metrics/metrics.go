// Package metrics exposes the sandbox's Prometheus collectors.
// They register with the default registry on import; /metrics serves them.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sakif/code-sandbox/internal/model"
)

var (
	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sandbox_executions_total",
			Help: "Total number of code executions by language and outcome",
		},
		[]string{"language", "outcome"}, // outcome: "success" or a failure kind
	)

	ExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sandbox_execution_duration_ms",
			Help:    "Wall-clock duration of an execution, build included, in milliseconds",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"language"},
	)

	InFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sandbox_executions_in_flight",
			Help: "Number of executions currently holding a workspace",
		},
	)

	WorkspaceFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sandbox_workspace_failures_total",
			Help: "Total number of workspaces that could not be created",
		},
	)

	HistoryWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sandbox_history_write_failures_total",
			Help: "Total number of execution records that could not be stored",
		},
	)

	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sandbox_rate_limit_hits_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
	)
)

// Outcome is the label value used for kind.
func Outcome(kind model.FailureKind) string {
	if kind == model.FailureNone {
		return "success"
	}
	return string(kind)
}

// ObserveExecution records one finished execution.
func ObserveExecution(lang model.Language, kind model.FailureKind, d time.Duration) {
	ExecutionsTotal.WithLabelValues(string(lang), Outcome(kind)).Inc()
	ExecutionDuration.WithLabelValues(string(lang)).Observe(float64(d.Milliseconds()))
}
