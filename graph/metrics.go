package graph

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus metrics for pipeline execution.
//
// Exposed metrics (namespace "homer", subsystem "graph"):
//   - runs_total{status}: completed pipeline runs by outcome
//   - steps_total{node,status}: node executions by outcome
//   - step_latency_seconds{node,status}: node execution duration
//   - retries_total{node}: retry attempts per node
//
// All methods are safe for concurrent use.
type Metrics struct {
	runs        *prometheus.CounterVec
	steps       *prometheus.CounterVec
	stepLatency *prometheus.HistogramVec
	retries     *prometheus.CounterVec
}

// NewMetrics creates and registers the pipeline metrics with the given
// registry. Pass prometheus.DefaultRegisterer for the global registry, or a
// dedicated registry for isolation.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "homer",
			Subsystem: "graph",
			Name:      "runs_total",
			Help:      "Completed pipeline runs by outcome.",
		}, []string{"status"}),
		steps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "homer",
			Subsystem: "graph",
			Name:      "steps_total",
			Help:      "Node executions by outcome.",
		}, []string{"node", "status"}),
		stepLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "homer",
			Subsystem: "graph",
			Name:      "step_latency_seconds",
			Help:      "Node execution duration in seconds.",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"node", "status"}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "homer",
			Subsystem: "graph",
			Name:      "retries_total",
			Help:      "Retry attempts per node.",
		}, []string{"node"}),
	}
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (m *Metrics) observeRun(err error) {
	m.runs.WithLabelValues(statusLabel(err)).Inc()
}

func (m *Metrics) observeStep(node string, d time.Duration, err error) {
	status := statusLabel(err)
	m.steps.WithLabelValues(node, status).Inc()
	m.stepLatency.WithLabelValues(node, status).Observe(d.Seconds())
}

func (m *Metrics) observeRetry(node string) {
	m.retries.WithLabelValues(node).Inc()
}
