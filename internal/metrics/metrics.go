// Package metrics exposes workflow execution metrics in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcomes recorded for node executions.
const (
	OutcomeExecuted = "executed"
	OutcomeFailed   = "failed"
	OutcomeCanceled = "canceled"
	OutcomeSkipped  = "skipped"
)

// Recorder owns a private registry so several workflows in one process do
// not collide. All methods are safe to call on a nil *Recorder.
type Recorder struct {
	registry   *prometheus.Registry
	executions *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	rows       *prometheus.CounterVec
	running    prometheus.Gauge
	runs       *prometheus.CounterVec
}

// New creates a Recorder with every collector registered.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		executions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nodeflow_node_executions_total",
				Help: "Node executions by node type and outcome",
			},
			[]string{"node_type", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nodeflow_node_execution_seconds",
				Help:    "Duration of node executions",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
			},
			[]string{"node_type"},
		),
		rows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nodeflow_rows_produced_total",
				Help: "Rows written to output tables",
			},
			[]string{"node_type"},
		),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nodeflow_nodes_running",
			Help: "Nodes currently executing",
		}),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nodeflow_workflow_runs_total",
				Help: "Workflow runs by result",
			},
			[]string{"result"},
		),
	}
	r.registry.MustRegister(r.executions, r.duration, r.rows, r.running, r.runs)
	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// TrackTables exports the number of live tables reported by count. Only the
// first call on a Recorder takes effect.
func (r *Recorder) TrackTables(count func() int) {
	if r == nil {
		return
	}
	_ = r.registry.Register(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "nodeflow_tables_live",
			Help: "Tables registered in the workflow repository",
		},
		func() float64 { return float64(count()) },
	))
}

// NodeStarted marks a node as running.
func (r *Recorder) NodeStarted() {
	if r == nil {
		return
	}
	r.running.Inc()
}

// NodeFinished records the outcome of one node execution.
func (r *Recorder) NodeFinished(nodeType, outcome string, elapsed time.Duration, rows int) {
	if r == nil {
		return
	}
	r.running.Dec()
	r.executions.WithLabelValues(nodeType, outcome).Inc()
	r.duration.WithLabelValues(nodeType).Observe(elapsed.Seconds())
	if rows > 0 {
		r.rows.WithLabelValues(nodeType).Add(float64(rows))
	}
}

// NodeSkipped records a node that was not executed.
func (r *Recorder) NodeSkipped(nodeType string) {
	if r == nil {
		return
	}
	r.executions.WithLabelValues(nodeType, OutcomeSkipped).Inc()
}

// NodeAbandoned records a node that never started because its run was
// canceled first.
func (r *Recorder) NodeAbandoned(nodeType string) {
	if r == nil {
		return
	}
	r.executions.WithLabelValues(nodeType, OutcomeCanceled).Inc()
}

// RunFinished records a whole workflow run.
func (r *Recorder) RunFinished(result string) {
	if r == nil {
		return
	}
	r.runs.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
