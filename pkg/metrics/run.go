package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// RunMetrics holds all metrics for a rollout run.
type RunMetrics struct {
	// Host metrics
	HostsTotal      prometheus.Gauge
	PipelinesActive prometheus.Gauge
	ResultsTotal    *prometheus.CounterVec

	// Step metrics
	StepDuration *prometheus.HistogramVec
	StepsTotal   *prometheus.CounterVec

	// Batch metrics
	BatchesTotal prometheus.Counter
	RunDuration  prometheus.Histogram

	// SSH metrics
	ConnectRetriesTotal prometheus.Counter
}

// newRunMetrics creates and registers all run metrics.
func newRunMetrics(registry *prometheus.Registry) *RunMetrics {
	m := &RunMetrics{
		// Host metrics
		HostsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "rollout",
				Subsystem: "run",
				Name:      "hosts_total",
				Help:      "Total number of hosts in the current run.",
			},
		),

		PipelinesActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "rollout",
				Subsystem: "run",
				Name:      "pipelines_active",
				Help:      "Number of host pipelines currently executing.",
			},
		),

		ResultsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rollout",
				Subsystem: "run",
				Name:      "results_total",
				Help:      "Total number of host results by outcome.",
			},
			[]string{"outcome"},
		),

		// Step metrics
		StepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "rollout",
				Subsystem: "pipeline",
				Name:      "step_duration_seconds",
				Help:      "Duration of individual pipeline steps in seconds.",
				Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"step"},
		),

		StepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rollout",
				Subsystem: "pipeline",
				Name:      "steps_total",
				Help:      "Total number of executed pipeline steps by step and status.",
			},
			[]string{"step", "status"},
		),

		// Batch metrics
		BatchesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "rollout",
				Subsystem: "scheduler",
				Name:      "batches_total",
				Help:      "Total number of dispatched batches.",
			},
		),

		RunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "rollout",
				Subsystem: "run",
				Name:      "duration_seconds",
				Help:      "Duration of complete rollout runs in seconds.",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
			},
		),

		// SSH metrics
		ConnectRetriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "rollout",
				Subsystem: "ssh",
				Name:      "connect_retries_total",
				Help:      "Total number of SSH connection retries.",
			},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.HostsTotal,
		m.PipelinesActive,
		m.ResultsTotal,
		m.StepDuration,
		m.StepsTotal,
		m.BatchesTotal,
		m.RunDuration,
		m.ConnectRetriesTotal,
	)

	return m
}

// RecordStep records a completed pipeline step.
func (m *RunMetrics) RecordStep(step, status string, durationSeconds float64) {
	m.StepDuration.WithLabelValues(step).Observe(durationSeconds)
	m.StepsTotal.WithLabelValues(step, status).Inc()
}

// RecordResult records a terminal host result.
func (m *RunMetrics) RecordResult(outcome string) {
	m.ResultsTotal.WithLabelValues(outcome).Inc()
}

// RecordBatch records a dispatched batch.
func (m *RunMetrics) RecordBatch() {
	m.BatchesTotal.Inc()
}

// RecordRunComplete records a completed rollout run.
func (m *RunMetrics) RecordRunComplete(durationSeconds float64) {
	m.RunDuration.Observe(durationSeconds)
}

// PipelineStarted increments the active pipeline count.
func (m *RunMetrics) PipelineStarted() {
	m.PipelinesActive.Inc()
}

// PipelineFinished decrements the active pipeline count.
func (m *RunMetrics) PipelineFinished() {
	m.PipelinesActive.Dec()
}

// SetHostCount sets the total host count for the run.
func (m *RunMetrics) SetHostCount(count float64) {
	m.HostsTotal.Set(count)
}

// RecordConnectRetry records an SSH connection retry.
func (m *RunMetrics) RecordConnectRetry() {
	m.ConnectRetriesTotal.Inc()
}
