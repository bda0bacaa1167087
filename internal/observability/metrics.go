// Package observability provides Prometheus metrics, OpenTelemetry tracing,
// and structured logging for ergate.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector holds all Prometheus metrics for an ergate process.
type MetricsCollector struct {
	// Step dispatch metrics
	StepsDispatchedTotal *prometheus.CounterVec
	StepDuration         *prometheus.HistogramVec
	StepsInFlight        *prometheus.GaugeVec

	// Job lifecycle metrics
	JobsTerminalTotal  *prometheus.CounterVec
	JobsRequeuedTotal  *prometheus.CounterVec
	JobPercentComplete *prometheus.HistogramVec

	// Error hook metrics
	HookInvocationsTotal *prometheus.CounterVec

	// Publisher metrics
	PublishBatchesTotal  prometheus.Counter
	PublishBatchSize     prometheus.Histogram
	PublishCycleDuration prometheus.Histogram

	// System metrics
	SystemStartTime prometheus.Gauge
	SystemHealth    *prometheus.GaugeVec
}

// NewMetricsCollector creates and registers all Prometheus metrics.
func NewMetricsCollector(namespace string) *MetricsCollector {
	return NewMetricsCollectorWithRegistry(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates metrics with a specific registry (for testing).
func NewMetricsCollectorWithRegistry(namespace string, reg prometheus.Registerer) *MetricsCollector {
	if namespace == "" {
		namespace = "ergate"
	}

	autoCounterVec := func(opts prometheus.CounterOpts, labelNames []string) *prometheus.CounterVec {
		return promauto.With(reg).NewCounterVec(opts, labelNames)
	}

	autoHistogramVec := func(opts prometheus.HistogramOpts, labelNames []string) *prometheus.HistogramVec {
		return promauto.With(reg).NewHistogramVec(opts, labelNames)
	}

	autoGaugeVec := func(opts prometheus.GaugeOpts, labelNames []string) *prometheus.GaugeVec {
		return promauto.With(reg).NewGaugeVec(opts, labelNames)
	}

	autoCounter := func(opts prometheus.CounterOpts) prometheus.Counter {
		return promauto.With(reg).NewCounter(opts)
	}

	autoHistogram := func(opts prometheus.HistogramOpts) prometheus.Histogram {
		return promauto.With(reg).NewHistogram(opts)
	}

	autoGauge := func(opts prometheus.GaugeOpts) prometheus.Gauge {
		return promauto.With(reg).NewGauge(opts)
	}

	return &MetricsCollector{
		StepsDispatchedTotal: autoCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "steps_dispatched_total",
				Help:      "Total number of workflow steps dispatched by workflow and step name",
			},
			[]string{"workflow", "step"},
		),
		StepDuration: autoHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Step invocation duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"workflow", "step"},
		),
		StepsInFlight: autoGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "steps_in_flight",
				Help:      "Number of steps currently being dispatched",
			},
			[]string{"workflow"},
		),

		JobsTerminalTotal: autoCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_terminal_total",
				Help:      "Total number of jobs reaching a terminal status, by workflow and status",
			},
			[]string{"workflow", "status"},
		),
		JobsRequeuedTotal: autoCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_requeued_total",
				Help:      "Total number of jobs requeued for another step, by workflow",
			},
			[]string{"workflow"},
		),
		JobPercentComplete: autoHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "job_percent_completed",
				Help:      "Percent-completed value recorded after each step advance",
				Buckets:   []float64{10, 25, 50, 75, 90, 100},
			},
			[]string{"workflow"},
		),

		HookInvocationsTotal: autoCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "hook_invocations_total",
				Help:      "Total number of error hook invocations by workflow",
			},
			[]string{"workflow"},
		),

		PublishBatchesTotal: autoCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "publish_batches_total",
				Help:      "Total number of publisher fetch-transition-publish cycles that moved at least one job",
			},
		),
		PublishBatchSize: autoHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "publish_batch_size",
				Help:      "Number of jobs moved from state store to queue per publish cycle",
				Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500},
			},
		),
		PublishCycleDuration: autoHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "publish_cycle_duration_seconds",
				Help:      "Publisher fetch-transition-publish cycle duration in seconds",
				Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
		),

		SystemStartTime: autoGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "system_start_time_seconds",
				Help:      "Unix timestamp when the process started",
			},
		),
		SystemHealth: autoGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "system_health_status",
				Help:      "System health status (1 = healthy, 0 = unhealthy)",
			},
			[]string{"component"},
		),
	}
}

// RecordStepDispatch records a step invocation and its duration.
func (m *MetricsCollector) RecordStepDispatch(workflow, step string, duration time.Duration) {
	m.StepsDispatchedTotal.WithLabelValues(workflow, step).Inc()
	m.StepDuration.WithLabelValues(workflow, step).Observe(duration.Seconds())
}

// TrackStepInFlight tracks in-flight step dispatches for a workflow.
func (m *MetricsCollector) TrackStepInFlight(workflow string, delta float64) {
	m.StepsInFlight.WithLabelValues(workflow).Add(delta)
}

// RecordJobTerminal records a job reaching a terminal status.
func (m *MetricsCollector) RecordJobTerminal(workflow, status string) {
	m.JobsTerminalTotal.WithLabelValues(workflow, status).Inc()
}

// RecordJobRequeued records a job being requeued for its next step.
func (m *MetricsCollector) RecordJobRequeued(workflow string, percentCompleted int) {
	m.JobsRequeuedTotal.WithLabelValues(workflow).Inc()
	m.JobPercentComplete.WithLabelValues(workflow).Observe(float64(percentCompleted))
}

// RecordHookInvocation records an error hook firing for a workflow.
func (m *MetricsCollector) RecordHookInvocation(workflow string) {
	m.HookInvocationsTotal.WithLabelValues(workflow).Inc()
}

// RecordPublishBatch records one publisher cycle that moved size jobs.
func (m *MetricsCollector) RecordPublishBatch(size int, duration time.Duration) {
	m.PublishBatchesTotal.Inc()
	m.PublishBatchSize.Observe(float64(size))
	m.PublishCycleDuration.Observe(duration.Seconds())
}

// SetSystemStartTime sets the system start time.
func (m *MetricsCollector) SetSystemStartTime(startTime time.Time) {
	m.SystemStartTime.Set(float64(startTime.Unix()))
}

// SetComponentHealth sets the health status of a component.
func (m *MetricsCollector) SetComponentHealth(component string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	m.SystemHealth.WithLabelValues(component).Set(value)
}
