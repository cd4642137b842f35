// Package prometheus implements the MetricsCollector port.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector implements ports.MetricsCollector using Prometheus
type Collector struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec

	phasesExecuted *prometheus.CounterVec
	phaseRetries   prometheus.Counter
	phaseDuration  *prometheus.HistogramVec
	activePhases   prometheus.Gauge

	tasksExecuted *prometheus.CounterVec
	taskDuration  *prometheus.HistogramVec
	activeTasks   prometheus.Gauge

	checkpointsWritten  prometheus.Counter
	checkpointBytes     prometheus.Histogram
	checkpointRatio     prometheus.Histogram
	checkpointsRestored *prometheus.CounterVec

	poolWorkers *prometheus.GaugeVec
}

// NewCollector creates a new Prometheus metrics collector
func NewCollector() *Collector {
	return &Collector{
		runsStarted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "phaserun_runs_started_total",
				Help: "Total number of runs started",
			},
		),
		runsCompleted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phaserun_runs_completed_total",
				Help: "Total number of runs finished by final status",
			},
			[]string{"status"},
		),
		runDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "phaserun_run_duration_seconds",
				Help:    "Run duration in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"status"},
		),
		phasesExecuted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phaserun_phases_executed_total",
				Help: "Total number of phase attempts by outcome",
			},
			[]string{"status"},
		),
		phaseRetries: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "phaserun_phase_retries_total",
				Help: "Total number of phase retries",
			},
		),
		phaseDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "phaserun_phase_duration_seconds",
				Help:    "Phase attempt duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"status"},
		),
		activePhases: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "phaserun_active_phases",
				Help: "Number of phases currently executing",
			},
		),
		tasksExecuted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phaserun_tasks_executed_total",
				Help: "Total number of tasks executed by outcome",
			},
			[]string{"status"},
		),
		taskDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "phaserun_task_duration_seconds",
				Help:    "Task execution duration in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"status"},
		),
		activeTasks: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "phaserun_active_tasks",
				Help: "Number of tasks currently executing",
			},
		),
		checkpointsWritten: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "phaserun_checkpoints_written_total",
				Help: "Total number of checkpoints written",
			},
		),
		checkpointBytes: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "phaserun_checkpoint_size_bytes",
				Help:    "Compressed checkpoint size in bytes",
				Buckets: prometheus.ExponentialBuckets(256, 4, 8),
			},
		),
		checkpointRatio: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "phaserun_checkpoint_compression_ratio",
				Help:    "Raw-to-compressed checkpoint size ratio",
				Buckets: []float64{1, 2, 4, 8, 16, 32},
			},
		),
		checkpointsRestored: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phaserun_checkpoints_restored_total",
				Help: "Total number of checkpoint restores by source",
			},
			[]string{"source"},
		),
		poolWorkers: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "phaserun_worker_pool_workers",
				Help: "Worker pool occupancy by worker state",
			},
			[]string{"state"},
		),
	}
}

// RecordRunStarted records the start of a run
func (c *Collector) RecordRunStarted() {
	c.runsStarted.Inc()
}

// RecordRunCompleted records a finished run and its duration
func (c *Collector) RecordRunCompleted(status string, duration time.Duration) {
	c.runsCompleted.WithLabelValues(status).Inc()
	c.runDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordPhaseExecuted records one phase attempt
func (c *Collector) RecordPhaseExecuted(status string, duration time.Duration) {
	c.phasesExecuted.WithLabelValues(status).Inc()
	c.phaseDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordPhaseRetried records a phase retry
func (c *Collector) RecordPhaseRetried() {
	c.phaseRetries.Inc()
}

// RecordTaskExecuted records one task execution
func (c *Collector) RecordTaskExecuted(status string, duration time.Duration) {
	c.tasksExecuted.WithLabelValues(status).Inc()
	c.taskDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordCheckpointWritten records a written checkpoint and its size
func (c *Collector) RecordCheckpointWritten(sizeBytes int64, ratio float64) {
	c.checkpointsWritten.Inc()
	c.checkpointBytes.Observe(float64(sizeBytes))
	c.checkpointRatio.Observe(ratio)
}

// RecordCheckpointRestored records a restore and whether the cache served it
func (c *Collector) RecordCheckpointRestored(cacheHit bool) {
	source := "disk"
	if cacheHit {
		source = "cache"
	}
	c.checkpointsRestored.WithLabelValues(source).Inc()
}

// SetActivePhases sets the number of currently executing phases
func (c *Collector) SetActivePhases(count int) {
	c.activePhases.Set(float64(count))
}

// SetActiveTasks sets the number of currently executing tasks
func (c *Collector) SetActiveTasks(count int) {
	c.activeTasks.Set(float64(count))
}

// SetWorkerPoolStatus sets the per-state worker counts of the task pool
func (c *Collector) SetWorkerPoolStatus(idle, busy, stopped int) {
	c.poolWorkers.WithLabelValues("idle").Set(float64(idle))
	c.poolWorkers.WithLabelValues("busy").Set(float64(busy))
	c.poolWorkers.WithLabelValues("stopped").Set(float64(stopped))
}
