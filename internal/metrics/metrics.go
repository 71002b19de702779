package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for wayfinder. All Record methods are
// safe to call on a nil *Metrics, which lets components run without
// instrumentation in tests.
type Metrics struct {
	// Planning pipeline
	PlanRequests  *prometheus.CounterVec
	PlanDuration  *prometheus.HistogramVec
	StageDuration *prometheus.HistogramVec
	BranchResults *prometheus.CounterVec

	// Result cache
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec
	CacheShared *prometheus.CounterVec

	// Background tasks
	Tasks         *prometheus.CounterVec
	TaskDuration  prometheus.Histogram
	SubjobResults *prometheus.CounterVec

	// Client sync
	SyncPending    prometheus.Gauge
	SyncReconciles *prometheus.CounterVec
	SyncEvictions  *prometheus.CounterVec

	Errors *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics with the given registerer.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		PlanRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wayfinder_plan_requests_total",
				Help: "Total number of planning requests by outcome",
			},
			[]string{"outcome"},
		),
		PlanDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wayfinder_plan_duration_seconds",
				Help:    "End to end planning latency in seconds",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 20, 30},
			},
			[]string{"path"},
		),
		StageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wayfinder_stage_duration_seconds",
				Help:    "Pipeline stage duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		BranchResults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wayfinder_branch_results_total",
				Help: "Research branch results by source (real or placeholder)",
			},
			[]string{"branch", "source"},
		),

		CacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wayfinder_cache_hits_total",
				Help: "Total number of result cache hits",
			},
			[]string{"cache"},
		),
		CacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wayfinder_cache_misses_total",
				Help: "Total number of result cache misses",
			},
			[]string{"cache"},
		),
		CacheShared: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wayfinder_cache_shared_total",
				Help: "Callers that joined an in-flight computation instead of starting one",
			},
			[]string{"cache"},
		),

		Tasks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wayfinder_tasks_total",
				Help: "Background task transitions by resulting status",
			},
			[]string{"status"},
		),
		TaskDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "wayfinder_task_duration_seconds",
				Help:    "Time from task start to terminal state in seconds",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		),
		SubjobResults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wayfinder_subjob_results_total",
				Help: "Creative sub-job outcomes",
			},
			[]string{"job", "outcome"},
		),

		SyncPending: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "wayfinder_sync_pending",
				Help: "Number of writes waiting for remote confirmation",
			},
		),
		SyncReconciles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wayfinder_sync_reconcile_total",
				Help: "Reconcile passes by outcome",
			},
			[]string{"outcome"},
		),
		SyncEvictions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wayfinder_sync_evictions_total",
				Help: "Local records or pending writes evicted by retention",
			},
			[]string{"reason"},
		),

		Errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wayfinder_errors_total",
				Help: "Errors by code and component",
			},
			[]string{"error_code", "component"},
		),
	}
}

// RecordPlan records one planning request.
func (m *Metrics) RecordPlan(outcome, path string, d time.Duration) {
	if m == nil {
		return
	}
	m.PlanRequests.WithLabelValues(outcome).Inc()
	m.PlanDuration.WithLabelValues(path).Observe(d.Seconds())
}

// RecordStage records a pipeline stage duration.
func (m *Metrics) RecordStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordBranch records the source a research branch settled with.
func (m *Metrics) RecordBranch(branch, source string) {
	if m == nil {
		return
	}
	m.BranchResults.WithLabelValues(branch, source).Inc()
}

// RecordCache records a hit, a miss, or a shared in-flight join.
func (m *Metrics) RecordCache(cache string, hit, shared bool) {
	if m == nil {
		return
	}
	switch {
	case hit:
		m.CacheHits.WithLabelValues(cache).Inc()
	case shared:
		m.CacheShared.WithLabelValues(cache).Inc()
	default:
		m.CacheMisses.WithLabelValues(cache).Inc()
	}
}

// RecordTask records a task reaching status.
func (m *Metrics) RecordTask(status string) {
	if m == nil {
		return
	}
	m.Tasks.WithLabelValues(status).Inc()
}

// RecordTaskDuration records time spent executing a task.
func (m *Metrics) RecordTaskDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.TaskDuration.Observe(d.Seconds())
}

// RecordSubjob records one creative sub-job outcome.
func (m *Metrics) RecordSubjob(job, outcome string) {
	if m == nil {
		return
	}
	m.SubjobResults.WithLabelValues(job, outcome).Inc()
}

// SetPending sets the pending write gauge.
func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.SyncPending.Set(float64(n))
}

// RecordReconcile records the outcome of a reconcile pass.
func (m *Metrics) RecordReconcile(outcome string) {
	if m == nil {
		return
	}
	m.SyncReconciles.WithLabelValues(outcome).Inc()
}

// RecordEviction records n retention evictions.
func (m *Metrics) RecordEviction(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SyncEvictions.WithLabelValues(reason).Add(float64(n))
}

// RecordError records an error code reported by component.
func (m *Metrics) RecordError(code, component string) {
	if m == nil || code == "" {
		return
	}
	m.Errors.WithLabelValues(code, component).Inc()
}
