package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TaskMetrics tracks background task executions and import volume.
type TaskMetrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	importGoods prometheus.Counter
}

// NewTaskMetrics registers the task collectors on reg. A nil registerer
// yields a no-op recorder.
func NewTaskMetrics(reg prometheus.Registerer) *TaskMetrics {
	if reg == nil {
		return &TaskMetrics{}
	}
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "od_task_runs_total",
		Help: "Background task executions by kind and outcome.",
	}, []string{"kind", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "od_task_duration_seconds",
		Help:    "Background task execution time in seconds.",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"kind"})
	importGoods := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "od_import_goods_total",
		Help: "Goods written by catalog imports.",
	})
	reg.MustRegister(runs, duration, importGoods)
	return &TaskMetrics{
		runs:        runs,
		duration:    duration,
		importGoods: importGoods,
	}
}

// ObserveRun records one finished task.
func (m *TaskMetrics) ObserveRun(kind, outcome string, d time.Duration) {
	if m == nil || m.runs == nil {
		return
	}
	m.runs.WithLabelValues(normalizeLabel(kind), normalizeLabel(outcome)).Inc()
	m.duration.WithLabelValues(normalizeLabel(kind)).Observe(d.Seconds())
}

// AddImportedGoods adds n to the imported goods counter.
func (m *TaskMetrics) AddImportedGoods(n int) {
	if m == nil || m.importGoods == nil || n <= 0 {
		return
	}
	m.importGoods.Add(float64(n))
}
