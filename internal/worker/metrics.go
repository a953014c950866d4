package worker

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics captures receipt queue health signals.
type Metrics struct {
	taskRuns     *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec
	staleResets  prometheus.Counter
	queueDepth   prometheus.Gauge
	tickErrors   prometheus.Counter
}

var (
	metricsOnce sync.Once
	metrics     *Metrics
)

// QueueMetrics returns the singleton worker metrics registry.
func QueueMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = newMetrics(prometheus.DefaultRegisterer)
	})
	return metrics
}

func newMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	taskRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kassaflow_worker_task_runs_total",
		Help: "Receipt task passes by kind and outcome.",
	}, []string{"kind", "outcome"})
	taskDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kassaflow_worker_task_duration_seconds",
		Help:    "Wall time of one receipt task pass including the provider call.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
	}, []string{"kind"})
	staleResets := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kassaflow_worker_stale_resets_total",
		Help: "Tasks recovered from a stuck processing state.",
	})
	queueDepth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "kassaflow_worker_queue_depth",
		Help: "Tasks still awaiting work (pending, processing, waiting_auth).",
	})
	tickErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kassaflow_worker_tick_errors_total",
		Help: "Poll loop ticks that failed before reaching a task outcome.",
	})

	registerer.MustRegister(taskRuns, taskDuration, staleResets, queueDepth, tickErrors)
	return &Metrics{
		taskRuns:     taskRuns,
		taskDuration: taskDuration,
		staleResets:  staleResets,
		queueDepth:   queueDepth,
		tickErrors:   tickErrors,
	}
}

func (m *Metrics) ObserveTask(kind, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.taskRuns.WithLabelValues(kind, outcome).Inc()
	m.taskDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

func (m *Metrics) AddStaleResets(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.staleResets.Add(float64(n))
}

func (m *Metrics) SetQueueDepth(depth int64) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}

func (m *Metrics) IncTickError() {
	if m == nil {
		return
	}
	m.tickErrors.Inc()
}
