package executor

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the optional Prometheus collectors a caller may register for
// a build. A nil *Metrics (the zero value of Options.Metrics) disables all
// instrumentation; every method on it is a safe no-op.
type Metrics struct {
	tasksTotal    *prometheus.CounterVec
	taskDuration  *prometheus.HistogramVec
}

// NewMetrics constructs and registers the executor's collectors against reg.
// Mirrors the counter/histogram-per-outcome shape of a typical worker-pool
// exporter: one CounterVec labeled by outcome, one HistogramVec of task
// wall-clock duration.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		tasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bbuild_tasks_total",
			Help: "Count of tasks the executor visited, by outcome.",
		}, []string{"outcome"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bbuild_task_duration_seconds",
			Help:    "Wall-clock duration of a task's command invocations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
	}
	if err := reg.Register(m.tasksTotal); err != nil {
		return nil, err
	}
	if err := reg.Register(m.taskDuration); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) observe(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.tasksTotal.WithLabelValues(outcome).Inc()
	m.taskDuration.WithLabelValues(outcome).Observe(seconds)
}
