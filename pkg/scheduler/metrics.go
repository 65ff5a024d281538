package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the scheduler collectors. A nil *Metrics records nothing.
type Metrics struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers the scheduler collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "billing",
			Subsystem: "scheduler",
			Name:      "runs_total",
			Help:      "Task runs by task, trigger and final status.",
		}, []string{"task", "trigger", "status"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "billing",
			Subsystem: "scheduler",
			Name:      "run_duration_seconds",
			Help:      "Task run duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"task"}),
	}
}

func (m *Metrics) observe(run Run) {
	if m == nil || !run.Done() {
		return
	}
	m.runs.WithLabelValues(run.Task, string(run.Trigger), string(run.Status)).Inc()
	if run.Status != RunSkipped && run.FinishedAt != nil {
		m.duration.WithLabelValues(run.Task).Observe(run.FinishedAt.Sub(run.StartedAt).Seconds())
	}
}
