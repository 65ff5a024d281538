package subscription

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of the lifecycle engine.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	operations    *prometheus.CounterVec
	invoicedTotal *prometheus.CounterVec
	sweepRows     *prometheus.CounterVec
	sweepDuration prometheus.Histogram
	trialsExpired prometheus.Counter
}

// NewMetrics registers the engine collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		operations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "billing",
			Subsystem: "subscription",
			Name:      "operations_total",
			Help:      "Lifecycle operations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		invoicedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "billing",
			Subsystem: "subscription",
			Name:      "prorated_amount_total",
			Help:      "Sum of proration invoice amounts by currency.",
		}, []string{"currency"}),
		sweepRows: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "billing",
			Subsystem: "sweep",
			Name:      "rows_total",
			Help:      "Scheduled changes seen by the sweeper by result (promoted/failed/skipped).",
		}, []string{"result"}),
		sweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "billing",
			Subsystem: "sweep",
			Name:      "duration_seconds",
			Help:      "Scheduled change sweep duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),
		trialsExpired: f.NewCounter(prometheus.CounterOpts{
			Namespace: "billing",
			Subsystem: "sweep",
			Name:      "trials_expired_total",
			Help:      "Trials flipped to expired.",
		}),
	}
}

func (m *Metrics) observeOperation(op string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) observeInvoice(inv *Invoice) {
	if m == nil || inv == nil {
		return
	}
	m.invoicedTotal.WithLabelValues(inv.Currency).Add(inv.Amount.InexactFloat64())
}

func (m *Metrics) observeSweep(res SweepResult, took time.Duration) {
	if m == nil {
		return
	}
	m.sweepRows.WithLabelValues("promoted").Add(float64(res.Promoted))
	m.sweepRows.WithLabelValues("failed").Add(float64(res.Failed))
	m.sweepRows.WithLabelValues("skipped").Add(float64(res.Skipped))
	m.sweepDuration.Observe(took.Seconds())
}

func (m *Metrics) observeTrialsExpired(n int) {
	if m == nil {
		return
	}
	m.trialsExpired.Add(float64(n))
}
