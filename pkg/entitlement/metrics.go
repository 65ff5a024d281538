package entitlement

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the gate collectors. A nil *Metrics records nothing.
type Metrics struct {
	decisions   *prometheus.CounterVec
	cacheLookup *prometheus.CounterVec
}

// NewMetrics registers the gate collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "billing",
			Subsystem: "gate",
			Name:      "decisions_total",
			Help:      "Access decisions by result.",
		}, []string{"result"}),
		cacheLookup: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "billing",
			Subsystem: "gate",
			Name:      "cache_lookups_total",
			Help:      "Entitlement cache lookups by result (hit/miss).",
		}, []string{"result"}),
	}
}

func (m *Metrics) observeDecision(err error) {
	if m == nil {
		return
	}
	result := "allowed"
	switch {
	case errors.Is(err, ErrUnauthenticated):
		result = "unauthenticated"
	case errors.Is(err, ErrTenantRequired):
		result = "no_tenant"
	case errors.Is(err, ErrTrialExpired):
		result = "trial_expired"
	case errors.Is(err, ErrPlanRequired), errors.Is(err, ErrFeatureRequired):
		result = "insufficient_plan"
	case err != nil:
		result = "error"
	}
	m.decisions.WithLabelValues(result).Inc()
}

func (m *Metrics) observeCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheLookup.WithLabelValues("hit").Inc()
		return
	}
	m.cacheLookup.WithLabelValues("miss").Inc()
}
