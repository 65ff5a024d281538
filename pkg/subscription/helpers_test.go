package subscription_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/audit"
	"github.com/dmitrymomot/billingkit/pkg/subscription"
)

var (
	periodStart = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	periodEnd   = time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)
	// halfway: 15 of 30 days remain
	midPeriod = time.Date(2025, 1, 16, 0, 0, 0, 0, time.UTC)
)

func testPlans() []subscription.Plan {
	return []subscription.Plan{
		{
			ID:        "starter",
			Name:      "Starter",
			Rank:      0,
			Price:     decimal.Zero,
			Currency:  "USD",
			Interval:  subscription.BillingIntervalMonthly,
			TrialDays: 14,
			Limits: map[subscription.Resource]int64{
				subscription.ResourceUsers: 1,
			},
		},
		{
			ID:       "basic",
			Name:     "Basic",
			Rank:     1,
			Price:    decimal.RequireFromString("10"),
			Currency: "USD",
			Interval: subscription.BillingIntervalMonthly,
			Features: map[subscription.Feature]bool{
				subscription.FeatureAnalytics: true,
			},
			Limits: map[subscription.Resource]int64{
				subscription.ResourceUsers:    3,
				subscription.ResourceProducts: 100,
			},
		},
		{
			ID:       "pro",
			Name:     "Pro",
			Rank:     2,
			Price:    decimal.RequireFromString("30"),
			Currency: "USD",
			Interval: subscription.BillingIntervalMonthly,
			Features: map[subscription.Feature]bool{
				subscription.FeatureAnalytics:       true,
				subscription.FeatureAdvancedReports: true,
			},
			Limits: map[subscription.Resource]int64{
				subscription.ResourceUsers:    10,
				subscription.ResourceProducts: 1000,
			},
		},
		{
			ID:       "enterprise",
			Name:     "Enterprise",
			Rank:     3,
			Price:    decimal.RequireFromString("99"),
			Currency: "USD",
			Interval: subscription.BillingIntervalYearly,
			Features: map[subscription.Feature]bool{
				subscription.FeatureAnalytics:       true,
				subscription.FeatureAdvancedReports: true,
				subscription.FeatureSSO:             true,
			},
			Limits: map[subscription.Resource]int64{
				subscription.ResourceUsers:    subscription.Unlimited,
				subscription.ResourceProducts: subscription.Unlimited,
			},
		},
	}
}

func newTestCatalog(t *testing.T) *subscription.Catalog {
	t.Helper()
	catalog, err := subscription.NewCatalog(context.Background(), subscription.NewInMemSource(testPlans()...))
	require.NoError(t, err)
	return catalog
}

func fixedClock(now time.Time) func() time.Time {
	return func() time.Time { return now }
}

// recordingInvalidator remembers which tenants were invalidated.
type recordingInvalidator struct {
	mu      sync.Mutex
	tenants []uuid.UUID
}

func (r *recordingInvalidator) Invalidate(_ context.Context, tenantID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tenants = append(r.tenants, tenantID)
}

func (r *recordingInvalidator) Tenants() []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uuid.UUID(nil), r.tenants...)
}

type fixture struct {
	store       *subscription.MemoryStore
	svc         subscription.Service
	audit       *audit.MemoryStorage
	invalidator *recordingInvalidator
}

func newFixture(t *testing.T, now time.Time, opts ...subscription.ServiceOption) *fixture {
	t.Helper()
	f := &fixture{
		store:       subscription.NewMemoryStore(),
		audit:       audit.NewMemoryStorage(),
		invalidator: &recordingInvalidator{},
	}
	base := []subscription.ServiceOption{
		subscription.WithClock(fixedClock(now)),
		subscription.WithAuditLogger(audit.NewLogger(f.audit)),
		subscription.WithInvalidator(f.invalidator),
	}
	f.svc = subscription.NewService(newTestCatalog(t), f.store, append(base, opts...)...)
	return f
}

// seedActive stores an active subscription on planID for the January test period.
func seedActive(t *testing.T, store subscription.Store, tenantID uuid.UUID, planID string) *subscription.Subscription {
	t.Helper()
	sub := &subscription.Subscription{
		ID:                 uuid.New(),
		TenantID:           tenantID,
		PlanID:             planID,
		Status:             subscription.StatusActive,
		CurrentPeriodStart: periodStart,
		CurrentPeriodEnd:   periodEnd,
		CreatedAt:          periodStart,
		UpdatedAt:          periodStart,
	}
	require.NoError(t, store.Create(context.Background(), sub))
	return sub
}

// seedTrial stores a trialing subscription ending at trialEnd.
func seedTrial(t *testing.T, store subscription.Store, tenantID uuid.UUID, trialEnd time.Time) *subscription.Subscription {
	t.Helper()
	start := trialEnd.AddDate(0, 0, -14)
	sub := &subscription.Subscription{
		ID:                 uuid.New(),
		TenantID:           tenantID,
		PlanID:             "starter",
		Status:             subscription.StatusTrialing,
		CurrentPeriodStart: start,
		CurrentPeriodEnd:   trialEnd,
		IsTrial:            true,
		TrialStart:         &start,
		TrialEnd:           &trialEnd,
		CreatedAt:          start,
		UpdatedAt:          start,
	}
	require.NoError(t, store.Create(context.Background(), sub))
	return sub
}

func countCurrent(t *testing.T, store subscription.Store, tenantID uuid.UUID) int {
	t.Helper()
	subs, err := store.ListByTenant(context.Background(), tenantID)
	require.NoError(t, err)
	n := 0
	for _, s := range subs {
		if s.Status == subscription.StatusActive {
			n++
		}
	}
	return n
}
