package entitlement_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/subscription"
)

var start = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(t time.Time) *clock { return &clock{now: t} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func testCatalog(t *testing.T) *subscription.Catalog {
	t.Helper()
	catalog, err := subscription.NewCatalog(context.Background(), subscription.NewInMemSource(
		subscription.Plan{
			ID:        "basic",
			Name:      "Basic",
			Rank:      0,
			Price:     decimal.Zero,
			Currency:  "USD",
			Interval:  subscription.BillingIntervalMonthly,
			TrialDays: 14,
			Limits:    map[subscription.Resource]int64{subscription.ResourceUsers: 3},
		},
		subscription.Plan{
			ID:       "pro",
			Name:     "Pro",
			Rank:     1,
			Price:    decimal.RequireFromString("29"),
			Currency: "USD",
			Interval: subscription.BillingIntervalMonthly,
			Features: map[subscription.Feature]bool{subscription.FeatureAnalytics: true},
			Limits:   map[subscription.Resource]int64{subscription.ResourceUsers: 10},
		},
	))
	require.NoError(t, err)
	return catalog
}

type mockReader struct {
	mock.Mock
}

func (m *mockReader) EntitledSubscription(ctx context.Context, tenantID uuid.UUID) (*subscription.CurrentSubscription, error) {
	args := m.Called(ctx, tenantID)
	cur, _ := args.Get(0).(*subscription.CurrentSubscription)
	return cur, args.Error(1)
}

func (m *mockReader) CheckTrialStatus(ctx context.Context, tenantID uuid.UUID) (subscription.TrialStatus, error) {
	args := m.Called(ctx, tenantID)
	return args.Get(0).(subscription.TrialStatus), args.Error(1)
}

func activeOn(t *testing.T, planID string) *subscription.CurrentSubscription {
	t.Helper()
	plan, err := testCatalog(t).Get(planID)
	require.NoError(t, err)
	return &subscription.CurrentSubscription{
		Subscription: &subscription.Subscription{
			ID:     uuid.New(),
			PlanID: planID,
			Status: subscription.StatusActive,
		},
		Plan: plan,
	}
}
