package subscription_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/subscription"
)

func TestNewCatalog(t *testing.T) {
	t.Parallel()

	t.Run("lists plans by rank", func(t *testing.T) {
		t.Parallel()

		catalog := newTestCatalog(t)
		plans := catalog.List()
		require.Len(t, plans, 4)
		assert.Equal(t, []string{"starter", "basic", "pro", "enterprise"},
			[]string{plans[0].ID, plans[1].ID, plans[2].ID, plans[3].ID})
	})

	t.Run("returned plans are copies", func(t *testing.T) {
		t.Parallel()

		catalog := newTestCatalog(t)
		plan, err := catalog.Get("pro")
		require.NoError(t, err)
		plan.Features[subscription.FeatureSSO] = true

		again, err := catalog.Get("pro")
		require.NoError(t, err)
		assert.False(t, again.HasFeature(subscription.FeatureSSO))
	})

	t.Run("panics without source", func(t *testing.T) {
		t.Parallel()

		assert.Panics(t, func() {
			_, _ = subscription.NewCatalog(context.Background(), nil)
		})
	})

	invalid := map[string]func(p *subscription.Plan){
		"empty name":       func(p *subscription.Plan) { p.Name = "" },
		"duplicate name":   func(p *subscription.Plan) { p.Name = "Pro" },
		"duplicate rank":   func(p *subscription.Plan) { p.Rank = 2 },
		"negative price":   func(p *subscription.Plan) { p.Price = decimal.NewFromInt(-1) },
		"unknown currency": func(p *subscription.Plan) { p.Currency = "ZZZ1" },
		"bad interval":     func(p *subscription.Plan) { p.Interval = "weekly" },
		"negative trial":   func(p *subscription.Plan) { p.TrialDays = -1 },
	}
	for name, mutate := range invalid {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			plans := testPlans()
			mutate(&plans[1])
			_, err := subscription.NewCatalog(context.Background(), subscription.NewInMemSource(plans...))
			require.Error(t, err)
			assert.ErrorIs(t, err, subscription.ErrInvalidPlanConfiguration)
			assert.True(t, subscription.IsValidation(err))
		})
	}
}

func TestCatalog_Lookups(t *testing.T) {
	t.Parallel()

	catalog := newTestCatalog(t)

	t.Run("unknown plan", func(t *testing.T) {
		t.Parallel()

		_, err := catalog.Get("platinum")
		assert.ErrorIs(t, err, subscription.ErrPlanNotFound)
		assert.True(t, subscription.IsNotFound(err))
	})

	t.Run("tier rank", func(t *testing.T) {
		t.Parallel()

		rank, err := catalog.TierRank("pro")
		require.NoError(t, err)
		assert.Equal(t, 2, rank)

		_, err = catalog.TierRank("platinum")
		assert.ErrorIs(t, err, subscription.ErrUnknownPlanTier)
	})

	t.Run("upgrade direction", func(t *testing.T) {
		t.Parallel()

		up, err := catalog.IsUpgrade("basic", "pro")
		require.NoError(t, err)
		assert.True(t, up)

		up, err = catalog.IsUpgrade("pro", "basic")
		require.NoError(t, err)
		assert.False(t, up)

		up, err = catalog.IsUpgrade("pro", "pro")
		require.NoError(t, err)
		assert.False(t, up, "lateral move is not an upgrade")

		_, err = catalog.IsUpgrade("basic", "platinum")
		assert.ErrorIs(t, err, subscription.ErrUnknownPlanTier)
	})
}
