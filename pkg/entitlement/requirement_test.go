package entitlement_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/billingkit/pkg/entitlement"
	"github.com/dmitrymomot/billingkit/pkg/subscription"
)

func TestAuthorize(t *testing.T) {
	t.Parallel()

	pro := entitlement.Entitlements{
		PlanID:   "pro",
		PlanRank: 1,
		Status:   subscription.StatusActive,
		Features: map[subscription.Feature]bool{
			subscription.FeatureAnalytics: true,
			subscription.FeatureSSO:       false,
		},
	}
	none := entitlement.Entitlements{PlanRank: entitlement.NoPlanRank}

	tests := []struct {
		name string
		ent  entitlement.Entitlements
		req  entitlement.Requirement
		want bool
	}{
		{"nil requirement", none, nil, true},
		{"same rank", pro, entitlement.RequiredPlan{Rank: 1}, true},
		{"lower rank", pro, entitlement.RequiredPlan{Rank: 0}, true},
		{"higher rank", pro, entitlement.RequiredPlan{Rank: 2}, false},
		{"enabled feature", pro, entitlement.RequiredFeature{Feature: subscription.FeatureAnalytics}, true},
		{"disabled feature", pro, entitlement.RequiredFeature{Feature: subscription.FeatureSSO}, false},
		{"missing feature", pro, entitlement.RequiredFeature{Feature: subscription.FeatureWhiteLabel}, false},
		{"no plan, rank zero", none, entitlement.RequiredPlan{Rank: 0}, false},
		{"no plan, feature", none, entitlement.RequiredFeature{Feature: subscription.FeatureAnalytics}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, entitlement.Authorize(tt.ent, tt.req))
		})
	}
}

func TestEntitlements_TrialBlocks(t *testing.T) {
	t.Parallel()

	expired := subscription.TrialStatus{IsTrial: true, TrialExpired: true, Status: subscription.StatusExpired}
	lapsed := subscription.TrialStatus{IsTrial: true, TrialExpired: true, Status: subscription.StatusTrialing}

	assert.True(t, entitlement.Entitlements{Status: subscription.StatusExpired, Trial: expired}.TrialBlocks())
	assert.False(t, entitlement.Entitlements{Status: subscription.StatusActive, Trial: expired}.TrialBlocks())
	assert.False(t, entitlement.Entitlements{Status: subscription.StatusTrialing, Trial: lapsed}.TrialBlocks())
}

func TestRequirement_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "plan_rank>=2", entitlement.RequiredPlan{Rank: 2}.String())
	assert.Equal(t, "feature:sso", entitlement.RequiredFeature{Feature: subscription.FeatureSSO}.String())
}
