package entitlement

import (
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/subscription"
)

// NoPlanRank is the rank of a tenant without a current subscription.
// It is below every catalog rank, so any RequiredPlan fails.
const NoPlanRank = -1

// Entitlements is a point-in-time snapshot of what a tenant may use.
type Entitlements struct {
	TenantID    uuid.UUID                       `json:"tenant_id"`
	PlanID      string                          `json:"plan_id,omitempty"`
	PlanRank    int                             `json:"plan_rank"`
	Status      subscription.SubscriptionStatus `json:"status,omitempty"`
	Features    map[subscription.Feature]bool   `json:"features,omitempty"`
	Limits      map[subscription.Resource]int64 `json:"limits,omitempty"`
	Trial       subscription.TrialStatus        `json:"trial"`
	AccessUntil *time.Time                      `json:"access_until,omitempty"` // set while a cancelled plan runs out its period
	ResolvedAt  time.Time                       `json:"resolved_at"`
}

// HasPlan reports whether the tenant is on a plan of at least the given rank.
func (e Entitlements) HasPlan(rank int) bool {
	return e.PlanID != "" && e.PlanRank >= rank
}

// HasFeature reports whether the tenant's plan enables the feature.
func (e Entitlements) HasFeature(f subscription.Feature) bool {
	return e.PlanID != "" && e.Features[f]
}

// TrialBlocks reports whether an expired trial denies access. A paid active
// subscription, or a cancelled one still inside its period, wins over an older
// trial row.
func (e Entitlements) TrialBlocks() bool {
	return e.Status != subscription.StatusActive && e.AccessUntil == nil && e.Trial.Blocks()
}

// ExpiredAt reports whether the snapshot describes access that has run out by now.
func (e Entitlements) ExpiredAt(now time.Time) bool {
	return e.AccessUntil != nil && !now.Before(*e.AccessUntil)
}

func newEntitlements(tenantID uuid.UUID, cur *subscription.CurrentSubscription, trial subscription.TrialStatus, now time.Time) Entitlements {
	ent := Entitlements{
		TenantID:   tenantID,
		PlanRank:   NoPlanRank,
		Status:     trial.Status,
		Trial:      trial,
		ResolvedAt: now,
	}
	if cur == nil || cur.Subscription == nil {
		return ent
	}
	ent.PlanID = cur.Plan.ID
	ent.PlanRank = cur.Plan.Rank
	ent.Status = cur.Subscription.Status
	ent.Features = cur.Plan.Features
	ent.Limits = cur.Plan.Limits
	if cur.Subscription.Status == subscription.StatusCancelled {
		until := cur.Subscription.CurrentPeriodEnd
		ent.AccessUntil = &until
	}
	return ent
}
