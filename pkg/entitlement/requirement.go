package entitlement

import (
	"fmt"

	"github.com/dmitrymomot/billingkit/pkg/subscription"
)

// Requirement is a condition a tenant's entitlements must satisfy.
// Implemented by RequiredPlan and RequiredFeature only.
type Requirement interface {
	fmt.Stringer
	requirement()
}

// RequiredPlan demands a plan of at least Rank.
type RequiredPlan struct {
	Rank int
}

func (RequiredPlan) requirement() {}

func (r RequiredPlan) String() string { return fmt.Sprintf("plan_rank>=%d", r.Rank) }

// RequiredFeature demands an enabled feature flag.
type RequiredFeature struct {
	Feature subscription.Feature
}

func (RequiredFeature) requirement() {}

func (r RequiredFeature) String() string { return "feature:" + string(r.Feature) }

// Authorize evaluates a single requirement against a snapshot.
// A nil requirement is always satisfied.
func Authorize(ent Entitlements, req Requirement) bool {
	switch r := req.(type) {
	case nil:
		return true
	case RequiredPlan:
		return ent.HasPlan(r.Rank)
	case RequiredFeature:
		return ent.HasFeature(r.Feature)
	default:
		return false
	}
}

func requirementError(req Requirement) error {
	if _, ok := req.(RequiredFeature); ok {
		return ErrFeatureRequired
	}
	return ErrPlanRequired
}
