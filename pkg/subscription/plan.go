package subscription

import (
	"maps"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// Plan describes a subscription plan: its tier rank, price and resource/feature constraints.
// Plans are loaded once into a Catalog and never mutated afterwards.
type Plan struct {
	ID          string             `yaml:"id" json:"id"`
	Name        string             `yaml:"name" json:"name"`
	Description string             `yaml:"description" json:"description,omitempty"`
	Rank        int                `yaml:"rank" json:"rank"` // higher rank is a higher tier, unique per catalog
	Price       decimal.Decimal    `yaml:"-" json:"price"`
	Currency    string             `yaml:"currency" json:"currency"`
	Interval    BillingInterval    `yaml:"interval" json:"interval"`
	TrialDays   int                `yaml:"trial_days" json:"trial_days"`
	Features    map[Feature]bool   `yaml:"features" json:"features"`
	Limits      map[Resource]int64 `yaml:"limits" json:"limits"` // -1 represents unlimited
	Public      bool               `yaml:"public" json:"public"`
}

// HasFeature reports whether the feature flag is enabled on the plan.
func (p Plan) HasFeature(f Feature) bool {
	return p.Features[f]
}

// Limit returns the configured limit for a resource and whether the plan defines it.
func (p Plan) Limit(res Resource) (int64, bool) {
	limit, ok := p.Limits[res]
	return limit, ok
}

// EnabledFeatures returns the enabled feature flags in lexical order.
func (p Plan) EnabledFeatures() []Feature {
	features := make([]Feature, 0, len(p.Features))
	for f, on := range p.Features {
		if on {
			features = append(features, f)
		}
	}
	slices.Sort(features)
	return features
}

// PeriodEnd returns the end of a billing period that starts at start.
func (p Plan) PeriodEnd(start time.Time) time.Time {
	if p.Interval == BillingIntervalYearly {
		return start.AddDate(1, 0, 0)
	}
	return start.AddDate(0, 1, 0)
}

// TrialEndsAt calculates when the trial period ends.
// Returns startedAt unchanged if no trial is available.
func (p Plan) TrialEndsAt(startedAt time.Time) time.Time {
	if p.TrialDays <= 0 {
		return startedAt
	}
	return startedAt.AddDate(0, 0, p.TrialDays).UTC()
}

// PlanComparison contains the differences between two plans.
// Returned with scheduled downgrades to communicate what the tenant loses.
type PlanComparison struct {
	NewFeatures      []Feature                   `json:"new_features"`
	LostFeatures     []Feature                   `json:"lost_features"`
	IncreasedLimits  map[Resource]ResourceChange `json:"increased_limits"`
	DecreasedLimits  map[Resource]ResourceChange `json:"decreased_limits"`
	NewResources     map[Resource]int64          `json:"new_resources"`
	RemovedResources map[Resource]int64          `json:"removed_resources"`
}

// ResourceChange represents a change in resource limit.
type ResourceChange struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

// HasResourceDecreases returns true if any resources have decreased limits.
func (c *PlanComparison) HasResourceDecreases() bool {
	return len(c.DecreasedLimits) > 0 || len(c.RemovedResources) > 0
}

// ComparePlans returns the differences between current and target plans.
func ComparePlans(current, target *Plan) *PlanComparison {
	if current == nil || target == nil {
		return nil
	}

	comparison := &PlanComparison{
		NewFeatures:      make([]Feature, 0),
		LostFeatures:     make([]Feature, 0),
		IncreasedLimits:  make(map[Resource]ResourceChange),
		DecreasedLimits:  make(map[Resource]ResourceChange),
		NewResources:     make(map[Resource]int64),
		RemovedResources: make(map[Resource]int64),
	}

	currentFeatures := current.EnabledFeatures()
	targetFeatures := target.EnabledFeatures()

	for _, feature := range targetFeatures {
		if !slices.Contains(currentFeatures, feature) {
			comparison.NewFeatures = append(comparison.NewFeatures, feature)
		}
	}

	for _, feature := range currentFeatures {
		if !slices.Contains(targetFeatures, feature) {
			comparison.LostFeatures = append(comparison.LostFeatures, feature)
		}
	}

	for resource, targetLimit := range target.Limits {
		currentLimit, exists := current.Limits[resource]
		if !exists {
			comparison.NewResources[resource] = targetLimit
			continue
		}
		if targetLimit == currentLimit {
			continue
		}

		change := ResourceChange{From: currentLimit, To: targetLimit}
		switch {
		// Unlimited to limited always counts as a decrease.
		case currentLimit == Unlimited:
			comparison.DecreasedLimits[resource] = change
		case targetLimit == Unlimited, targetLimit > currentLimit:
			comparison.IncreasedLimits[resource] = change
		default:
			comparison.DecreasedLimits[resource] = change
		}
	}

	for resource, currentLimit := range current.Limits {
		if _, exists := target.Limits[resource]; !exists {
			comparison.RemovedResources[resource] = currentLimit
		}
	}

	return comparison
}

func (p Plan) clone() Plan {
	c := p
	c.Features = maps.Clone(p.Features)
	c.Limits = maps.Clone(p.Limits)
	return c
}
