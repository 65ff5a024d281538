package subscription

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"golang.org/x/text/currency"
)

// Catalog is the immutable, rank-ordered set of plans the engine knows about.
// Every plan belongs to the tier table; lookups of anything else fail instead
// of falling back to a default tier.
type Catalog struct {
	plans  map[string]Plan
	sorted []Plan
}

// NewCatalog loads plans from src and validates them.
// Panics if src is nil.
func NewCatalog(ctx context.Context, src PlansListSource) (*Catalog, error) {
	if src == nil {
		panic("subscription: PlansListSource is required")
	}

	plans, err := src.Load(ctx)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}

	if err := validatePlans(plans); err != nil {
		return nil, err
	}

	sorted := make([]Plan, 0, len(plans))
	for _, p := range plans {
		sorted = append(sorted, p)
	}
	slices.SortFunc(sorted, func(a, b Plan) int { return cmp.Compare(a.Rank, b.Rank) })

	return &Catalog{plans: plans, sorted: sorted}, nil
}

// Get returns the plan with the given ID.
func (c *Catalog) Get(id string) (Plan, error) {
	plan, ok := c.plans[id]
	if !ok {
		return Plan{}, ErrPlanNotFound
	}
	return plan.clone(), nil
}

// List returns all plans ordered by rank, lowest tier first.
func (c *Catalog) List() []Plan {
	out := make([]Plan, len(c.sorted))
	for i, p := range c.sorted {
		out[i] = p.clone()
	}
	return out
}

// TierRank returns the rank of a plan in the tier table.
func (c *Catalog) TierRank(id string) (int, error) {
	plan, ok := c.plans[id]
	if !ok {
		return 0, errors.Join(ErrUnknownPlanTier, fmt.Errorf("plan %q", id))
	}
	return plan.Rank, nil
}

// IsUpgrade reports whether moving from current to target climbs the tier table.
// Lateral moves are not upgrades.
func (c *Catalog) IsUpgrade(current, target string) (bool, error) {
	from, err := c.TierRank(current)
	if err != nil {
		return false, err
	}
	to, err := c.TierRank(target)
	if err != nil {
		return false, err
	}
	return to > from, nil
}

// validatePlans ensures plan configurations are internally consistent.
func validatePlans(plans map[string]Plan) error {
	if len(plans) == 0 {
		return errors.Join(ErrInvalidPlanConfiguration, errors.New("no plans configured"))
	}

	names := make(map[string]string, len(plans))
	ranks := make(map[int]string, len(plans))

	for planID, plan := range plans {
		if plan.ID != planID {
			return errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan ID mismatch: map key %s != plan.ID %s", planID, plan.ID))
		}
		if plan.ID == "" || plan.Name == "" {
			return errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan %q must have an ID and a name", planID))
		}
		if other, dup := names[plan.Name]; dup {
			return errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plans %s and %s share the name %q", other, planID, plan.Name))
		}
		names[plan.Name] = planID

		if other, dup := ranks[plan.Rank]; dup {
			return errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plans %s and %s share rank %d", other, planID, plan.Rank))
		}
		ranks[plan.Rank] = planID

		if plan.Price.IsNegative() {
			return errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan %s has negative price %s", planID, plan.Price))
		}
		if _, err := currency.ParseISO(plan.Currency); err != nil {
			return errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan %s has invalid currency %q: %w", planID, plan.Currency, err))
		}
		if !plan.Interval.Valid() {
			return errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan %s has unsupported interval %q", planID, plan.Interval))
		}
		if plan.TrialDays < 0 {
			return errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan %s has negative trial days: %d", planID, plan.TrialDays))
		}
	}
	return nil
}
