package subscription

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/logger"
)

// GetSubscription returns a single subscription with its recent invoices.
func (s *service) GetSubscription(ctx context.Context, id uuid.UUID) (*HistoryEntry, error) {
	sub, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, wrapStorage(err)
	}
	return s.historyEntry(ctx, sub)
}

// ForceSubscriptionUpdate switches the tenant's active subscription to planID
// immediately, whatever the tier direction. No proration is charged and any
// scheduled change is dropped.
func (s *service) ForceSubscriptionUpdate(ctx context.Context, tenantID uuid.UUID, planID string) (res *Subscription, err error) {
	defer func() { s.metrics.observeOperation("force_update", err) }()

	if planID == "" {
		return nil, ErrMissingPlanID
	}
	if _, err := s.catalog.Get(planID); err != nil {
		return nil, err
	}

	var previous string
	now := s.now()
	sub, _, err := s.mutate(ctx, s.activeLoader(tenantID), func(sub *Subscription) (*Invoice, error) {
		if err := sub.apply(EventChangePlan); err != nil {
			return nil, err
		}
		previous = sub.PlanID
		sub.PlanID = planID
		sub.ClearScheduledChange()
		sub.UpdatedAt = now
		return nil, nil
	})
	if err != nil {
		return nil, err
	}

	s.afterMutation(ctx, tenantID)
	s.record(ctx, ActionPlanForced, sub, map[string]any{"from_plan": previous, "to_plan": planID})
	s.logger.InfoContext(ctx, "subscription plan forced",
		logger.TenantID(tenantID),
		logger.SubscriptionID(sub.ID),
		logger.PlanID(planID),
	)
	return sub, nil
}

// AssignPlanToTenant puts the tenant on planID without billing. An active
// subscription is switched in place; otherwise a one-month, non-trial active
// subscription is created.
func (s *service) AssignPlanToTenant(ctx context.Context, tenantID uuid.UUID, planID string) (res *Subscription, err error) {
	defer func() { s.metrics.observeOperation("assign_plan", err) }()

	if tenantID == uuid.Nil {
		return nil, ErrMissingTenantID
	}
	if planID == "" {
		return nil, ErrMissingPlanID
	}
	if _, err := s.catalog.Get(planID); err != nil {
		return nil, err
	}

	current, err := s.store.GetCurrent(ctx, tenantID)
	switch {
	case err == nil && current.Status == StatusActive:
		return s.ForceSubscriptionUpdate(ctx, tenantID, planID)
	case err == nil:
		return nil, errors.Join(ErrInvalidSubscriptionState,
			errors.New("tenant is trialing; convert or expire the trial first"))
	case !errors.Is(err, ErrSubscriptionNotFound):
		return nil, wrapStorage(err)
	}

	now := s.now()
	sub := &Subscription{
		ID:                 uuid.New(),
		TenantID:           tenantID,
		PlanID:             planID,
		Status:             StatusActive,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now.AddDate(0, 1, 0),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.store.Create(ctx, sub); err != nil {
		return nil, wrapStorage(err)
	}

	s.afterMutation(ctx, tenantID)
	s.record(ctx, ActionPlanAssigned, sub, map[string]any{"plan_id": planID})
	s.logger.InfoContext(ctx, "plan assigned to tenant",
		logger.TenantID(tenantID),
		logger.SubscriptionID(sub.ID),
		logger.PlanID(planID),
	)
	return sub, nil
}

// CancelScheduledChange drops a pending deferred plan change.
func (s *service) CancelScheduledChange(ctx context.Context, subscriptionID uuid.UUID) (res *Subscription, err error) {
	defer func() { s.metrics.observeOperation("cancel_scheduled_change", err) }()

	var dropped string
	sub, _, err := s.mutate(ctx, s.byIDLoader(subscriptionID), func(sub *Subscription) (*Invoice, error) {
		if !sub.HasScheduledChange() {
			return nil, ErrNoScheduledChange
		}
		dropped = *sub.ScheduledPlanID
		sub.ClearScheduledChange()
		sub.UpdatedAt = s.now()
		return nil, nil
	})
	if err != nil {
		return nil, err
	}

	s.afterMutation(ctx, sub.TenantID)
	s.record(ctx, ActionScheduledChangeCanceled, sub, map[string]any{"scheduled_plan_id": dropped})
	s.logger.InfoContext(ctx, "scheduled plan change cancelled",
		logger.TenantID(sub.TenantID),
		logger.SubscriptionID(sub.ID),
		logger.PlanID(dropped),
	)
	return sub, nil
}

// ExpireTrial flips the tenant's trialing subscription to expired right away.
func (s *service) ExpireTrial(ctx context.Context, tenantID uuid.UUID) (res *Subscription, err error) {
	defer func() { s.metrics.observeOperation("expire_trial", err) }()

	now := s.now()
	sub, _, err := s.mutate(ctx, s.currentLoader(tenantID), func(sub *Subscription) (*Invoice, error) {
		if !sub.IsTrialing() {
			return nil, ErrTrialNotActive
		}
		return nil, expireTrial(sub, now)
	})
	if err != nil {
		return nil, err
	}

	s.afterMutation(ctx, tenantID)
	s.record(ctx, ActionTrialExpired, sub, map[string]any{"forced": true})
	s.logger.InfoContext(ctx, "trial expired by administrator",
		logger.TenantID(tenantID),
		logger.SubscriptionID(sub.ID),
	)
	return sub, nil
}

// StartTrial opens a trial of the given length on planID for a tenant without a
// current subscription.
func (s *service) StartTrial(ctx context.Context, tenantID uuid.UUID, planID string, duration time.Duration) (res *Subscription, err error) {
	defer func() { s.metrics.observeOperation("start_trial", err) }()

	if tenantID == uuid.Nil {
		return nil, ErrMissingTenantID
	}
	if duration <= 0 {
		return nil, ErrInvalidTrialDuration
	}
	if _, err := s.catalog.Get(planID); err != nil {
		return nil, err
	}

	now := s.now()
	start, end := now, now.Add(duration)
	sub := &Subscription{
		ID:                 uuid.New(),
		TenantID:           tenantID,
		PlanID:             planID,
		Status:             StatusTrialing,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   end,
		IsTrial:            true,
		TrialStart:         &start,
		TrialEnd:           &end,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.store.Create(ctx, sub); err != nil {
		return nil, wrapStorage(err)
	}

	s.afterMutation(ctx, tenantID)
	s.record(ctx, ActionTrialStarted, sub, map[string]any{
		"plan_id":  planID,
		"duration": duration.String(),
	})
	s.logger.InfoContext(ctx, "trial started",
		logger.TenantID(tenantID),
		logger.SubscriptionID(sub.ID),
		logger.PlanID(planID),
		slog.Time("trial_end", end),
	)
	return sub, nil
}

// expireTrial moves a trialing row to expired.
func expireTrial(sub *Subscription, now time.Time) error {
	if err := sub.apply(EventExpireTrial); err != nil {
		return err
	}
	sub.UpdatedAt = now
	return nil
}
