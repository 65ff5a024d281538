package subscription

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Subscription is one row of a tenant's subscription history.
// A tenant has at most one current (active or trialing) row at a time;
// cancelled and expired rows are kept forever.
type Subscription struct {
	ID                     uuid.UUID          `json:"id"`
	TenantID               uuid.UUID          `json:"tenant_id"`
	PlanID                 string             `json:"plan_id"`
	Status                 SubscriptionStatus `json:"status"`
	CurrentPeriodStart     time.Time          `json:"current_period_start"`
	CurrentPeriodEnd       time.Time          `json:"current_period_end"`
	CancelAtPeriodEnd      bool               `json:"cancel_at_period_end"`
	CanceledAt             *time.Time         `json:"canceled_at,omitempty"`
	ScheduledPlanID        *string            `json:"scheduled_plan_id,omitempty"`
	ScheduledEffectiveDate *time.Time         `json:"scheduled_effective_date,omitempty"`
	IsTrial                bool               `json:"is_trial"`
	TrialStart             *time.Time         `json:"trial_start,omitempty"`
	TrialEnd               *time.Time         `json:"trial_end,omitempty"`
	Version                int64              `json:"version"`
	CreatedAt              time.Time          `json:"created_at"`
	UpdatedAt              time.Time          `json:"updated_at"`
}

// IsTrialing returns true if the subscription is in trial status.
func (s *Subscription) IsTrialing() bool {
	return s.Status == StatusTrialing
}

// IsActive returns true if the subscription is active (paid).
func (s *Subscription) IsActive() bool {
	return s.Status == StatusActive
}

// IsCancelled returns true if the subscription is cancelled.
func (s *Subscription) IsCancelled() bool {
	return s.Status == StatusCancelled
}

// IsCurrent reports whether the row is the tenant's live subscription.
func (s *Subscription) IsCurrent() bool {
	return s.Status == StatusActive || s.Status == StatusTrialing
}

// AccessAfterCancelAt reports whether a row cancelled at period end still
// grants access at now. Access ends at CurrentPeriodEnd.
func (s *Subscription) AccessAfterCancelAt(now time.Time) bool {
	return s.Status == StatusCancelled && s.CancelAtPeriodEnd && now.Before(s.CurrentPeriodEnd)
}

// HasScheduledChange reports whether a deferred plan change is pending.
func (s *Subscription) HasScheduledChange() bool {
	return s.ScheduledPlanID != nil
}

// IsTrialExpiredAt reports whether a trial row's window has closed at now.
func (s *Subscription) IsTrialExpiredAt(now time.Time) bool {
	if !s.IsTrial || s.TrialEnd == nil {
		return false
	}
	return now.After(*s.TrialEnd)
}

// TrialDaysRemainingAt returns the number of days remaining in the trial at a given time.
// Returns 0 if not in trial or trial has expired.
func (s *Subscription) TrialDaysRemainingAt(now time.Time) int {
	if !s.IsTrialing() || s.TrialEnd == nil {
		return 0
	}

	remaining := s.TrialEnd.Sub(now)
	if remaining <= 0 {
		return 0
	}

	// Round to nearest day
	days := remaining.Hours() / 24
	return int(days + 0.5)
}

// ScheduleChange records a deferred move to planID effective at the given time.
func (s *Subscription) ScheduleChange(planID string, effective time.Time) {
	s.ScheduledPlanID = &planID
	s.ScheduledEffectiveDate = &effective
}

// ClearScheduledChange drops both scheduling fields together.
func (s *Subscription) ClearScheduledChange() {
	s.ScheduledPlanID = nil
	s.ScheduledEffectiveDate = nil
}

// Validate checks the row-level invariants.
func (s *Subscription) Validate() error {
	if s.TenantID == uuid.Nil {
		return ErrMissingTenantID
	}
	if s.PlanID == "" {
		return ErrMissingPlanID
	}
	if !s.Status.Valid() {
		return errors.Join(ErrInvalidSubscriptionState, errors.New("unknown status "+string(s.Status)))
	}
	if (s.ScheduledPlanID == nil) != (s.ScheduledEffectiveDate == nil) {
		return errors.Join(ErrInvalidSubscriptionState,
			errors.New("scheduled plan and effective date must be set together"))
	}
	if !s.CurrentPeriodEnd.After(s.CurrentPeriodStart) {
		return errors.Join(ErrInvalidSubscriptionState,
			errors.New("current period end must be after its start"))
	}
	return nil
}

// Clone returns a deep copy of the subscription.
func (s *Subscription) Clone() *Subscription {
	if s == nil {
		return nil
	}
	c := *s
	c.CanceledAt = clonePtr(s.CanceledAt)
	c.ScheduledPlanID = clonePtr(s.ScheduledPlanID)
	c.ScheduledEffectiveDate = clonePtr(s.ScheduledEffectiveDate)
	c.TrialStart = clonePtr(s.TrialStart)
	c.TrialEnd = clonePtr(s.TrialEnd)
	return &c
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
