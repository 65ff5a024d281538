package subscription

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/audit"
	"github.com/dmitrymomot/billingkit/pkg/logger"
)

// Service defines the public interface for subscription lifecycle management.
type Service interface {
	// Plans
	ListPlans(ctx context.Context) []Plan

	// Tenant lifecycle
	CreateSubscription(ctx context.Context, tenantID uuid.UUID, planID string) (*CreateResult, error)
	UpdateSubscription(ctx context.Context, tenantID uuid.UUID, req ChangeRequest) (*ChangeResult, error)
	CancelSubscription(ctx context.Context, tenantID uuid.UUID, opts ...CancelOption) (*Subscription, error)
	CurrentSubscription(ctx context.Context, tenantID uuid.UUID) (*CurrentSubscription, error)
	EntitledSubscription(ctx context.Context, tenantID uuid.UUID) (*CurrentSubscription, error)
	SubscriptionHistory(ctx context.Context, tenantID uuid.UUID) ([]HistoryEntry, error)
	CheckTrialStatus(ctx context.Context, tenantID uuid.UUID) (TrialStatus, error)
	ValidateSubscription(ctx context.Context, tenantID uuid.UUID) (Validity, error)

	// Payment gateway
	ApplyGatewayEvent(ctx context.Context, event GatewayEvent) error

	// Administration. None of these operations bill the tenant.
	GetSubscription(ctx context.Context, id uuid.UUID) (*HistoryEntry, error)
	ForceSubscriptionUpdate(ctx context.Context, tenantID uuid.UUID, planID string) (*Subscription, error)
	AssignPlanToTenant(ctx context.Context, tenantID uuid.UUID, planID string) (*Subscription, error)
	CancelScheduledChange(ctx context.Context, subscriptionID uuid.UUID) (*Subscription, error)
	ExpireTrial(ctx context.Context, tenantID uuid.UUID) (*Subscription, error)
	StartTrial(ctx context.Context, tenantID uuid.UUID, planID string, duration time.Duration) (*Subscription, error)
}

// AuditLogger records billing actions. *audit.Logger satisfies it.
type AuditLogger interface {
	Log(ctx context.Context, action string, opts ...audit.EventOption) error
}

// Invalidator drops cached per-tenant state after the tenant's subscription changes.
type Invalidator interface {
	Invalidate(ctx context.Context, tenantID uuid.UUID)
}

// Audit actions, recorded with the "billing_" prefix.
const (
	ActionSubscriptionCreated     = "billing_subscription_created"
	ActionSubscriptionUpgraded    = "billing_subscription_upgraded"
	ActionDowngradeScheduled      = "billing_subscription_downgrade_scheduled"
	ActionSubscriptionCancelled   = "billing_subscription_cancelled"
	ActionTrialStarted            = "billing_subscription_trial_started"
	ActionTrialConverted          = "billing_subscription_trial_converted"
	ActionTrialExpired            = "billing_subscription_trial_expired"
	ActionScheduledChangeApplied  = "billing_subscription_scheduled_change_applied"
	ActionScheduledChangeCanceled = "billing_subscription_scheduled_change_cancelled"
	ActionPlanForced              = "billing_subscription_plan_forced"
	ActionPlanAssigned            = "billing_subscription_plan_assigned"
	ActionInvoiceCreated          = "billing_payment_invoice_created"
)

const (
	defaultConflictRetries     = 3
	defaultHistoryInvoiceLimit = 10
)

type service struct {
	catalog             *Catalog
	store               Store
	logger              *slog.Logger
	now                 func() time.Time
	audit               AuditLogger
	metrics             *Metrics
	invalidators        []Invalidator
	conflictRetries     int
	historyInvoiceLimit int
}

// NewService creates a new Service with the given dependencies.
// Panics if catalog or store is nil.
func NewService(catalog *Catalog, store Store, opts ...ServiceOption) Service {
	if catalog == nil {
		panic("subscription: Catalog is required")
	}
	if store == nil {
		panic("subscription: Store is required")
	}

	s := &service{
		catalog:             catalog,
		store:               store,
		logger:              slog.Default(),
		now:                 func() time.Time { return time.Now().UTC() },
		conflictRetries:     defaultConflictRetries,
		historyInvoiceLimit: defaultHistoryInvoiceLimit,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.logger = s.logger.With(logger.Component("subscription"))
	return s
}

// ListPlans returns the catalog ordered by tier.
func (s *service) ListPlans(ctx context.Context) []Plan {
	return s.catalog.List()
}

// CreateSubscription subscribes a tenant to a plan.
// An active subscription turns the request into a plan change; a trialing one is
// converted to paid on the requested plan. Asking for the plan the tenant is
// already active on returns ErrSubscriptionAlreadyExists.
func (s *service) CreateSubscription(ctx context.Context, tenantID uuid.UUID, planID string) (res *CreateResult, err error) {
	defer func() { s.metrics.observeOperation("create", err) }()

	if tenantID == uuid.Nil {
		return nil, ErrMissingTenantID
	}
	if planID == "" {
		return nil, ErrMissingPlanID
	}
	plan, err := s.catalog.Get(planID)
	if err != nil {
		return nil, err
	}

	// A concurrent creation can win the uniqueness check; the second pass sees its row.
	for attempt := 0; attempt < 2; attempt++ {
		current, err := s.store.GetCurrent(ctx, tenantID)
		switch {
		case err == nil && current.Status == StatusActive:
			if current.PlanID == plan.ID {
				return nil, ErrSubscriptionAlreadyExists
			}
			change, err := s.UpdateSubscription(ctx, tenantID, ChangeRequest{PlanID: planID})
			if err != nil {
				return nil, err
			}
			return &CreateResult{Subscription: change.Subscription, Change: change}, nil

		case err == nil && current.Status == StatusTrialing:
			sub, err := s.convertTrial(ctx, tenantID, plan)
			if err != nil {
				return nil, err
			}
			return &CreateResult{Subscription: sub, ConvertedTrial: true}, nil

		case err != nil && !errors.Is(err, ErrSubscriptionNotFound):
			return nil, wrapStorage(err)
		}

		sub := newSubscription(tenantID, plan, s.now())
		if err := s.store.Create(ctx, sub); err != nil {
			if errors.Is(err, ErrSubscriptionAlreadyExists) && attempt == 0 {
				s.logger.DebugContext(ctx, "lost subscription creation race, retrying as change",
					logger.TenantID(tenantID))
				continue
			}
			return nil, wrapStorage(err)
		}

		s.afterMutation(ctx, tenantID)
		action := ActionSubscriptionCreated
		if sub.IsTrial {
			action = ActionTrialStarted
		}
		s.record(ctx, action, sub, map[string]any{
			"plan_id": sub.PlanID,
			"status":  string(sub.Status),
		})
		s.logger.InfoContext(ctx, "subscription created",
			logger.TenantID(tenantID),
			logger.SubscriptionID(sub.ID),
			logger.PlanID(sub.PlanID),
			slog.String("status", string(sub.Status)),
		)
		return &CreateResult{Subscription: sub}, nil
	}

	return nil, ErrSubscriptionAlreadyExists
}

// UpdateSubscription moves the tenant's active subscription to another plan.
// Upgrades apply immediately with proration; downgrades and lateral moves are scheduled.
func (s *service) UpdateSubscription(ctx context.Context, tenantID uuid.UUID, req ChangeRequest) (res *ChangeResult, err error) {
	defer func() { s.metrics.observeOperation("update", err) }()

	if tenantID == uuid.Nil {
		return nil, ErrMissingTenantID
	}
	if req.PlanID == "" {
		return nil, ErrMissingPlanID
	}
	target, err := s.catalog.Get(req.PlanID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if req.EffectiveDate != nil && req.EffectiveDate.Before(now) {
		return nil, ErrEffectiveDateInPast
	}

	var result *ChangeResult
	sub, inv, err := s.mutate(ctx, s.activeLoader(tenantID), func(sub *Subscription) (*Invoice, error) {
		current, err := s.catalog.Get(sub.PlanID)
		if err != nil {
			return nil, err
		}
		upgrade, err := s.catalog.IsUpgrade(current.ID, target.ID)
		if err != nil {
			return nil, err
		}
		if err := sub.apply(EventChangePlan); err != nil {
			return nil, err
		}
		sub.UpdatedAt = now

		if upgrade {
			proration := CalculateProration(ProrationInput{
				CurrentPrice: current.Price,
				NewPrice:     target.Price,
				PeriodStart:  sub.CurrentPeriodStart,
				PeriodEnd:    sub.CurrentPeriodEnd,
				Now:          now,
			})
			sub.PlanID = target.ID
			sub.ClearScheduledChange()

			var inv *Invoice
			if proration.NetCharge.IsPositive() {
				inv = newInvoice(sub, proration.NetCharge, target.Currency, now)
			}
			result = &ChangeResult{Upgrade: &UpgradeResult{
				PreviousPlan: current.Name,
				NewPlan:      target.Name,
				Proration:    proration,
				Invoice:      inv,
			}}
			return inv, nil
		}

		effective := sub.CurrentPeriodEnd
		if req.EffectiveDate != nil {
			effective = req.EffectiveDate.UTC()
		}
		sub.ScheduleChange(target.ID, effective)
		result = &ChangeResult{Downgrade: &DowngradeResult{
			Message:       DowngradeMessage,
			EffectiveDate: effective,
			CurrentPlan:   current.Name,
			NewPlan:       target.Name,
			Changes:       ComparePlans(&current, &target),
		}}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	result.Subscription = sub

	s.afterMutation(ctx, tenantID)
	if result.IsUpgrade() {
		s.metrics.observeInvoice(inv)
		details := map[string]any{
			"from_plan":  result.Upgrade.PreviousPlan,
			"to_plan":    result.Upgrade.NewPlan,
			"net_charge": result.Upgrade.Proration.NetCharge.String(),
		}
		s.record(ctx, ActionSubscriptionUpgraded, sub, details)
		if inv != nil {
			s.record(ctx, ActionInvoiceCreated, sub, map[string]any{
				"invoice_id": inv.ID.String(),
				"number":     inv.Number,
				"amount":     inv.Amount.String(),
				"currency":   inv.Currency,
			})
		}
		s.logger.InfoContext(ctx, "subscription upgraded",
			logger.TenantID(tenantID),
			logger.SubscriptionID(sub.ID),
			logger.PlanID(sub.PlanID),
			slog.String("net_charge", result.Upgrade.Proration.NetCharge.String()),
		)
		return result, nil
	}

	s.record(ctx, ActionDowngradeScheduled, sub, map[string]any{
		"from_plan":      result.Downgrade.CurrentPlan,
		"to_plan":        result.Downgrade.NewPlan,
		"effective_date": result.Downgrade.EffectiveDate.Format(time.RFC3339),
	})
	s.logger.InfoContext(ctx, "downgrade scheduled",
		logger.TenantID(tenantID),
		logger.SubscriptionID(sub.ID),
		logger.PlanID(req.PlanID),
		slog.Time("effective_date", result.Downgrade.EffectiveDate),
	)
	return result, nil
}

// CancelOption configures CancelSubscription.
type CancelOption func(*cancelOptions)

type cancelOptions struct {
	atPeriodEnd bool
}

// CancelImmediately ends access now instead of at the end of the paid period.
func CancelImmediately() CancelOption {
	return func(o *cancelOptions) {
		o.atPeriodEnd = false
	}
}

// CancelSubscription cancels the tenant's active subscription.
// By default the tenant keeps access until the current period ends.
func (s *service) CancelSubscription(ctx context.Context, tenantID uuid.UUID, opts ...CancelOption) (res *Subscription, err error) {
	defer func() { s.metrics.observeOperation("cancel", err) }()

	o := cancelOptions{atPeriodEnd: true}
	for _, opt := range opts {
		opt(&o)
	}

	now := s.now()
	sub, _, err := s.mutate(ctx, s.activeLoader(tenantID), func(sub *Subscription) (*Invoice, error) {
		if err := sub.apply(EventCancel); err != nil {
			return nil, err
		}
		canceledAt := now
		sub.CanceledAt = &canceledAt
		sub.CancelAtPeriodEnd = o.atPeriodEnd
		sub.ClearScheduledChange()
		sub.UpdatedAt = now
		return nil, nil
	})
	if err != nil {
		return nil, err
	}

	s.afterMutation(ctx, tenantID)
	s.record(ctx, ActionSubscriptionCancelled, sub, map[string]any{
		"plan_id":              sub.PlanID,
		"cancel_at_period_end": sub.CancelAtPeriodEnd,
	})
	s.logger.InfoContext(ctx, "subscription cancelled",
		logger.TenantID(tenantID),
		logger.SubscriptionID(sub.ID),
		slog.Bool("cancel_at_period_end", sub.CancelAtPeriodEnd),
	)
	return sub, nil
}

// CurrentSubscription returns the tenant's live subscription with resolved plans.
func (s *service) CurrentSubscription(ctx context.Context, tenantID uuid.UUID) (*CurrentSubscription, error) {
	sub, err := s.store.GetCurrent(ctx, tenantID)
	if errors.Is(err, ErrSubscriptionNotFound) {
		return nil, ErrNoActiveSubscription
	}
	if err != nil {
		return nil, wrapStorage(err)
	}

	plan, err := s.catalog.Get(sub.PlanID)
	if err != nil {
		return nil, err
	}

	res := &CurrentSubscription{Subscription: sub, Plan: plan}
	if sub.ScheduledPlanID != nil {
		if scheduled, err := s.catalog.Get(*sub.ScheduledPlanID); err == nil {
			res.ScheduledPlan = &scheduled
		}
	}
	return res, nil
}

// EntitledSubscription returns the row that grants the tenant access right now:
// the live subscription or, without one, a subscription cancelled at period end
// whose period has not ended yet. ErrNoActiveSubscription means no access.
func (s *service) EntitledSubscription(ctx context.Context, tenantID uuid.UUID) (*CurrentSubscription, error) {
	cur, err := s.CurrentSubscription(ctx, tenantID)
	if !errors.Is(err, ErrNoActiveSubscription) {
		return cur, err
	}

	subs, err := s.store.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, wrapStorage(err)
	}
	now := s.now()
	for _, sub := range subs {
		if !sub.AccessAfterCancelAt(now) {
			continue
		}
		plan, err := s.catalog.Get(sub.PlanID)
		if err != nil {
			return nil, err
		}
		return &CurrentSubscription{Subscription: sub, Plan: plan}, nil
	}
	return nil, ErrNoActiveSubscription
}

// SubscriptionHistory returns every subscription row of the tenant, newest first,
// each with its most recent invoices.
func (s *service) SubscriptionHistory(ctx context.Context, tenantID uuid.UUID) ([]HistoryEntry, error) {
	subs, err := s.store.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, wrapStorage(err)
	}

	history := make([]HistoryEntry, 0, len(subs))
	for _, sub := range subs {
		entry, err := s.historyEntry(ctx, sub)
		if err != nil {
			return nil, err
		}
		history = append(history, *entry)
	}
	return history, nil
}

// CheckTrialStatus evaluates the tenant's newest trial. It never changes state.
func (s *service) CheckTrialStatus(ctx context.Context, tenantID uuid.UUID) (TrialStatus, error) {
	sub, err := s.store.LatestTrial(ctx, tenantID)
	if errors.Is(err, ErrSubscriptionNotFound) {
		return TrialStatus{}, nil
	}
	if err != nil {
		return TrialStatus{}, wrapStorage(err)
	}
	return EvaluateTrial(sub, s.now()), nil
}

// ValidateSubscription reports whether the tenant's newest subscription still grants access.
func (s *service) ValidateSubscription(ctx context.Context, tenantID uuid.UUID) (Validity, error) {
	subs, err := s.store.ListByTenant(ctx, tenantID)
	if err != nil {
		return Validity{}, wrapStorage(err)
	}
	if len(subs) == 0 {
		return Validity{Reason: "No subscription found"}, nil
	}

	sub := subs[0]
	now := s.now()
	switch {
	case sub.Status == StatusExpired:
		return Validity{Reason: "Subscription expired or canceled"}, nil
	case sub.Status == StatusCancelled && !sub.AccessAfterCancelAt(now):
		return Validity{Reason: "Subscription expired or canceled"}, nil
	case sub.Status == StatusTrialing && sub.IsTrialExpiredAt(now):
		return Validity{Reason: "Trial period has expired"}, nil
	}
	return Validity{Valid: true}, nil
}

func (s *service) historyEntry(ctx context.Context, sub *Subscription) (*HistoryEntry, error) {
	invoices, err := s.store.ListInvoices(ctx, sub.ID, s.historyInvoiceLimit)
	if err != nil {
		return nil, wrapStorage(err)
	}
	entry := &HistoryEntry{Subscription: sub, Invoices: invoices}
	if plan, err := s.catalog.Get(sub.PlanID); err == nil {
		entry.Plan = &plan
	}
	return entry, nil
}

// convertTrial turns the tenant's trialing row into a paid subscription on plan.
func (s *service) convertTrial(ctx context.Context, tenantID uuid.UUID, plan Plan) (*Subscription, error) {
	now := s.now()
	sub, _, err := s.mutate(ctx, s.currentLoader(tenantID), func(sub *Subscription) (*Invoice, error) {
		if err := sub.apply(EventConvertTrial); err != nil {
			return nil, err
		}
		sub.PlanID = plan.ID
		sub.IsTrial = false
		sub.CurrentPeriodStart = now
		sub.CurrentPeriodEnd = plan.PeriodEnd(now)
		sub.ClearScheduledChange()
		sub.UpdatedAt = now
		return nil, nil
	})
	if err != nil {
		return nil, err
	}

	s.afterMutation(ctx, tenantID)
	s.record(ctx, ActionTrialConverted, sub, map[string]any{"plan_id": plan.ID})
	s.logger.InfoContext(ctx, "trial converted",
		logger.TenantID(tenantID),
		logger.SubscriptionID(sub.ID),
		logger.PlanID(plan.ID),
	)
	return sub, nil
}

// mutate performs a compare-and-swap read-modify-write, retrying lost races.
// fn may return an invoice that is stored atomically with the update.
func (s *service) mutate(
	ctx context.Context,
	load func(context.Context) (*Subscription, error),
	fn func(*Subscription) (*Invoice, error),
) (*Subscription, *Invoice, error) {
	var lastErr error
	for attempt := 0; attempt <= s.conflictRetries; attempt++ {
		sub, err := load(ctx)
		if err != nil {
			return nil, nil, err
		}

		inv, err := fn(sub)
		if err != nil {
			return nil, nil, err
		}
		if err := sub.Validate(); err != nil {
			return nil, nil, err
		}

		if inv != nil {
			err = s.store.UpdateWithInvoice(ctx, sub, inv)
		} else {
			err = s.store.Update(ctx, sub)
		}
		if err == nil {
			return sub, inv, nil
		}
		if !errors.Is(err, ErrConcurrentUpdate) {
			return nil, nil, wrapStorage(err)
		}

		lastErr = err
		s.logger.DebugContext(ctx, "concurrent subscription update, retrying",
			logger.SubscriptionID(sub.ID),
			logger.RetryCount(attempt+1),
		)
	}
	return nil, nil, lastErr
}

func (s *service) activeLoader(tenantID uuid.UUID) func(context.Context) (*Subscription, error) {
	return func(ctx context.Context) (*Subscription, error) {
		sub, err := s.store.GetCurrent(ctx, tenantID)
		if errors.Is(err, ErrSubscriptionNotFound) {
			return nil, ErrNoActiveSubscription
		}
		if err != nil {
			return nil, wrapStorage(err)
		}
		if sub.Status != StatusActive {
			return nil, ErrNoActiveSubscription
		}
		return sub, nil
	}
}

func (s *service) currentLoader(tenantID uuid.UUID) func(context.Context) (*Subscription, error) {
	return func(ctx context.Context) (*Subscription, error) {
		sub, err := s.store.GetCurrent(ctx, tenantID)
		if errors.Is(err, ErrSubscriptionNotFound) {
			return nil, ErrNoActiveSubscription
		}
		if err != nil {
			return nil, wrapStorage(err)
		}
		return sub, nil
	}
}

func (s *service) byIDLoader(id uuid.UUID) func(context.Context) (*Subscription, error) {
	return func(ctx context.Context) (*Subscription, error) {
		sub, err := s.store.Get(ctx, id)
		if err != nil {
			return nil, wrapStorage(err)
		}
		return sub, nil
	}
}

func (s *service) afterMutation(ctx context.Context, tenantID uuid.UUID) {
	for _, inv := range s.invalidators {
		inv.Invalidate(ctx, tenantID)
	}
}

func (s *service) record(ctx context.Context, action string, sub *Subscription, details map[string]any) {
	recordAudit(ctx, s.audit, s.logger, action, sub, details)
}

// recordAudit writes an audit event. Failures are logged and swallowed.
func recordAudit(ctx context.Context, a AuditLogger, log *slog.Logger, action string, sub *Subscription, details map[string]any) {
	if a == nil {
		return
	}

	actor, _ := ActorFromContext(ctx)
	opts := []audit.EventOption{
		audit.WithActor(actor.UserID),
		audit.WithIP(actor.IP),
		audit.WithDetails(details),
	}
	if sub != nil {
		opts = append(opts,
			audit.WithTenant(sub.TenantID.String()),
			audit.WithResource("subscription", sub.ID.String()),
		)
	}

	if err := a.Log(ctx, action, opts...); err != nil {
		log.WarnContext(ctx, "failed to write audit event",
			slog.String("action", action),
			logger.Error(err),
		)
	}
}

func newSubscription(tenantID uuid.UUID, plan Plan, now time.Time) *Subscription {
	sub := &Subscription{
		ID:                 uuid.New(),
		TenantID:           tenantID,
		PlanID:             plan.ID,
		Status:             StatusActive,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   plan.PeriodEnd(now),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if plan.TrialDays > 0 {
		start, end := now, plan.TrialEndsAt(now)
		sub.Status = StatusTrialing
		sub.IsTrial = true
		sub.TrialStart = &start
		sub.TrialEnd = &end
		sub.CurrentPeriodEnd = end
	}
	return sub
}

// wrapStorage keeps classified errors intact and tags everything else as a storage failure.
func wrapStorage(err error) error {
	var classified *Error
	if errors.As(err, &classified) {
		return err
	}
	return errors.Join(ErrStorage, err)
}
