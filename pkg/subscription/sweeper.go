package subscription

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dmitrymomot/billingkit/pkg/logger"
)

// SweepResult counts what one sweep did with the due scheduled changes.
type SweepResult struct {
	Promoted int `json:"promoted"`
	Failed   int `json:"failed"`
	Skipped  int `json:"skipped"`
}

// Sweeper promotes due scheduled plan changes and, when enabled, flips
// overdue trials to expired.
//
// A row that fails to promote is left untouched and retried on the next sweep.
// There is no backoff and no dead-letter: a row that keeps failing is retried forever.
type Sweeper struct {
	store        Store
	logger       *slog.Logger
	audit        AuditLogger
	metrics      *Metrics
	invalidators []Invalidator
	now          func() time.Time
	trialGrace   time.Duration
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

func WithSweeperLogger(l *slog.Logger) SweeperOption {
	return func(sw *Sweeper) {
		if l != nil {
			sw.logger = l
		}
	}
}

func WithSweeperAuditLogger(a AuditLogger) SweeperOption {
	return func(sw *Sweeper) {
		sw.audit = a
	}
}

func WithSweeperMetrics(m *Metrics) SweeperOption {
	return func(sw *Sweeper) {
		sw.metrics = m
	}
}

func WithSweeperInvalidator(inv Invalidator) SweeperOption {
	return func(sw *Sweeper) {
		if inv != nil {
			sw.invalidators = append(sw.invalidators, inv)
		}
	}
}

func WithSweeperClock(now func() time.Time) SweeperOption {
	return func(sw *Sweeper) {
		if now != nil {
			sw.now = now
		}
	}
}

// WithTrialGracePeriod delays the expired flip until grace has passed after TrialEnd.
func WithTrialGracePeriod(grace time.Duration) SweeperOption {
	return func(sw *Sweeper) {
		if grace >= 0 {
			sw.trialGrace = grace
		}
	}
}

// NewSweeper creates a Sweeper over store.
// Panics if store is nil.
func NewSweeper(store Store, opts ...SweeperOption) *Sweeper {
	if store == nil {
		panic("subscription: Store is required")
	}
	sw := &Sweeper{
		store:  store,
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(sw)
	}
	sw.logger = sw.logger.With(logger.Component("sweeper"))
	return sw
}

// RunSweep promotes every scheduled change effective at or before now.
// Each row is written conditionally, so a second sweep with the same now promotes nothing.
// When ctx is done the remaining rows are counted as skipped.
func (sw *Sweeper) RunSweep(ctx context.Context, now time.Time) (SweepResult, error) {
	started := time.Now()
	var res SweepResult

	due, err := sw.store.ListDueScheduledChanges(ctx, now)
	if err != nil {
		return res, wrapStorage(err)
	}

	for i, sub := range due {
		if ctx.Err() != nil {
			res.Skipped += len(due) - i
			sw.logger.WarnContext(ctx, "sweep stopped before processing all rows",
				slog.Int("remaining", len(due)-i),
				logger.Error(ctx.Err()),
			)
			break
		}

		planID, effective := *sub.ScheduledPlanID, *sub.ScheduledEffectiveDate
		applied, err := sw.store.ApplyScheduledChange(ctx, sub.ID, planID, effective, now)
		if err != nil {
			res.Failed++
			sw.logger.ErrorContext(ctx, "failed to apply scheduled plan change",
				logger.TenantID(sub.TenantID),
				logger.SubscriptionID(sub.ID),
				logger.PlanID(planID),
				logger.Error(err),
			)
			continue
		}
		if !applied {
			res.Skipped++
			continue
		}

		res.Promoted++
		previous := sub.PlanID
		sub.PlanID = planID
		sub.ClearScheduledChange()
		sw.invalidate(ctx, sub)
		recordAudit(ctx, sw.audit, sw.logger, ActionScheduledChangeApplied, sub, map[string]any{
			"from_plan":      previous,
			"to_plan":        planID,
			"effective_date": effective.Format(time.RFC3339),
		})
		sw.logger.InfoContext(ctx, "scheduled plan change applied",
			logger.TenantID(sub.TenantID),
			logger.SubscriptionID(sub.ID),
			logger.PlanID(planID),
		)
	}

	took := time.Since(started)
	sw.metrics.observeSweep(res, took)
	sw.logger.InfoContext(ctx, "sweep finished",
		slog.Int("promoted", res.Promoted),
		slog.Int("failed", res.Failed),
		slog.Int("skipped", res.Skipped),
		logger.Duration(took),
	)
	return res, nil
}

// ExpireTrials flips trialing rows whose trial ended more than the grace period
// before now to expired. Returns the number of rows flipped.
func (sw *Sweeper) ExpireTrials(ctx context.Context, now time.Time) (int, error) {
	ended, err := sw.store.ListTrialsEndedBefore(ctx, now.Add(-sw.trialGrace))
	if err != nil {
		return 0, wrapStorage(err)
	}

	expired := 0
	for _, sub := range ended {
		if ctx.Err() != nil {
			break
		}
		if err := expireTrial(sub, now); err != nil {
			continue
		}
		if err := sw.store.Update(ctx, sub); err != nil {
			if !errors.Is(err, ErrConcurrentUpdate) {
				sw.logger.ErrorContext(ctx, "failed to expire trial",
					logger.TenantID(sub.TenantID),
					logger.SubscriptionID(sub.ID),
					logger.Error(err),
				)
			}
			continue
		}

		expired++
		sw.invalidate(ctx, sub)
		recordAudit(ctx, sw.audit, sw.logger, ActionTrialExpired, sub, map[string]any{
			"trial_end": sub.TrialEnd.Format(time.RFC3339),
		})
	}

	sw.metrics.observeTrialsExpired(expired)
	if expired > 0 {
		sw.logger.InfoContext(ctx, "trials expired", slog.Int("count", expired))
	}
	return expired, nil
}

// SweepTask runs RunSweep at the current time. It matches the scheduler task signature.
func (sw *Sweeper) SweepTask(ctx context.Context) error {
	_, err := sw.RunSweep(ctx, sw.now())
	return err
}

// ExpireTrialsTask runs ExpireTrials at the current time.
func (sw *Sweeper) ExpireTrialsTask(ctx context.Context) error {
	_, err := sw.ExpireTrials(ctx, sw.now())
	return err
}

func (sw *Sweeper) invalidate(ctx context.Context, sub *Subscription) {
	for _, inv := range sw.invalidators {
		inv.Invalidate(ctx, sub.TenantID)
	}
}
