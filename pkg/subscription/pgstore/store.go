// Package pgstore implements subscription.Store and audit.Storage on PostgreSQL.
//
// The single-current-subscription rule is a partial unique index on tenant_id,
// optimistic concurrency is a version column checked in every UPDATE, and a
// proration invoice is written in the same transaction as its plan swap.
package pgstore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/billingkit/pkg/pg"
	"github.com/dmitrymomot/billingkit/pkg/subscription"
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is a subscription.Store backed by a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ subscription.Store = (*Store)(nil)

// New creates a Store. Panics if pool is nil.
func New(pool *pgxpool.Pool) *Store {
	if pool == nil {
		panic("pgstore: pool is required")
	}
	return &Store{pool: pool}
}

const subscriptionColumns = `id, tenant_id, plan_id, status, current_period_start, current_period_end,
	cancel_at_period_end, canceled_at, scheduled_plan_id, scheduled_effective_date,
	is_trial, trial_start, trial_end, version, created_at, updated_at`

const (
	insertSubscription = `INSERT INTO billing_subscriptions (` + subscriptionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	updateSubscription = `UPDATE billing_subscriptions SET
		plan_id = $3, status = $4, current_period_start = $5, current_period_end = $6,
		cancel_at_period_end = $7, canceled_at = $8, scheduled_plan_id = $9,
		scheduled_effective_date = $10, is_trial = $11, trial_start = $12, trial_end = $13,
		updated_at = $14, version = version + 1
		WHERE id = $1 AND version = $2`

	selectByID = `SELECT ` + subscriptionColumns + ` FROM billing_subscriptions WHERE id = $1`

	selectCurrent = `SELECT ` + subscriptionColumns + ` FROM billing_subscriptions
		WHERE tenant_id = $1 AND status IN ('active', 'trialing')`

	selectLatestTrial = `SELECT ` + subscriptionColumns + ` FROM billing_subscriptions
		WHERE tenant_id = $1 AND is_trial AND status IN ('trialing', 'expired')
		ORDER BY current_period_start DESC, created_at DESC
		LIMIT 1`

	selectByTenant = `SELECT ` + subscriptionColumns + ` FROM billing_subscriptions
		WHERE tenant_id = $1
		ORDER BY current_period_start DESC, created_at DESC`

	selectDue = `SELECT ` + subscriptionColumns + ` FROM billing_subscriptions
		WHERE status = 'active' AND scheduled_plan_id IS NOT NULL AND scheduled_effective_date <= $1
		ORDER BY scheduled_effective_date, id`

	applyScheduled = `UPDATE billing_subscriptions SET
		plan_id = scheduled_plan_id, scheduled_plan_id = NULL, scheduled_effective_date = NULL,
		updated_at = $4, version = version + 1
		WHERE id = $1 AND status = 'active' AND scheduled_plan_id = $2 AND scheduled_effective_date = $3`

	selectTrialsEnded = `SELECT ` + subscriptionColumns + ` FROM billing_subscriptions
		WHERE status = 'trialing' AND trial_end < $1
		ORDER BY trial_end`

	insertInvoice = `INSERT INTO billing_invoices
		(id, number, subscription_id, tenant_id, amount, currency, status, due_date, created_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9)`

	selectInvoices = `SELECT id, number, subscription_id, tenant_id, amount::text, currency, status, due_date, created_at
		FROM billing_invoices
		WHERE subscription_id = $1
		ORDER BY created_at DESC
		LIMIT NULLIF($2, 0)`
)

func (s *Store) Create(ctx context.Context, sub *subscription.Subscription) error {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	_, err := s.pool.Exec(ctx, insertSubscription,
		sub.ID, sub.TenantID, sub.PlanID, string(sub.Status),
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd,
		sub.CancelAtPeriodEnd, sub.CanceledAt, sub.ScheduledPlanID, sub.ScheduledEffectiveDate,
		sub.IsTrial, sub.TrialStart, sub.TrialEnd, sub.Version, sub.CreatedAt, sub.UpdatedAt,
	)
	return constraintError(err)
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*subscription.Subscription, error) {
	return getOne(ctx, s.pool, selectByID, id)
}

func (s *Store) GetCurrent(ctx context.Context, tenantID uuid.UUID) (*subscription.Subscription, error) {
	return getOne(ctx, s.pool, selectCurrent, tenantID)
}

func (s *Store) LatestTrial(ctx context.Context, tenantID uuid.UUID) (*subscription.Subscription, error) {
	return getOne(ctx, s.pool, selectLatestTrial, tenantID)
}

func (s *Store) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*subscription.Subscription, error) {
	return getMany(ctx, s.pool, selectByTenant, tenantID)
}

func (s *Store) Update(ctx context.Context, sub *subscription.Subscription) error {
	return update(ctx, s.pool, sub)
}

func (s *Store) UpdateWithInvoice(ctx context.Context, sub *subscription.Subscription, inv *subscription.Invoice) error {
	version := sub.Version
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := update(ctx, tx, sub); err != nil {
			return err
		}
		if inv == nil {
			return nil
		}
		_, err := tx.Exec(ctx, insertInvoice,
			inv.ID, inv.Number, inv.SubscriptionID, inv.TenantID, inv.Amount.String(),
			inv.Currency, string(inv.Status), inv.DueDate, inv.CreatedAt,
		)
		return constraintError(err)
	})
	if err != nil {
		// the transaction rolled back, so the caller's copy must not look written
		sub.Version = version
	}
	return err
}

func (s *Store) ListInvoices(ctx context.Context, subscriptionID uuid.UUID, limit int) ([]*subscription.Invoice, error) {
	rows, err := s.pool.Query(ctx, selectInvoices, subscriptionID, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*subscription.Invoice, error) {
		var (
			inv    subscription.Invoice
			amount string
			status string
		)
		if err := row.Scan(&inv.ID, &inv.Number, &inv.SubscriptionID, &inv.TenantID, &amount,
			&inv.Currency, &status, &inv.DueDate, &inv.CreatedAt); err != nil {
			return nil, err
		}
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, err
		}
		inv.Amount = d
		inv.Status = subscription.InvoiceStatus(status)
		return &inv, nil
	})
}

func (s *Store) ListDueScheduledChanges(ctx context.Context, now time.Time) ([]*subscription.Subscription, error) {
	return getMany(ctx, s.pool, selectDue, now)
}

func (s *Store) ApplyScheduledChange(ctx context.Context, id uuid.UUID, expectedPlanID string, expectedEffective, now time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, applyScheduled, id, expectedPlanID, expectedEffective, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) ListTrialsEndedBefore(ctx context.Context, cutoff time.Time) ([]*subscription.Subscription, error) {
	return getMany(ctx, s.pool, selectTrialsEnded, cutoff)
}

func update(ctx context.Context, db dbtx, sub *subscription.Subscription) error {
	tag, err := db.Exec(ctx, updateSubscription,
		sub.ID, sub.Version, sub.PlanID, string(sub.Status),
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd,
		sub.CancelAtPeriodEnd, sub.CanceledAt, sub.ScheduledPlanID, sub.ScheduledEffectiveDate,
		sub.IsTrial, sub.TrialStart, sub.TrialEnd, sub.UpdatedAt,
	)
	if err != nil {
		return constraintError(err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM billing_subscriptions WHERE id = $1)`, sub.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return subscription.ErrSubscriptionNotFound
		}
		return subscription.ErrConcurrentUpdate
	}
	sub.Version++
	return nil
}

func getOne(ctx context.Context, db dbtx, query string, arg any) (*subscription.Subscription, error) {
	sub, err := scanSubscription(db.QueryRow(ctx, query, arg))
	if pg.IsNotFoundError(err) {
		return nil, subscription.ErrSubscriptionNotFound
	}
	return sub, err
}

func getMany(ctx context.Context, db dbtx, query string, arg any) ([]*subscription.Subscription, error) {
	rows, err := db.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*subscription.Subscription, error) {
		return scanSubscription(row)
	})
}

func scanSubscription(row pgx.Row) (*subscription.Subscription, error) {
	var (
		sub    subscription.Subscription
		status string
	)
	err := row.Scan(
		&sub.ID, &sub.TenantID, &sub.PlanID, &status,
		&sub.CurrentPeriodStart, &sub.CurrentPeriodEnd,
		&sub.CancelAtPeriodEnd, &sub.CanceledAt, &sub.ScheduledPlanID, &sub.ScheduledEffectiveDate,
		&sub.IsTrial, &sub.TrialStart, &sub.TrialEnd, &sub.Version, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sub.Status = subscription.SubscriptionStatus(status)
	normalizeTimes(&sub)
	return &sub, nil
}

// normalizeTimes converts timestamps read from the database to UTC.
func normalizeTimes(sub *subscription.Subscription) {
	sub.CurrentPeriodStart = sub.CurrentPeriodStart.UTC()
	sub.CurrentPeriodEnd = sub.CurrentPeriodEnd.UTC()
	sub.CreatedAt = sub.CreatedAt.UTC()
	sub.UpdatedAt = sub.UpdatedAt.UTC()
	for _, p := range []*time.Time{sub.CanceledAt, sub.ScheduledEffectiveDate, sub.TrialStart, sub.TrialEnd} {
		if p != nil {
			*p = p.UTC()
		}
	}
}

// constraintError maps integrity violations to subscription errors. The
// one-current-row-per-tenant index surfaces as a duplicate key.
func constraintError(err error) error {
	switch {
	case err == nil:
		return nil
	case pg.IsDuplicateKeyError(err):
		return subscription.ErrSubscriptionAlreadyExists
	case pg.IsForeignKeyViolationError(err):
		return errors.Join(subscription.ErrSubscriptionNotFound, err)
	case pg.IsCheckViolationError(err):
		return errors.Join(subscription.ErrInvalidSubscriptionState, err)
	default:
		return err
	}
}
