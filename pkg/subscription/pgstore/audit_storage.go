package pgstore

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/billingkit/pkg/audit"
)

// AuditStorage persists billing audit events in billing_audit_events.
type AuditStorage struct {
	pool *pgxpool.Pool
}

var (
	_ audit.Storage = (*AuditStorage)(nil)
	_ audit.Querier = (*AuditStorage)(nil)
)

// NewAuditStorage creates an AuditStorage. Panics if pool is nil.
func NewAuditStorage(pool *pgxpool.Pool) *AuditStorage {
	if pool == nil {
		panic("pgstore: pool is required")
	}
	return &AuditStorage{pool: pool}
}

func (a *AuditStorage) Store(ctx context.Context, e audit.Event) error {
	_, err := a.pool.Exec(ctx, `INSERT INTO billing_audit_events
		(id, tenant_id, actor_id, action, resource, resource_id, result, error, ip, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID, e.TenantID, e.ActorID, e.Action, e.Resource, e.ResourceID,
		string(e.Result), e.Error, e.IP, e.Details, e.CreatedAt,
	)
	return err
}

// Query returns matching events, newest first.
func (a *AuditStorage) Query(ctx context.Context, c audit.Criteria) ([]audit.Event, error) {
	var since *time.Time
	if !c.Since.IsZero() {
		since = &c.Since
	}

	rows, err := a.pool.Query(ctx, `SELECT
			id, tenant_id, actor_id, action, resource, resource_id, result, error, ip, details, created_at
		FROM billing_audit_events
		WHERE ($1 = '' OR tenant_id = $1)
			AND ($2 = '' OR action = $2)
			AND ($3::timestamptz IS NULL OR created_at >= $3)
		ORDER BY created_at DESC
		LIMIT NULLIF($4, 0)`,
		c.TenantID, c.Action, since, c.Limit,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (audit.Event, error) {
		var (
			e      audit.Event
			result string
		)
		err := row.Scan(&e.ID, &e.TenantID, &e.ActorID, &e.Action, &e.Resource, &e.ResourceID,
			&result, &e.Error, &e.IP, &e.Details, &e.CreatedAt)
		e.Result = audit.Result(result)
		return e, err
	})
}
