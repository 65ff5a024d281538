package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store defines subscription persistence.
// Implementations enforce that a tenant has at most one current (active or
// trialing) subscription and guard every update with a compare-and-swap on Version.
type Store interface {
	// Create inserts a new subscription.
	// Returns ErrSubscriptionAlreadyExists if the row is current and the tenant already has a current row.
	Create(ctx context.Context, sub *Subscription) error

	// Get retrieves a subscription by ID.
	// Returns ErrSubscriptionNotFound if no row exists.
	Get(ctx context.Context, id uuid.UUID) (*Subscription, error)

	// GetCurrent returns the tenant's active or trialing subscription.
	// Returns ErrSubscriptionNotFound if there is none.
	GetCurrent(ctx context.Context, tenantID uuid.UUID) (*Subscription, error)

	// LatestTrial returns the newest trial row of the tenant whose status is trialing or expired.
	// Returns ErrSubscriptionNotFound if there is none.
	LatestTrial(ctx context.Context, tenantID uuid.UUID) (*Subscription, error)

	// ListByTenant returns every row of the tenant ordered by CurrentPeriodStart, newest first.
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*Subscription, error)

	// Update writes sub if the stored Version equals sub.Version, then increments sub.Version.
	// Returns ErrConcurrentUpdate on a version mismatch.
	Update(ctx context.Context, sub *Subscription) error

	// UpdateWithInvoice performs Update and inserts the invoice atomically.
	UpdateWithInvoice(ctx context.Context, sub *Subscription, inv *Invoice) error

	// ListInvoices returns up to limit invoices of a subscription, newest first.
	ListInvoices(ctx context.Context, subscriptionID uuid.UUID, limit int) ([]*Invoice, error)

	// ListDueScheduledChanges returns active rows whose scheduled change is effective at or before now.
	ListDueScheduledChanges(ctx context.Context, now time.Time) ([]*Subscription, error)

	// ApplyScheduledChange promotes the scheduled plan into PlanID and clears the scheduling
	// fields, but only while the row is active and still carries the expected schedule.
	// Reports false without error when the row no longer matches.
	ApplyScheduledChange(ctx context.Context, id uuid.UUID, expectedPlanID string, expectedEffective, now time.Time) (bool, error)

	// ListTrialsEndedBefore returns trialing rows whose TrialEnd is before cutoff.
	ListTrialsEndedBefore(ctx context.Context, cutoff time.Time) ([]*Subscription, error)
}
