package subscription

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a Store kept in process memory.
// Used in tests and for running the engine without Postgres.
type MemoryStore struct {
	mu       sync.RWMutex
	subs     map[uuid.UUID]*Subscription
	invoices map[uuid.UUID][]*Invoice
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subs:     make(map[uuid.UUID]*Subscription),
		invoices: make(map[uuid.UUID][]*Invoice),
	}
}

func (m *MemoryStore) Create(ctx context.Context, sub *Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sub.IsCurrent() && m.currentLocked(sub.TenantID, uuid.Nil) != nil {
		return ErrSubscriptionAlreadyExists
	}
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	if _, exists := m.subs[sub.ID]; exists {
		return ErrSubscriptionAlreadyExists
	}
	m.subs[sub.ID] = sub.Clone()
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sub, ok := m.subs[id]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return sub.Clone(), nil
}

func (m *MemoryStore) GetCurrent(ctx context.Context, tenantID uuid.UUID) (*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sub := m.currentLocked(tenantID, uuid.Nil)
	if sub == nil {
		return nil, ErrSubscriptionNotFound
	}
	return sub.Clone(), nil
}

func (m *MemoryStore) LatestTrial(ctx context.Context, tenantID uuid.UUID) (*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *Subscription
	for _, sub := range m.subs {
		if sub.TenantID != tenantID || !sub.IsTrial {
			continue
		}
		if sub.Status != StatusTrialing && sub.Status != StatusExpired {
			continue
		}
		if latest == nil || newerPeriod(sub, latest) {
			latest = sub
		}
	}
	if latest == nil {
		return nil, ErrSubscriptionNotFound
	}
	return latest.Clone(), nil
}

func (m *MemoryStore) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Subscription, 0)
	for _, sub := range m.subs {
		if sub.TenantID == tenantID {
			out = append(out, sub.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *Subscription) int {
		return b.CurrentPeriodStart.Compare(a.CurrentPeriodStart)
	})
	return out, nil
}

func (m *MemoryStore) Update(ctx context.Context, sub *Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateLocked(sub)
}

func (m *MemoryStore) UpdateWithInvoice(ctx context.Context, sub *Subscription, inv *Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.updateLocked(sub); err != nil {
		return err
	}
	if inv != nil {
		c := *inv
		m.invoices[inv.SubscriptionID] = append(m.invoices[inv.SubscriptionID], &c)
	}
	return nil
}

func (m *MemoryStore) ListInvoices(ctx context.Context, subscriptionID uuid.UUID, limit int) ([]*Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	src := m.invoices[subscriptionID]
	out := make([]*Invoice, 0, len(src))
	for _, inv := range src {
		c := *inv
		out = append(out, &c)
	}
	slices.SortStableFunc(out, func(a, b *Invoice) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) ListDueScheduledChanges(ctx context.Context, now time.Time) ([]*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Subscription, 0)
	for _, sub := range m.subs {
		if sub.Status != StatusActive || sub.ScheduledPlanID == nil || sub.ScheduledEffectiveDate == nil {
			continue
		}
		if !sub.ScheduledEffectiveDate.After(now) {
			out = append(out, sub.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *Subscription) int {
		return cmp.Or(
			a.ScheduledEffectiveDate.Compare(*b.ScheduledEffectiveDate),
			cmp.Compare(a.ID.String(), b.ID.String()),
		)
	})
	return out, nil
}

func (m *MemoryStore) ApplyScheduledChange(ctx context.Context, id uuid.UUID, expectedPlanID string, expectedEffective, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subs[id]
	if !ok || sub.Status != StatusActive || sub.ScheduledPlanID == nil || sub.ScheduledEffectiveDate == nil {
		return false, nil
	}
	if *sub.ScheduledPlanID != expectedPlanID || !sub.ScheduledEffectiveDate.Equal(expectedEffective) {
		return false, nil
	}

	sub.PlanID = expectedPlanID
	sub.ClearScheduledChange()
	sub.Version++
	sub.UpdatedAt = now
	return true, nil
}

func (m *MemoryStore) ListTrialsEndedBefore(ctx context.Context, cutoff time.Time) ([]*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Subscription, 0)
	for _, sub := range m.subs {
		if sub.Status == StatusTrialing && sub.TrialEnd != nil && sub.TrialEnd.Before(cutoff) {
			out = append(out, sub.Clone())
		}
	}
	return out, nil
}

func (m *MemoryStore) updateLocked(sub *Subscription) error {
	stored, ok := m.subs[sub.ID]
	if !ok {
		return ErrSubscriptionNotFound
	}
	if stored.Version != sub.Version {
		return ErrConcurrentUpdate
	}
	if sub.IsCurrent() && m.currentLocked(sub.TenantID, sub.ID) != nil {
		return ErrSubscriptionAlreadyExists
	}

	sub.Version++
	m.subs[sub.ID] = sub.Clone()
	return nil
}

// currentLocked returns the tenant's current row other than exclude.
func (m *MemoryStore) currentLocked(tenantID, exclude uuid.UUID) *Subscription {
	for id, sub := range m.subs {
		if id != exclude && sub.TenantID == tenantID && sub.IsCurrent() {
			return sub
		}
	}
	return nil
}

func newerPeriod(a, b *Subscription) bool {
	if c := a.CurrentPeriodStart.Compare(b.CurrentPeriodStart); c != 0 {
		return c > 0
	}
	return a.CreatedAt.After(b.CreatedAt)
}
