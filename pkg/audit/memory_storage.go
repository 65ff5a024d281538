package audit

import (
	"context"
	"slices"
	"sync"
)

// MemoryStorage keeps events in process memory. Suitable for tests and
// single-instance deployments without a database.
type MemoryStorage struct {
	mu     sync.RWMutex
	events []Event
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

// Store appends the event.
func (s *MemoryStorage) Store(ctx context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// Query returns matching events newest first.
func (s *MemoryStorage) Query(ctx context.Context, c Criteria) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Event, 0)
	for _, e := range slices.Backward(s.events) {
		if c.TenantID != "" && e.TenantID != c.TenantID {
			continue
		}
		if c.Action != "" && e.Action != c.Action {
			continue
		}
		if !c.Since.IsZero() && e.CreatedAt.Before(c.Since) {
			continue
		}
		out = append(out, e)
		if c.Limit > 0 && len(out) == c.Limit {
			break
		}
	}
	return out, nil
}

// Events returns a copy of all stored events in insertion order.
func (s *MemoryStorage) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.events)
}
