package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/cache"
)

// RunStore keeps recent runs for lookup by id.
type RunStore interface {
	Save(ctx context.Context, run Run) error
	Get(ctx context.Context, id uuid.UUID) (Run, error)
}

const (
	DefaultRunRetention = 24 * time.Hour
	DefaultRunCapacity  = 1000
)

// MemoryRunStore holds runs in a bounded TTL cache. Old runs are evicted
// after the retention period or when capacity is reached.
type MemoryRunStore struct {
	runs *cache.LRU[uuid.UUID, Run]
}

// NewMemoryRunStore creates a run store. Non-positive arguments use the defaults.
func NewMemoryRunStore(capacity int, retention time.Duration, opts ...cache.Option) *MemoryRunStore {
	if capacity <= 0 {
		capacity = DefaultRunCapacity
	}
	if retention <= 0 {
		retention = DefaultRunRetention
	}
	return &MemoryRunStore{runs: cache.New[uuid.UUID, Run](capacity, retention, opts...)}
}

func (s *MemoryRunStore) Save(_ context.Context, run Run) error {
	s.runs.Set(run.ID, run)
	return nil
}

func (s *MemoryRunStore) Get(_ context.Context, id uuid.UUID) (Run, error) {
	run, ok := s.runs.Get(id)
	if !ok {
		return Run{}, ErrRunNotFound
	}
	return run, nil
}
