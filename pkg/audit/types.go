package audit

import (
	"context"
	"fmt"
	"time"
)

// Result represents the outcome of an audited action
type Result string

const (
	ResultSuccess Result = "success"
	ResultError   Result = "error"
)

// Event represents a single billing audit log entry.
// ActorID is empty for system-initiated actions such as scheduled sweeps.
type Event struct {
	ID         string         `json:"id"`
	TenantID   string         `json:"tenant_id,omitempty"`
	ActorID    string         `json:"actor_id,omitempty"`
	Action     string         `json:"action"`
	Resource   string         `json:"resource,omitempty"`
	ResourceID string         `json:"resource_id,omitempty"`
	Result     Result         `json:"result"`
	Error      string         `json:"error,omitempty"`
	IP         string         `json:"ip,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Validate checks if the event has all required fields
func (e *Event) Validate() error {
	if e.Action == "" {
		return fmt.Errorf("%w: action is required", ErrEventValidation)
	}
	return nil
}

// EventOption applies configuration to an Event during creation.
type EventOption func(*Event)

// Storage persists audit events.
type Storage interface {
	Store(ctx context.Context, event Event) error
}

// Criteria filters events returned by a Querier. Zero values match everything.
type Criteria struct {
	TenantID string
	Action   string
	Since    time.Time
	Limit    int
}

// Querier is implemented by storages that can read events back, newest first.
type Querier interface {
	Query(ctx context.Context, criteria Criteria) ([]Event, error)
}
