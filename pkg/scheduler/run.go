package scheduler

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the outcome of a task run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
	RunSkipped   RunStatus = "skipped"
)

// Trigger tells what started a run.
type Trigger string

const (
	TriggerSchedule Trigger = "schedule"
	TriggerManual   Trigger = "manual"
)

// Run is one execution attempt of a task.
type Run struct {
	ID         uuid.UUID  `json:"id"`
	Task       string     `json:"task"`
	Trigger    Trigger    `json:"trigger"`
	Status     RunStatus  `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
	Reason     string     `json:"reason,omitempty"` // why a run was skipped
}

// Done reports whether the run reached a final status.
func (r Run) Done() bool {
	return r.Status != RunRunning
}
