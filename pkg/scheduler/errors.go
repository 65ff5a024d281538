package scheduler

import "errors"

var (
	ErrTaskAlreadyRegistered = errors.New("task already registered")
	ErrTaskNotFound          = errors.New("task not registered")
	ErrNoTasks               = errors.New("scheduler has no registered tasks")
	ErrRunNotFound           = errors.New("run not found")
	ErrAlreadyStarted        = errors.New("scheduler already started")
	ErrStopped               = errors.New("scheduler stopped")
)
