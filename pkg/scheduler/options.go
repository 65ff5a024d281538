package scheduler

import (
	"log/slog"
	"time"
)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the scheduler logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithCheckInterval sets how often due tasks are looked for. Default is one second.
func WithCheckInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.checkInterval = d
		}
	}
}

// WithLocker guards every run with a lease so only one process executes a task
// at a time.
func WithLocker(l Locker) Option {
	return func(s *Scheduler) {
		s.locker = l
	}
}

// WithRunStore sets where run records are kept.
func WithRunStore(rs RunStore) Option {
	return func(s *Scheduler) {
		if rs != nil {
			s.runs = rs
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// TaskOption configures a registered task.
type TaskOption func(*task)

// WithTimeout bounds a single run. Default is DefaultTaskTimeout.
func WithTimeout(d time.Duration) TaskOption {
	return func(t *task) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// WithLockTTL sets the lease length. Default is the timeout plus one minute.
func WithLockTTL(d time.Duration) TaskOption {
	return func(t *task) {
		if d > 0 {
			t.lockTTL = d
		}
	}
}
