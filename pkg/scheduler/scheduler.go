package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/logger"
)

// DefaultTaskTimeout bounds a run when no WithTimeout is given.
const DefaultTaskTimeout = 5 * time.Minute

// TaskFunc is the work of a task. It must honor ctx cancellation.
type TaskFunc func(ctx context.Context) error

// Scheduler triggers registered tasks on their schedules and on demand.
// A task never runs concurrently with itself: a trigger that finds the
// previous run still in progress records a skipped run.
type Scheduler struct {
	mu      sync.RWMutex
	tasks   map[string]*task
	base    context.Context
	stopped bool

	checkInterval time.Duration
	logger        *slog.Logger
	locker        Locker
	runs          RunStore
	metrics       *Metrics
	now           func() time.Time

	started atomic.Bool
	wg      sync.WaitGroup
}

type task struct {
	name     string
	schedule Schedule
	fn       TaskFunc
	timeout  time.Duration
	lockTTL  time.Duration
	next     time.Time
	running  atomic.Bool
}

// New creates a scheduler with no tasks.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		tasks:         make(map[string]*task),
		checkInterval: time.Second,
		logger:        slog.Default(),
		runs:          NewMemoryRunStore(0, 0),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("scheduler"))
	return s
}

// Register adds a task. Panics if fn or schedule is nil.
func (s *Scheduler) Register(name string, schedule Schedule, fn TaskFunc, opts ...TaskOption) error {
	if fn == nil || schedule == nil {
		panic("scheduler: task function and schedule are required")
	}

	t := &task{name: name, schedule: schedule, fn: fn, timeout: DefaultTaskTimeout}
	for _, opt := range opts {
		opt(t)
	}
	if t.lockTTL == 0 {
		t.lockTTL = t.timeout + time.Minute
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[name]; exists {
		return fmt.Errorf("%w: %s", ErrTaskAlreadyRegistered, name)
	}
	s.tasks[name] = t

	s.logger.Info("registered task",
		logger.Task(name),
		slog.String("schedule", schedule.String()),
		slog.Duration("timeout", t.timeout),
	)
	return nil
}

// Tasks returns the registered task names in lexical order.
func (s *Scheduler) Tasks() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start triggers tasks as they come due until ctx is done, then waits for
// in-flight runs. Runs inherit ctx, so shutdown cancels them.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	s.mu.Lock()
	if len(s.tasks) == 0 {
		s.mu.Unlock()
		return ErrNoTasks
	}
	s.base = ctx
	now := s.now()
	for _, t := range s.tasks {
		t.next = t.schedule.Next(now)
	}
	s.mu.Unlock()

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "scheduler started", slog.Duration("check_interval", s.checkInterval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler shutting down")
			s.mu.Lock()
			s.stopped = true
			s.mu.Unlock()
			s.wg.Wait()
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	var due []*task
	for _, t := range s.tasks {
		if now.Before(t.next) {
			continue
		}
		due = append(due, t)
		t.next = t.schedule.Next(t.next)
		if !t.next.After(now) {
			// missed triggers collapse into one
			t.next = t.schedule.Next(now)
		}
	}
	s.mu.Unlock()

	for _, t := range due {
		s.dispatch(ctx, t, TriggerSchedule)
	}
}

// Trigger starts a run of the named task right away and returns its record.
// The run continues after ctx ends; it is bound to the scheduler's lifetime.
// Once Start is shutting down, Trigger returns ErrStopped.
func (s *Scheduler) Trigger(ctx context.Context, name string) (Run, error) {
	s.mu.RLock()
	t, ok := s.tasks[name]
	base := s.base
	if s.stopped || (base != nil && base.Err() != nil) {
		s.mu.RUnlock()
		return Run{}, ErrStopped
	}
	// Held until dispatch has added its own run, so Start's Wait cannot
	// observe a zero counter in between.
	s.wg.Add(1)
	s.mu.RUnlock()
	defer s.wg.Done()

	if !ok {
		return Run{}, fmt.Errorf("%w: %s", ErrTaskNotFound, name)
	}
	if base == nil {
		base = context.WithoutCancel(ctx)
	}
	return s.dispatch(base, t, TriggerManual), nil
}

// Run returns a recorded run.
func (s *Scheduler) Run(ctx context.Context, id uuid.UUID) (Run, error) {
	return s.runs.Get(ctx, id)
}

// Wait blocks until every in-flight run has finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) dispatch(ctx context.Context, t *task, trigger Trigger) Run {
	run := Run{
		ID:        uuid.New(),
		Task:      t.name,
		Trigger:   trigger,
		Status:    RunRunning,
		StartedAt: s.now(),
	}
	log := s.logger.With(logger.Task(t.name), logger.RunID(run.ID), slog.String("trigger", string(trigger)))

	if !t.running.CompareAndSwap(false, true) {
		log.WarnContext(ctx, "task still running, trigger skipped")
		return s.finish(ctx, run, RunSkipped, "previous run still in progress")
	}

	var token string
	if s.locker != nil {
		var (
			ok  bool
			err error
		)
		token, ok, err = s.locker.Acquire(ctx, TaskLockKey(t.name), t.lockTTL)
		if err != nil {
			t.running.Store(false)
			log.ErrorContext(ctx, "failed to acquire task lease", logger.Error(err))
			run.Error = err.Error()
			return s.finish(ctx, run, RunFailed, "")
		}
		if !ok {
			t.running.Store(false)
			log.InfoContext(ctx, "task lease held elsewhere, trigger skipped")
			return s.finish(ctx, run, RunSkipped, "lease held by another instance")
		}
	}

	s.save(ctx, run)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer t.running.Store(false)
		s.execute(ctx, t, run, token, log)
	}()
	return run
}

func (s *Scheduler) execute(ctx context.Context, t *task, run Run, token string, log *slog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	log.InfoContext(runCtx, "task run started")
	err := call(runCtx, t.fn)

	if s.locker != nil {
		releaseCtx, cancelRelease := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if rerr := s.locker.Release(releaseCtx, TaskLockKey(t.name), token); rerr != nil {
			log.WarnContext(ctx, "failed to release task lease", logger.Error(rerr))
		}
		cancelRelease()
	}

	if err != nil {
		run.Error = err.Error()
		run = s.finish(ctx, run, RunFailed, "")
		log.ErrorContext(ctx, "task run failed",
			logger.Error(err),
			logger.Duration(run.FinishedAt.Sub(run.StartedAt)),
		)
		return
	}
	run = s.finish(ctx, run, RunSucceeded, "")
	log.InfoContext(ctx, "task run finished", logger.Duration(run.FinishedAt.Sub(run.StartedAt)))
}

func (s *Scheduler) finish(ctx context.Context, run Run, status RunStatus, reason string) Run {
	finished := s.now()
	run.Status = status
	run.Reason = reason
	run.FinishedAt = &finished
	s.save(ctx, run)
	s.metrics.observe(run)
	return run
}

func (s *Scheduler) save(ctx context.Context, run Run) {
	if err := s.runs.Save(context.WithoutCancel(ctx), run); err != nil {
		s.logger.WarnContext(ctx, "failed to record run", logger.RunID(run.ID), logger.Error(err))
	}
}

func call(ctx context.Context, fn TaskFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return fn(ctx)
}

// TaskLockKey is the Locker key a task's runs are leased under.
func TaskLockKey(task string) string {
	return "task:" + task
}
