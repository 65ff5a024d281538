package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/scheduler"
)

const leaseReleaseTimeout = 5 * time.Second

func newSweepCmd(envFiles *[]string) *cobra.Command {
	var skipTrials bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Apply due scheduled plan changes once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*envFiles...)
			if err != nil {
				return err
			}
			log := newLogger(cfg)
			ctx := cmd.Context()

			a, err := newApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.close()

			// Without Redis there is no shared lease; the run is unguarded.
			var locker scheduler.Locker
			if a.rdb != nil {
				locker = scheduler.NewRedisLocker(a.rdb, schedulerLockKey)
			}
			lease := sweepLease{locker: locker, timeout: cfg.Sweep.Timeout, ttl: cfg.Sweep.LockTTL, log: log}

			now := time.Now()
			ran, err := lease.run(ctx, taskScheduledChanges, func(ctx context.Context) error {
				res, err := a.sweeper.RunSweep(ctx, now)
				if err != nil {
					return err
				}
				log.InfoContext(ctx, "sweep finished",
					logger.Task(taskScheduledChanges),
					slog.Int("promoted", res.Promoted),
					slog.Int("failed", res.Failed),
					slog.Int("skipped", res.Skipped),
				)
				return nil
			})
			if err != nil {
				return err
			}
			if !ran {
				log.InfoContext(ctx, "sweep lease held elsewhere, skipped", logger.Task(taskScheduledChanges))
			}

			if skipTrials || !cfg.Sweep.TrialExpiryEnabled {
				return nil
			}
			ran, err = lease.run(ctx, taskTrialExpiry, func(ctx context.Context) error {
				expired, err := a.sweeper.ExpireTrials(ctx, now)
				if err != nil {
					return err
				}
				log.InfoContext(ctx, "trial expiry finished",
					logger.Task(taskTrialExpiry),
					slog.Int("expired", expired),
				)
				return nil
			})
			if err != nil {
				return err
			}
			if !ran {
				log.InfoContext(ctx, "trial expiry lease held elsewhere, skipped", logger.Task(taskTrialExpiry))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipTrials, "skip-trials", false, "do not expire overdue trials")
	return cmd
}

// sweepLease runs a one-shot task under the same lease and deadline the
// serve scheduler applies to it.
type sweepLease struct {
	locker  scheduler.Locker // nil runs without a lease
	timeout time.Duration
	ttl     time.Duration // zero means timeout plus one minute
	log     *slog.Logger
}

// run reports false without calling fn when another holder owns the lease.
func (l sweepLease) run(ctx context.Context, task string, fn func(context.Context) error) (bool, error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	if l.locker == nil {
		return true, fn(ctx)
	}

	ttl := l.ttl
	if ttl <= 0 {
		ttl = l.timeout + time.Minute
	}
	key := scheduler.TaskLockKey(task)
	token, ok, err := l.locker.Acquire(ctx, key, ttl)
	if err != nil {
		return false, fmt.Errorf("acquire %s lease: %w", task, err)
	}
	if !ok {
		return false, nil
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), leaseReleaseTimeout)
		defer cancel()
		if err := l.locker.Release(releaseCtx, key, token); err != nil {
			l.log.WarnContext(ctx, "failed to release task lease", logger.Task(task), logger.Error(err))
		}
	}()
	return true, fn(ctx)
}
