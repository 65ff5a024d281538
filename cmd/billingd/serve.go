package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/billingkit/pkg/httpserver"
	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/pg"
	"github.com/dmitrymomot/billingkit/pkg/redis"
	"github.com/dmitrymomot/billingkit/pkg/scheduler"
	"github.com/dmitrymomot/billingkit/pkg/subscription"
	"github.com/dmitrymomot/billingkit/svc/billingapi"
)

// Scheduler task names.
const (
	taskScheduledChanges = "scheduled_changes"
	taskTrialExpiry      = "trial_expiry"
)

const (
	healthCheckTimeout = 3 * time.Second
	schedulerLockKey   = "billing:scheduler:"
)

func newServeCmd(envFiles *[]string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background sweeps",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*envFiles...)
			if err != nil {
				return err
			}
			log := newLogger(cfg)
			logger.SetAsDefault(log)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log)
		},
	}
}

func serve(ctx context.Context, cfg Config, log *slog.Logger) error {
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.close(); err != nil {
			log.Error("failed to close backends", logger.Error(err))
		}
	}()

	sched, err := newScheduler(a)
	if err != nil {
		return err
	}

	opts := []billingapi.Option{
		billingapi.WithLogger(log),
		billingapi.WithTaskRunner(sched, taskScheduledChanges),
		billingapi.WithHealthHandler(httpserver.HealthHandler(log, healthCheckTimeout, healthChecks(a))),
		billingapi.WithMetrics(a.registry),
	}
	if cfg.PaddleWebhookSecret != "" {
		gw, err := subscription.NewPaddleGateway(cfg.PaddleWebhookSecret)
		if err != nil {
			return err
		}
		opts = append(opts, billingapi.WithPaddleWebhooks(gw))
	}
	handler := billingapi.New(a.service, a.gate, opts...)

	server := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(ctx, handler) })
	g.Go(func() error { return sched.Start(ctx) })
	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("billingd stopped")
	return nil
}

func newScheduler(a *app) (*scheduler.Scheduler, error) {
	var locker scheduler.Locker = scheduler.NewMemoryLocker()
	if a.rdb != nil {
		locker = scheduler.NewRedisLocker(a.rdb, schedulerLockKey)
	}

	sched := scheduler.New(
		scheduler.WithLogger(a.log),
		scheduler.WithLocker(locker),
		scheduler.WithMetrics(scheduler.NewMetrics(a.registry)),
	)

	sweep := a.cfg.Sweep
	taskOpts := []scheduler.TaskOption{
		scheduler.WithTimeout(sweep.Timeout),
		scheduler.WithLockTTL(sweep.LockTTL),
	}
	if err := sched.Register(taskScheduledChanges, scheduler.Every(sweep.Interval), a.sweeper.SweepTask, taskOpts...); err != nil {
		return nil, err
	}
	if sweep.TrialExpiryEnabled {
		if err := sched.Register(taskTrialExpiry, scheduler.Every(sweep.Interval), a.sweeper.ExpireTrialsTask, taskOpts...); err != nil {
			return nil, err
		}
	}
	return sched, nil
}

func healthChecks(a *app) map[string]httpserver.Check {
	checks := map[string]httpserver.Check{
		"postgres": pg.Healthcheck(a.pool),
	}
	if a.rdb != nil {
		checks["redis"] = redis.Healthcheck(a.rdb)
	}
	return checks
}
