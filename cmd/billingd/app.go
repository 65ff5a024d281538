package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/billingkit/pkg/audit"
	"github.com/dmitrymomot/billingkit/pkg/entitlement"
	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/pg"
	"github.com/dmitrymomot/billingkit/pkg/redis"
	"github.com/dmitrymomot/billingkit/pkg/subscription"
	"github.com/dmitrymomot/billingkit/pkg/subscription/pgstore"
	"github.com/dmitrymomot/billingkit/svc/billingapi"
)

// app holds the wired billing components shared by the commands.
type app struct {
	cfg      Config
	log      *slog.Logger
	pool     *pgxpool.Pool
	rdb      *goredis.Client // nil without REDIS_URL
	registry *prometheus.Registry
	catalog  *subscription.Catalog
	service  subscription.Service
	sweeper  *subscription.Sweeper
	gate     entitlement.Gate
}

func newLogger(cfg Config) *slog.Logger {
	opts := []logger.Option{
		logger.WithEnvironment(cfg.Env, serviceName),
		logger.WithContextExtractors(billingapi.LoggerExtractor()),
	}
	if cfg.LogLevel != "" {
		opts = append(opts, logger.WithLevel(logger.ParseLevel(cfg.LogLevel)))
	}
	return logger.New(opts...)
}

// newApp connects the backends and builds the billing components on top of them.
// The caller must call close.
func newApp(ctx context.Context, cfg Config, log *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	pool, err := pg.Connect(ctx, cfg.PG)
	if err != nil {
		return nil, err
	}
	a.pool = pool

	if cfg.Redis.Enabled() {
		rdb, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			a.close()
			return nil, err
		}
		a.rdb = rdb
	} else {
		log.InfoContext(ctx, "redis not configured, using in-process cache and locks")
	}

	catalog, err := subscription.NewCatalog(ctx, subscription.NewYAMLSource(cfg.PlansFile))
	if err != nil {
		a.close()
		return nil, err
	}
	a.catalog = catalog

	var gateCache entitlement.Cache
	if a.rdb != nil {
		gateCache = entitlement.NewRedisCache(a.rdb, cfg.Gate.CacheTTL, log)
	} else {
		gateCache = entitlement.NewMemoryCache(cfg.Gate.CacheSize, cfg.Gate.CacheTTL)
	}
	invalidator := entitlement.CacheInvalidator{Cache: gateCache}

	store := pgstore.New(pool)
	auditLog := audit.NewLogger(pgstore.NewAuditStorage(pool))
	metrics := subscription.NewMetrics(a.registry)

	a.service = subscription.NewService(catalog, store,
		subscription.WithLogger(log),
		subscription.WithAuditLogger(auditLog),
		subscription.WithMetrics(metrics),
		subscription.WithInvalidator(invalidator),
	)
	a.sweeper = subscription.NewSweeper(store,
		subscription.WithSweeperLogger(log),
		subscription.WithSweeperAuditLogger(auditLog),
		subscription.WithSweeperMetrics(metrics),
		subscription.WithSweeperInvalidator(invalidator),
		subscription.WithTrialGracePeriod(cfg.Sweep.TrialGracePeriod),
	)
	a.gate = entitlement.NewGate(a.service,
		entitlement.WithCache(gateCache),
		entitlement.WithLogger(log),
		entitlement.WithMetrics(entitlement.NewMetrics(a.registry)),
	)

	log.InfoContext(ctx, "billing components ready",
		slog.Int("plans", len(catalog.List())),
		slog.Bool("redis", a.rdb != nil),
	)
	return a, nil
}

func (a *app) close() error {
	var errs []error
	if a.rdb != nil {
		errs = append(errs, a.rdb.Close())
	}
	if a.pool != nil {
		a.pool.Close()
	}
	return errors.Join(errs...)
}
