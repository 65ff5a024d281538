package main

import (
	"time"

	"github.com/dmitrymomot/billingkit/pkg/config"
	"github.com/dmitrymomot/billingkit/pkg/httpserver"
	"github.com/dmitrymomot/billingkit/pkg/pg"
	"github.com/dmitrymomot/billingkit/pkg/redis"
)

// Config is the full billingd configuration. Nested sections parse their own
// prefixed variables.
type Config struct {
	Env       string `env:"APP_ENV" envDefault:"development"`
	LogLevel  string `env:"LOG_LEVEL"` // overrides the level implied by APP_ENV
	PlansFile string `env:"PLANS_FILE" envDefault:"plans.yaml"`

	PaddleWebhookSecret string `env:"PADDLE_WEBHOOK_SECRET"` // webhook route is disabled when empty

	HTTP  httpserver.Config
	PG    pg.Config
	Redis redis.Config
	Sweep SweepConfig
	Gate  GateConfig
}

// SweepConfig controls the background jobs.
type SweepConfig struct {
	Interval           time.Duration `env:"SWEEP_INTERVAL" envDefault:"1h"`
	Timeout            time.Duration `env:"SWEEP_TIMEOUT" envDefault:"5m"`
	LockTTL            time.Duration `env:"SWEEP_LOCK_TTL"` // zero means timeout plus one minute
	TrialExpiryEnabled bool          `env:"TRIAL_EXPIRY_ENABLED" envDefault:"true"`
	TrialGracePeriod   time.Duration `env:"TRIAL_GRACE_PERIOD" envDefault:"0s"`
}

// GateConfig sizes the entitlement cache.
type GateConfig struct {
	CacheTTL  time.Duration `env:"GATE_CACHE_TTL" envDefault:"30s"`
	CacheSize int           `env:"GATE_CACHE_SIZE" envDefault:"1000"`
}

func loadConfig(envFiles ...string) (Config, error) {
	if err := config.LoadDotEnv(envFiles...); err != nil {
		return Config{}, err
	}
	return config.Load[Config]()
}
