package redis

import "time"

// Config holds Redis connection settings parsed from REDIS_* variables.
// An empty ConnectionURL means Redis is not used and in-process fallbacks apply.
type Config struct {
	ConnectionURL  string        `env:"REDIS_URL"`                              // redis://:password@localhost:6379/0
	RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`    // connection attempts before giving up
	RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"2s"`   // pause between attempts
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s"` // upper bound for the whole Connect call
}

// Enabled reports whether a Redis URL is configured.
func (c Config) Enabled() bool {
	return c.ConnectionURL != ""
}
