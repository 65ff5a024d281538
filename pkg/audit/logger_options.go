package audit

import (
	"context"
	"time"
)

// Option configures Logger behavior during initialization
type Option func(*Logger)

// Context extractors populate events from request context.
// If extraction fails, the corresponding event field stays empty.

func WithTenantIDExtractor(fn func(context.Context) (string, bool)) Option {
	return func(l *Logger) {
		l.tenantIDExtractor = fn
	}
}

func WithActorIDExtractor(fn func(context.Context) (string, bool)) Option {
	return func(l *Logger) {
		l.actorIDExtractor = fn
	}
}

func WithIPExtractor(fn func(context.Context) (string, bool)) Option {
	return func(l *Logger) {
		l.ipExtractor = fn
	}
}

// WithClock overrides the time source used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) {
		if now != nil {
			l.now = now
		}
	}
}
