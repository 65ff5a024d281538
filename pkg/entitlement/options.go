package entitlement

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dmitrymomot/billingkit/pkg/subscription"
)

// ErrorHandler writes the response for a request the gate refused.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// Option configures a Gate.
type Option func(*gate)

// WithCache sets the snapshot cache. Without it every check reads the store.
func WithCache(c Cache) Option {
	return func(g *gate) {
		if c != nil {
			g.cache = c
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *gate) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(g *gate) {
		g.metrics = m
	}
}

// WithErrorHandler sets the handler used by Middleware on refusal.
func WithErrorHandler(h ErrorHandler) Option {
	return func(g *gate) {
		if h != nil {
			g.errorHandler = h
		}
	}
}

// WithClock overrides the time source used to evaluate trials.
func WithClock(now func() time.Time) Option {
	return func(g *gate) {
		if now != nil {
			g.now = now
		}
	}
}

func defaultErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, subscription.ErrUnauthorized):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, subscription.ErrForbidden):
		http.Error(w, err.Error(), http.StatusForbidden)
	default:
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
