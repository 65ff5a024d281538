package billingapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrymomot/billingkit/pkg/entitlement"
	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/scheduler"
	"github.com/dmitrymomot/billingkit/pkg/subscription"
)

// TaskRunner starts maintenance runs on demand and reports on them.
// *scheduler.Scheduler satisfies it.
type TaskRunner interface {
	Trigger(ctx context.Context, name string) (scheduler.Run, error)
	Run(ctx context.Context, id uuid.UUID) (scheduler.Run, error)
}

// WebhookParser verifies and normalizes a payment provider webhook.
// *subscription.PaddleGateway satisfies it.
type WebhookParser interface {
	ParseWebhookRequest(r *http.Request) (*subscription.GatewayEvent, error)
}

type api struct {
	svc       subscription.Service
	gate      entitlement.Gate
	logger    *slog.Logger
	paddle    WebhookParser
	runner    TaskRunner
	sweepTask string
	health    http.Handler
	metrics   http.Handler
}

// Option configures the API router.
type Option func(*api)

// WithLogger sets the API logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *api) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithPaddleWebhooks mounts POST /webhooks/paddle.
func WithPaddleWebhooks(p WebhookParser) Option {
	return func(a *api) { a.paddle = p }
}

// WithTaskRunner mounts the sweep trigger and run lookup admin routes.
// sweepTask is the task started by POST /admin/sweeps.
func WithTaskRunner(r TaskRunner, sweepTask string) Option {
	return func(a *api) {
		a.runner = r
		a.sweepTask = sweepTask
	}
}

// WithHealthHandler mounts h on GET /healthz.
func WithHealthHandler(h http.Handler) Option {
	return func(a *api) { a.health = h }
}

// WithMetrics exposes g on GET /metrics in the Prometheus text format.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(a *api) {
		if g != nil {
			a.metrics = promhttp.HandlerFor(g, promhttp.HandlerOpts{})
		}
	}
}

// New builds the billing HTTP API. Panics if svc or gate is nil.
func New(svc subscription.Service, gate entitlement.Gate, opts ...Option) http.Handler {
	if svc == nil || gate == nil {
		panic("billingapi: subscription service and gate are required")
	}
	a := &api{svc: svc, gate: gate, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(logger.Component("billing_api"))
	return a.routes()
}

func (a *api) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(requestID, middleware.Recoverer, a.accessLog)

	if a.health != nil {
		r.Method(http.MethodGet, "/healthz", a.health)
	}
	if a.metrics != nil {
		r.Method(http.MethodGet, "/metrics", a.metrics)
	}
	if a.paddle != nil {
		r.Post("/webhooks/paddle", a.paddleWebhook)
	}

	r.Group(func(r chi.Router) {
		r.Use(a.identity)

		r.Get("/plans", a.listPlans)

		r.Group(func(r chi.Router) {
			r.Use(a.requireTenant)

			r.Route("/subscriptions", func(r chi.Router) {
				r.Post("/", a.createSubscription)
				r.Put("/", a.updateSubscription)
				r.Delete("/", a.cancelSubscription)
				r.Get("/current", a.currentSubscription)
				r.Get("/history", a.subscriptionHistory)
				r.Get("/trial", a.trialStatus)
				r.Get("/validity", a.validity)
			})
		})

		r.Get("/entitlements/check", a.checkEntitlements)

		r.Route("/admin", func(r chi.Router) {
			r.Use(a.requireSuperadmin)

			r.Post("/assign-plan", a.assignPlan)
			r.Route("/tenants/{tenantID}", func(r chi.Router) {
				r.Post("/force-plan", a.forcePlan)
				r.Post("/expire-trial", a.expireTrial)
				r.Post("/trial", a.startTrial)
			})
			r.Get("/subscriptions/{id}", a.getSubscription)
			r.Delete("/subscriptions/{id}/scheduled-change", a.cancelScheduledChange)
			r.Post("/sweeps", a.triggerSweep)
			r.Get("/runs/{id}", a.getRun)
		})
	})

	return r
}
