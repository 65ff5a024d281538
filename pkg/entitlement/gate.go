package entitlement

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/subscription"
)

// SubscriptionReader is the part of subscription.Service the gate reads from.
type SubscriptionReader interface {
	EntitledSubscription(ctx context.Context, tenantID uuid.UUID) (*subscription.CurrentSubscription, error)
	CheckTrialStatus(ctx context.Context, tenantID uuid.UUID) (subscription.TrialStatus, error)
}

// Gate decides whether a user may use the application and its paid capabilities.
type Gate interface {
	// CanActivate applies the basic access rules: authenticated, inside a tenant
	// (unless superadmin) and not blocked by an expired trial.
	CanActivate(ctx context.Context, user *User) error
	// Require runs CanActivate and then checks every requirement against the
	// tenant's entitlements. Superadmins bypass requirements.
	Require(ctx context.Context, user *User, reqs ...Requirement) error
	// Entitlements returns the tenant's snapshot, from cache when possible.
	Entitlements(ctx context.Context, tenantID uuid.UUID) (Entitlements, error)
	// Invalidate drops the cached snapshot of a tenant.
	Invalidate(ctx context.Context, tenantID uuid.UUID)
	// Middleware guards handlers with Require for the user found in the request context.
	Middleware(reqs ...Requirement) func(http.Handler) http.Handler
}

type gate struct {
	subs         SubscriptionReader
	cache        Cache
	logger       *slog.Logger
	metrics      *Metrics
	errorHandler ErrorHandler
	now          func() time.Time
}

// NewGate creates a gate reading subscriptions from subs. Panics if subs is nil.
func NewGate(subs SubscriptionReader, opts ...Option) Gate {
	if subs == nil {
		panic("entitlement: subscription reader cannot be nil")
	}
	g := &gate{
		subs:         subs,
		cache:        noopCache{},
		logger:       slog.Default(),
		errorHandler: defaultErrorHandler,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With(logger.Component("entitlement_gate"))
	return g
}

func (g *gate) CanActivate(ctx context.Context, user *User) (err error) {
	defer func() { g.metrics.observeDecision(err) }()
	_, err = g.activate(ctx, user)
	return err
}

func (g *gate) Require(ctx context.Context, user *User, reqs ...Requirement) (err error) {
	defer func() { g.metrics.observeDecision(err) }()

	ent, err := g.activate(ctx, user)
	if err != nil || ent == nil {
		return err
	}
	for _, req := range reqs {
		if !Authorize(*ent, req) {
			g.logger.DebugContext(ctx, "requirement not met",
				logger.TenantID(ent.TenantID),
				logger.UserID(user.ID),
				slog.String("requirement", req.String()),
			)
			return requirementError(req)
		}
	}
	return nil
}

// activate returns the tenant snapshot it evaluated, or nil for superadmins.
func (g *gate) activate(ctx context.Context, user *User) (*Entitlements, error) {
	if user == nil {
		return nil, ErrUnauthenticated
	}
	if user.Superadmin {
		return nil, nil
	}
	if !user.HasTenant() {
		return nil, ErrTenantRequired
	}

	ent, err := g.Entitlements(ctx, user.TenantID)
	if err != nil {
		return nil, err
	}
	if ent.TrialBlocks() {
		return nil, ErrTrialExpired
	}
	return &ent, nil
}

func (g *gate) Entitlements(ctx context.Context, tenantID uuid.UUID) (Entitlements, error) {
	if ent, ok := g.cache.Get(ctx, tenantID); ok {
		if !ent.ExpiredAt(g.now()) {
			g.metrics.observeCache(true)
			return ent, nil
		}
		g.cache.Delete(ctx, tenantID)
	}
	g.metrics.observeCache(false)

	cur, err := g.subs.EntitledSubscription(ctx, tenantID)
	if err != nil && !errors.Is(err, subscription.ErrNoActiveSubscription) {
		return Entitlements{}, err
	}
	trial, err := g.subs.CheckTrialStatus(ctx, tenantID)
	if err != nil {
		return Entitlements{}, err
	}

	ent := newEntitlements(tenantID, cur, trial, g.now())
	g.cache.Set(ctx, ent)
	return ent, nil
}

func (g *gate) Invalidate(ctx context.Context, tenantID uuid.UUID) {
	g.cache.Delete(ctx, tenantID)
}

func (g *gate) Middleware(reqs ...Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := g.Require(r.Context(), UserFromContext(r.Context()), reqs...); err != nil {
				if !errors.Is(err, subscription.ErrUnauthorized) && !errors.Is(err, subscription.ErrForbidden) {
					g.logger.ErrorContext(r.Context(), "access check failed", logger.Error(err))
				}
				g.errorHandler(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
