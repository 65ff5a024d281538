package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/logger"
)

// GatewayEventType is the normalized kind of a payment gateway notification.
type GatewayEventType string

const (
	GatewaySubscriptionActivated GatewayEventType = "subscription_activated"
	GatewaySubscriptionUpdated   GatewayEventType = "subscription_updated"
	GatewaySubscriptionCancelled GatewayEventType = "subscription_cancelled"
	GatewayPaymentFailed         GatewayEventType = "payment_failed"
	GatewayUnknown               GatewayEventType = "unknown"
)

// GatewayEvent is a verified notification from the payment gateway.
// PlanID is the gateway price ID, which must equal a catalog plan ID.
type GatewayEvent struct {
	ID            string
	Type          GatewayEventType
	ProviderEvent string
	TenantID      uuid.UUID
	PlanID        string
	OccurredAt    time.Time
}

// ApplyGatewayEvent reconciles the tenant's subscription with a gateway event.
// Activation converts a trial or creates a paid subscription, cancellation cancels
// at period end. Payment failures are only logged; there is no dunning.
func (s *service) ApplyGatewayEvent(ctx context.Context, event GatewayEvent) (err error) {
	defer func() { s.metrics.observeOperation("gateway_event", err) }()

	if event.TenantID == uuid.Nil {
		return errors.Join(ErrInvalidGatewayEvent, ErrMissingTenantID)
	}

	log := s.logger.With(
		logger.TenantID(event.TenantID),
		logger.Event(string(event.Type)),
		slog.String("gateway_event_id", event.ID),
	)

	switch event.Type {
	case GatewaySubscriptionActivated, GatewaySubscriptionUpdated:
		if event.PlanID == "" {
			return errors.Join(ErrInvalidGatewayEvent, ErrMissingPlanID)
		}
		return s.syncPlanFromGateway(ctx, event)

	case GatewaySubscriptionCancelled:
		_, err := s.CancelSubscription(ctx, event.TenantID)
		if errors.Is(err, ErrNoActiveSubscription) {
			log.InfoContext(ctx, "gateway cancellation for tenant without active subscription ignored")
			return nil
		}
		return err

	case GatewayPaymentFailed:
		log.WarnContext(ctx, "payment failed at gateway")
		return nil

	default:
		log.DebugContext(ctx, "ignoring gateway event", slog.String("provider_event", event.ProviderEvent))
		return nil
	}
}

// syncPlanFromGateway makes the tenant's live subscription match the plan the gateway billed.
func (s *service) syncPlanFromGateway(ctx context.Context, event GatewayEvent) error {
	plan, err := s.catalog.Get(event.PlanID)
	if err != nil {
		return errors.Join(ErrInvalidGatewayEvent, fmt.Errorf("price %s: %w", event.PlanID, err))
	}

	current, err := s.store.GetCurrent(ctx, event.TenantID)
	switch {
	case errors.Is(err, ErrSubscriptionNotFound):
		_, err := s.AssignPlanToTenant(ctx, event.TenantID, plan.ID)
		return err
	case err != nil:
		return wrapStorage(err)
	case current.Status == StatusTrialing:
		_, err := s.convertTrial(ctx, event.TenantID, plan)
		return err
	case current.PlanID == plan.ID:
		return nil
	default:
		// The gateway has already billed the new price; no proration here.
		_, err := s.ForceSubscriptionUpdate(ctx, event.TenantID, plan.ID)
		return err
	}
}
