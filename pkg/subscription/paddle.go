package subscription

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
	"github.com/google/uuid"
)

// PaddleGateway turns signed Paddle webhooks into GatewayEvents.
// Tenants are matched through custom_data.tenant_id set at checkout.
type PaddleGateway struct {
	verifier *paddle.WebhookVerifier
}

// NewPaddleGateway creates a gateway verifying webhooks with secret.
func NewPaddleGateway(secret string) (*PaddleGateway, error) {
	if secret == "" {
		return nil, ErrMissingWebhookSecret
	}
	return &PaddleGateway{verifier: paddle.NewWebhookVerifier(secret)}, nil
}

type paddleNotification struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       paddleEventData `json:"data"`
}

type paddleEventData struct {
	ID         string         `json:"id"`
	Status     string         `json:"status"`
	CustomData map[string]any `json:"custom_data"`
	Items      []paddleItem   `json:"items"`
}

type paddleItem struct {
	PriceID string `json:"price_id"`
	Price   struct {
		ID string `json:"id"`
	} `json:"price"`
}

// ParseWebhookRequest verifies the Paddle-Signature header and decodes the body.
// The request body remains readable afterwards.
func (g *PaddleGateway) ParseWebhookRequest(req *http.Request) (*GatewayEvent, error) {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read webhook body: %w", err)
	}
	req.Body = io.NopCloser(bytes.NewReader(body))

	valid, err := g.verifier.Verify(req)
	req.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return nil, errors.Join(ErrWebhookVerificationFailed, err)
	}
	if !valid {
		return nil, ErrWebhookVerificationFailed
	}

	return parsePaddleNotification(body)
}

func parsePaddleNotification(body []byte) (*GatewayEvent, error) {
	var n paddleNotification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, errors.Join(ErrInvalidGatewayEvent, err)
	}

	event := &GatewayEvent{
		ID:            n.EventID,
		Type:          mapPaddleEventType(n.EventType, n.Data.Status),
		ProviderEvent: n.EventType,
		OccurredAt:    n.OccurredAt,
	}

	if raw, _ := n.Data.CustomData["tenant_id"].(string); raw != "" {
		tenantID, err := uuid.Parse(raw)
		if err != nil {
			return nil, errors.Join(ErrInvalidGatewayEvent, fmt.Errorf("invalid tenant_id: %w", err))
		}
		event.TenantID = tenantID
	}

	if len(n.Data.Items) > 0 {
		item := n.Data.Items[0]
		event.PlanID = item.Price.ID
		if event.PlanID == "" {
			event.PlanID = item.PriceID
		}
	}

	return event, nil
}

// mapPaddleEventType maps Paddle notification names to gateway event types.
func mapPaddleEventType(eventType, status string) GatewayEventType {
	switch eventType {
	case "subscription.activated", "transaction.completed":
		return GatewaySubscriptionActivated
	case "subscription.created":
		if status == "trialing" {
			return GatewayUnknown
		}
		return GatewaySubscriptionActivated
	case "subscription.updated":
		if status == "canceled" {
			return GatewaySubscriptionCancelled
		}
		return GatewaySubscriptionUpdated
	case "subscription.canceled":
		return GatewaySubscriptionCancelled
	case "transaction.payment_failed":
		return GatewayPaymentFailed
	default:
		return GatewayUnknown
	}
}
