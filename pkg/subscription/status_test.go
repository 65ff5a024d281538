package subscription_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/subscription"
)

func TestNextStatus(t *testing.T) {
	t.Parallel()

	allowed := []struct {
		from  subscription.SubscriptionStatus
		event subscription.Event
		to    subscription.SubscriptionStatus
	}{
		{subscription.StatusTrialing, subscription.EventConvertTrial, subscription.StatusActive},
		{subscription.StatusTrialing, subscription.EventExpireTrial, subscription.StatusExpired},
		{subscription.StatusActive, subscription.EventChangePlan, subscription.StatusActive},
		{subscription.StatusActive, subscription.EventCancel, subscription.StatusCancelled},
	}
	for _, tt := range allowed {
		to, err := subscription.NextStatus(tt.from, tt.event)
		require.NoError(t, err, "%s on %s", tt.event, tt.from)
		assert.Equal(t, tt.to, to)
		assert.True(t, subscription.CanFire(tt.from, tt.event))
	}

	statuses := []subscription.SubscriptionStatus{
		subscription.StatusTrialing, subscription.StatusActive,
		subscription.StatusCancelled, subscription.StatusExpired,
	}
	events := []subscription.Event{
		subscription.EventConvertTrial, subscription.EventExpireTrial,
		subscription.EventChangePlan, subscription.EventCancel,
	}
	denied := 0
	for _, from := range statuses {
		for _, event := range events {
			if subscription.CanFire(from, event) {
				continue
			}
			denied++
			_, err := subscription.NextStatus(from, event)
			assert.ErrorIs(t, err, subscription.ErrInvalidTransition)
			assert.True(t, subscription.IsConflict(err))
		}
	}
	assert.Equal(t, 12, denied, "only four transitions exist")
}
