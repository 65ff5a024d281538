package subscription

import (
	"errors"
	"fmt"
)

// Event is a lifecycle trigger that moves a subscription between statuses.
type Event string

const (
	EventConvertTrial Event = "convert_trial"
	EventExpireTrial  Event = "expire_trial"
	EventChangePlan   Event = "change_plan"
	EventCancel       Event = "cancel"
)

type transitionKey struct {
	from  SubscriptionStatus
	event Event
}

// transitions is the complete lifecycle table. Cancelled and expired rows are
// terminal; a tenant leaves them only by creating a new subscription.
var transitions = map[transitionKey]SubscriptionStatus{
	{StatusTrialing, EventConvertTrial}: StatusActive,
	{StatusTrialing, EventExpireTrial}:  StatusExpired,
	{StatusActive, EventChangePlan}:     StatusActive,
	{StatusActive, EventCancel}:         StatusCancelled,
}

// NextStatus returns the status reached by firing event from the current status.
func NextStatus(from SubscriptionStatus, event Event) (SubscriptionStatus, error) {
	to, ok := transitions[transitionKey{from: from, event: event}]
	if !ok {
		return "", errors.Join(ErrInvalidTransition, fmt.Errorf("%s on %s", event, from))
	}
	return to, nil
}

// CanFire reports whether event is allowed from status.
func CanFire(from SubscriptionStatus, event Event) bool {
	_, ok := transitions[transitionKey{from: from, event: event}]
	return ok
}

// apply fires event on sub, updating its status in place.
func (s *Subscription) apply(event Event) error {
	to, err := NextStatus(s.Status, event)
	if err != nil {
		return err
	}
	s.Status = to
	return nil
}
