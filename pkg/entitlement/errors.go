package entitlement

import "github.com/dmitrymomot/billingkit/pkg/subscription"

// Gate errors share the subscription error kinds so transports map them the same way.
var (
	ErrUnauthenticated = subscription.NewError(subscription.ErrUnauthorized, "authentication required")
	ErrTenantRequired  = subscription.NewError(subscription.ErrForbidden, "tenant context is required")
	ErrTrialExpired    = subscription.NewError(subscription.ErrForbidden, "Trial period has expired. Please upgrade your subscription.")
	ErrPlanRequired    = subscription.NewError(subscription.ErrForbidden, "current plan does not include this capability")
	ErrFeatureRequired = subscription.NewError(subscription.ErrForbidden, "feature is not available on the current plan")
)
