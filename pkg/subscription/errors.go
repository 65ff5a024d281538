package subscription

import "errors"

// Error kinds. Every package error unwraps to exactly one of them so transports
// can map failures without knowing each specific error.
var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrValidation   = errors.New("validation failed")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
)

// Error is a specific failure classified by Kind.
type Error struct {
	Kind error
	msg  string
}

// NewError creates an error of the given kind.
func NewError(kind error, msg string) *Error {
	return &Error{Kind: kind, msg: msg}
}

func (e *Error) Error() string { return e.msg }

func (e *Error) Unwrap() error { return e.Kind }

var (
	ErrPlanNotFound             = NewError(ErrNotFound, "subscription plan not found")
	ErrUnknownPlanTier          = NewError(ErrValidation, "plan is not part of the tier hierarchy")
	ErrInvalidPlanConfiguration = NewError(ErrValidation, "invalid subscription plan configuration")
	ErrFailedToLoadPlans        = errors.New("failed to load subscription plans")

	ErrSubscriptionNotFound      = NewError(ErrNotFound, "subscription not found")
	ErrNoActiveSubscription      = NewError(ErrNotFound, "no active subscription found")
	ErrSubscriptionAlreadyExists = NewError(ErrConflict, "tenant already has a current subscription")
	ErrConcurrentUpdate          = NewError(ErrConflict, "subscription was modified concurrently")
	ErrInvalidTransition         = NewError(ErrConflict, "subscription status transition is not allowed")
	ErrNoScheduledChange         = NewError(ErrNotFound, "subscription has no scheduled plan change")
	ErrInvalidSubscriptionState  = NewError(ErrValidation, "invalid subscription state")
	ErrTrialNotActive            = NewError(ErrConflict, "subscription is not in trial")

	ErrMissingPlanID        = NewError(ErrValidation, "plan ID is required")
	ErrMissingTenantID      = NewError(ErrValidation, "tenant ID is required")
	ErrEffectiveDateInPast  = NewError(ErrValidation, "effective date must not be in the past")
	ErrInvalidTrialDuration = NewError(ErrValidation, "trial duration must be positive")

	ErrStorage = errors.New("subscription storage error")

	// Provider-specific errors
	ErrInvalidGatewayEvent       = NewError(ErrValidation, "invalid payment gateway event")
	ErrWebhookVerificationFailed = NewError(ErrUnauthorized, "webhook signature verification failed")
	ErrMissingWebhookSecret      = errors.New("billing provider webhook secret is required")
)

// IsNotFound reports whether err is of the NotFound kind.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsForbidden reports whether err is of the Forbidden kind.
func IsForbidden(err error) bool { return errors.Is(err, ErrForbidden) }

// IsValidation reports whether err is of the Validation kind.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsConflict reports whether err is of the Conflict kind.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }
