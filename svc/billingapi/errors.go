package billingapi

import (
	"errors"
	"net/http"

	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/subscription"
)

var (
	errInvalidBody     = subscription.NewError(subscription.ErrValidation, "invalid request body")
	errInvalidTenantID = subscription.NewError(subscription.ErrValidation, "invalid tenant ID")
	errInvalidID       = subscription.NewError(subscription.ErrValidation, "invalid ID")
	errInvalidQuery    = subscription.NewError(subscription.ErrValidation, "invalid query parameter")
	errAdminOnly       = subscription.NewError(subscription.ErrForbidden, "superadmin access required")
	errNotConfigured   = subscription.NewError(subscription.ErrNotFound, "feature is not configured")
	errRunNotFound     = subscription.NewError(subscription.ErrNotFound, "run not found")
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusOf maps an error kind to an HTTP status and a stable code.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, subscription.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, subscription.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, subscription.ErrValidation):
		return http.StatusBadRequest, "validation_failed"
	case errors.Is(err, subscription.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, subscription.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (a *api) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		a.logger.ErrorContext(r.Context(), "request failed",
			logger.Error(err),
			logger.RequestID(requestIDFromContext(r.Context())),
		)
		msg = "internal server error"
	}
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: msg}})
}
