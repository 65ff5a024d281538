package billingapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/entitlement"
	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/scheduler"
	"github.com/dmitrymomot/billingkit/pkg/subscription"
)

type planRequest struct {
	PlanID string `json:"plan_id"`
}

type assignPlanRequest struct {
	TenantID uuid.UUID `json:"tenant_id"`
	PlanID   string    `json:"plan_id"`
}

type startTrialRequest struct {
	PlanID        string `json:"plan_id"`
	DurationHours int    `json:"duration_hours"`
}

type entitlementCheck struct {
	Allowed      bool                      `json:"allowed"`
	Reason       string                    `json:"reason,omitempty"`
	Entitlements *entitlement.Entitlements `json:"entitlements,omitempty"`
}

func tenantOf(r *http.Request) uuid.UUID {
	return entitlement.UserFromContext(r.Context()).TenantID
}

func (a *api) listPlans(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.svc.ListPlans(r.Context()))
}

func (a *api) createSubscription(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	res, err := a.svc.CreateSubscription(r.Context(), tenantOf(r), req.PlanID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	status := http.StatusCreated
	if res.Change != nil {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

func (a *api) updateSubscription(w http.ResponseWriter, r *http.Request) {
	var req subscription.ChangeRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	res, err := a.svc.UpdateSubscription(r.Context(), tenantOf(r), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *api) cancelSubscription(w http.ResponseWriter, r *http.Request) {
	var opts []subscription.CancelOption
	if raw := r.URL.Query().Get("immediately"); raw != "" {
		immediately, err := strconv.ParseBool(raw)
		if err != nil {
			a.writeError(w, r, errInvalidQuery)
			return
		}
		if immediately {
			opts = append(opts, subscription.CancelImmediately())
		}
	}
	sub, err := a.svc.CancelSubscription(r.Context(), tenantOf(r), opts...)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (a *api) currentSubscription(w http.ResponseWriter, r *http.Request) {
	cur, err := a.svc.CurrentSubscription(r.Context(), tenantOf(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cur)
}

func (a *api) subscriptionHistory(w http.ResponseWriter, r *http.Request) {
	history, err := a.svc.SubscriptionHistory(r.Context(), tenantOf(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (a *api) trialStatus(w http.ResponseWriter, r *http.Request) {
	ts, err := a.svc.CheckTrialStatus(r.Context(), tenantOf(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ts)
}

func (a *api) validity(w http.ResponseWriter, r *http.Request) {
	v, err := a.svc.ValidateSubscription(r.Context(), tenantOf(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// checkEntitlements evaluates the gate for the caller. Query: plan_rank=<n>
// and any number of feature=<name>. A refusal is a 200 with allowed=false;
// a missing identity is a 401.
func (a *api) checkEntitlements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var reqs []entitlement.Requirement
	if raw := q.Get("plan_rank"); raw != "" {
		rank, err := strconv.Atoi(raw)
		if err != nil {
			a.writeError(w, r, errInvalidQuery)
			return
		}
		reqs = append(reqs, entitlement.RequiredPlan{Rank: rank})
	}
	for _, f := range q["feature"] {
		reqs = append(reqs, entitlement.RequiredFeature{Feature: subscription.Feature(f)})
	}

	user := entitlement.UserFromContext(r.Context())
	res := entitlementCheck{Allowed: true}
	if err := a.gate.Require(r.Context(), user, reqs...); err != nil {
		if !subscription.IsForbidden(err) {
			a.writeError(w, r, err)
			return
		}
		res.Allowed = false
		res.Reason = err.Error()
	}
	if user.HasTenant() {
		if ent, err := a.gate.Entitlements(r.Context(), user.TenantID); err == nil {
			res.Entitlements = &ent
		}
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *api) assignPlan(w http.ResponseWriter, r *http.Request) {
	var req assignPlanRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	sub, err := a.svc.AssignPlanToTenant(r.Context(), req.TenantID, req.PlanID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (a *api) forcePlan(w http.ResponseWriter, r *http.Request) {
	tenantID, err := uuidParam(r, "tenantID", errInvalidTenantID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var req planRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	sub, err := a.svc.ForceSubscriptionUpdate(r.Context(), tenantID, req.PlanID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (a *api) expireTrial(w http.ResponseWriter, r *http.Request) {
	tenantID, err := uuidParam(r, "tenantID", errInvalidTenantID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	sub, err := a.svc.ExpireTrial(r.Context(), tenantID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (a *api) startTrial(w http.ResponseWriter, r *http.Request) {
	tenantID, err := uuidParam(r, "tenantID", errInvalidTenantID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var req startTrialRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	sub, err := a.svc.StartTrial(r.Context(), tenantID, req.PlanID, time.Duration(req.DurationHours)*time.Hour)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (a *api) getSubscription(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id", errInvalidID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	entry, err := a.svc.GetSubscription(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (a *api) cancelScheduledChange(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id", errInvalidID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	sub, err := a.svc.CancelScheduledChange(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (a *api) triggerSweep(w http.ResponseWriter, r *http.Request) {
	if a.runner == nil {
		a.writeError(w, r, errNotConfigured)
		return
	}
	run, err := a.runner.Trigger(r.Context(), a.sweepTask)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, run)
}

func (a *api) getRun(w http.ResponseWriter, r *http.Request) {
	if a.runner == nil {
		a.writeError(w, r, errNotConfigured)
		return
	}
	id, err := uuidParam(r, "id", errInvalidID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	run, err := a.runner.Run(r.Context(), id)
	if errors.Is(err, scheduler.ErrRunNotFound) {
		a.writeError(w, r, errRunNotFound)
		return
	}
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (a *api) paddleWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	ev, err := a.paddle.ParseWebhookRequest(r)
	if err != nil {
		a.logger.WarnContext(r.Context(), "rejected paddle webhook", logger.Error(err))
		a.writeError(w, r, err)
		return
	}
	if err := a.svc.ApplyGatewayEvent(r.Context(), *ev); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "processed", "event_id": ev.ID})
}
