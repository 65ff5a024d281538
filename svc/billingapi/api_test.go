package billingapi_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/audit"
	"github.com/dmitrymomot/billingkit/pkg/entitlement"
	"github.com/dmitrymomot/billingkit/pkg/scheduler"
	"github.com/dmitrymomot/billingkit/pkg/subscription"
	"github.com/dmitrymomot/billingkit/svc/billingapi"
)

var now = time.Date(2025, 1, 16, 0, 0, 0, 0, time.UTC)

type fakeRunner struct {
	mu   sync.Mutex
	runs map[uuid.UUID]scheduler.Run
}

func (f *fakeRunner) Trigger(_ context.Context, name string) (scheduler.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run := scheduler.Run{ID: uuid.New(), Task: name, Trigger: scheduler.TriggerManual, Status: scheduler.RunRunning}
	f.runs[run.ID] = run
	return run, nil
}

func (f *fakeRunner) Run(_ context.Context, id uuid.UUID) (scheduler.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[id]
	if !ok {
		return scheduler.Run{}, scheduler.ErrRunNotFound
	}
	return run, nil
}

type fakeWebhooks struct {
	event *subscription.GatewayEvent
	err   error
}

func (f fakeWebhooks) ParseWebhookRequest(*http.Request) (*subscription.GatewayEvent, error) {
	return f.event, f.err
}

type testAPI struct {
	handler http.Handler
	store   *subscription.MemoryStore
	svc     subscription.Service
	audit   *audit.MemoryStorage
}

func newTestAPI(t *testing.T, opts ...billingapi.Option) *testAPI {
	t.Helper()

	catalog, err := subscription.NewCatalog(context.Background(), subscription.NewInMemSource(
		subscription.Plan{
			ID:        "basic",
			Name:      "Basic",
			Rank:      0,
			Price:     decimal.Zero,
			Currency:  "USD",
			Interval:  subscription.BillingIntervalMonthly,
			TrialDays: 14,
		},
		subscription.Plan{
			ID:       "pro",
			Name:     "Pro",
			Rank:     1,
			Price:    decimal.RequireFromString("30"),
			Currency: "USD",
			Interval: subscription.BillingIntervalMonthly,
			Features: map[subscription.Feature]bool{subscription.FeatureAnalytics: true},
		},
	))
	require.NoError(t, err)

	store := subscription.NewMemoryStore()
	auditStorage := audit.NewMemoryStorage()
	cache := entitlement.NewMemoryCache(100, time.Minute)
	svc := subscription.NewService(catalog, store,
		subscription.WithClock(func() time.Time { return now }),
		subscription.WithAuditLogger(audit.NewLogger(auditStorage)),
		subscription.WithInvalidator(entitlement.CacheInvalidator{Cache: cache}),
	)
	gate := entitlement.NewGate(svc, entitlement.WithCache(cache))

	return &testAPI{
		handler: billingapi.New(svc, gate, opts...),
		store:   store,
		svc:     svc,
		audit:   auditStorage,
	}
}

type call struct {
	method     string
	path       string
	body       string
	user       string
	tenant     uuid.UUID
	superadmin bool
	headers    map[string]string
}

func (a *testAPI) do(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if c.body != "" {
		body = strings.NewReader(c.body)
	}
	req := httptest.NewRequest(c.method, c.path, body)
	req.RemoteAddr = "203.0.113.7:51234"
	if c.user != "" {
		req.Header.Set(billingapi.HeaderUserID, c.user)
	}
	if c.tenant != uuid.Nil {
		req.Header.Set(billingapi.HeaderTenantID, c.tenant.String())
	}
	if c.superadmin {
		req.Header.Set(billingapi.HeaderSuperadmin, "true")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func TestListPlans(t *testing.T) {
	t.Parallel()
	a := newTestAPI(t)

	rec := a.do(t, call{method: http.MethodGet, path: "/plans"})

	require.Equal(t, http.StatusOK, rec.Code)
	plans := decode[[]subscription.Plan](t, rec)
	require.Len(t, plans, 2)
	assert.Equal(t, "basic", plans[0].ID)
	assert.NotEmpty(t, rec.Header().Get(billingapi.HeaderRequestID))
}

func TestSubscriptionLifecycle(t *testing.T) {
	t.Parallel()
	a := newTestAPI(t)
	tenant := uuid.New()
	as := func(c call) call {
		c.user, c.tenant = "user-1", tenant
		return c
	}

	rec := a.do(t, as(call{method: http.MethodPost, path: "/subscriptions", body: `{"plan_id":"basic"}`}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[subscription.CreateResult](t, rec)
	assert.Equal(t, subscription.StatusTrialing, created.Subscription.Status)

	rec = a.do(t, as(call{method: http.MethodGet, path: "/subscriptions/trial"}))
	require.Equal(t, http.StatusOK, rec.Code)
	trial := decode[subscription.TrialStatus](t, rec)
	assert.True(t, trial.IsTrial)
	assert.False(t, trial.TrialExpired)

	rec = a.do(t, as(call{method: http.MethodPost, path: "/subscriptions", body: `{"plan_id":"pro"}`}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.True(t, decode[subscription.CreateResult](t, rec).ConvertedTrial)

	rec = a.do(t, as(call{method: http.MethodGet, path: "/subscriptions/current"}))
	require.Equal(t, http.StatusOK, rec.Code)
	cur := decode[subscription.CurrentSubscription](t, rec)
	assert.Equal(t, "pro", cur.Plan.ID)
	assert.Equal(t, subscription.StatusActive, cur.Subscription.Status)

	rec = a.do(t, as(call{method: http.MethodPut, path: "/subscriptions", body: `{"plan_id":"basic"}`}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	change := decode[subscription.ChangeResult](t, rec)
	require.NotNil(t, change.Downgrade)
	assert.Equal(t, subscription.DowngradeMessage, change.Downgrade.Message)

	rec = a.do(t, as(call{method: http.MethodGet, path: "/subscriptions/validity"}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[subscription.Validity](t, rec).Valid)

	rec = a.do(t, as(call{method: http.MethodDelete, path: "/subscriptions?immediately=true"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, subscription.StatusCancelled, decode[subscription.Subscription](t, rec).Status)

	rec = a.do(t, as(call{method: http.MethodGet, path: "/subscriptions/history"}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]subscription.HistoryEntry](t, rec), 1)

	events := a.audit.Events()
	require.NotEmpty(t, events)
	assert.Equal(t, "user-1", events[0].ActorID)
	assert.Equal(t, "203.0.113.7", events[0].IP)
}

func TestErrorMapping(t *testing.T) {
	t.Parallel()
	a := newTestAPI(t)
	tenant := uuid.New()

	tests := []struct {
		name   string
		call   call
		status int
		code   string
	}{
		{"anonymous", call{method: http.MethodGet, path: "/subscriptions/current"}, http.StatusUnauthorized, "unauthorized"},
		{"no tenant", call{method: http.MethodGet, path: "/subscriptions/current", user: "u"}, http.StatusForbidden, "forbidden"},
		{"no subscription", call{method: http.MethodGet, path: "/subscriptions/current", user: "u", tenant: tenant}, http.StatusNotFound, "not_found"},
		{"unknown plan", call{method: http.MethodPost, path: "/subscriptions", body: `{"plan_id":"gold"}`, user: "u", tenant: tenant}, http.StatusNotFound, "not_found"},
		{"missing plan", call{method: http.MethodPost, path: "/subscriptions", body: `{}`, user: "u", tenant: tenant}, http.StatusBadRequest, "validation_failed"},
		{"malformed body", call{method: http.MethodPost, path: "/subscriptions", body: `{`, user: "u", tenant: tenant}, http.StatusBadRequest, "validation_failed"},
		{"bad cancel flag", call{method: http.MethodDelete, path: "/subscriptions?immediately=maybe", user: "u", tenant: tenant}, http.StatusBadRequest, "validation_failed"},
		{"bad tenant header", call{method: http.MethodGet, path: "/plans", user: "u", headers: map[string]string{billingapi.HeaderTenantID: "nope"}}, http.StatusBadRequest, "validation_failed"},
		{"admin as tenant user", call{method: http.MethodPost, path: "/admin/sweeps", user: "u", tenant: tenant}, http.StatusForbidden, "forbidden"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := a.do(t, tt.call)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decode[errorResponse](t, rec).Error.Code)
		})
	}
}

func TestAssignPlanWhileTrialing(t *testing.T) {
	t.Parallel()
	a := newTestAPI(t)
	tenant := uuid.New()

	_, err := a.svc.StartTrial(context.Background(), tenant, "basic", 24*time.Hour)
	require.NoError(t, err)

	rec := a.do(t, call{method: http.MethodPost, path: "/admin/assign-plan", body: `{"tenant_id":"` + tenant.String() + `","plan_id":"pro"}`, user: "root", superadmin: true})
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
}

func TestEntitlementCheck(t *testing.T) {
	t.Parallel()
	a := newTestAPI(t)
	tenant := uuid.New()

	_, err := a.svc.AssignPlanToTenant(context.Background(), tenant, "basic")
	require.NoError(t, err)

	type checkResponse struct {
		Allowed      bool                      `json:"allowed"`
		Reason       string                    `json:"reason"`
		Entitlements *entitlement.Entitlements `json:"entitlements"`
	}

	rec := a.do(t, call{method: http.MethodGet, path: "/entitlements/check?feature=analytics", user: "u", tenant: tenant})
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[checkResponse](t, rec)
	assert.False(t, res.Allowed)
	assert.Equal(t, entitlement.ErrFeatureRequired.Error(), res.Reason)
	require.NotNil(t, res.Entitlements)
	assert.Equal(t, "basic", res.Entitlements.PlanID)

	rec = a.do(t, call{method: http.MethodGet, path: "/entitlements/check?plan_rank=0", user: "u", tenant: tenant})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[checkResponse](t, rec).Allowed)

	rec = a.do(t, call{method: http.MethodGet, path: "/entitlements/check?plan_rank=5", user: "root", superadmin: true})
	require.Equal(t, http.StatusOK, rec.Code)
	res = decode[checkResponse](t, rec)
	assert.True(t, res.Allowed)
	assert.Nil(t, res.Entitlements)

	rec = a.do(t, call{method: http.MethodGet, path: "/entitlements/check?plan_rank=high", user: "u", tenant: tenant})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, call{method: http.MethodGet, path: "/entitlements/check"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminRoutes(t *testing.T) {
	t.Parallel()
	runner := &fakeRunner{runs: map[uuid.UUID]scheduler.Run{}}
	a := newTestAPI(t, billingapi.WithTaskRunner(runner, "scheduled_changes"))
	tenant := uuid.New()
	admin := func(c call) call {
		c.user, c.superadmin = "root", true
		return c
	}

	rec := a.do(t, admin(call{method: http.MethodPost, path: "/admin/tenants/" + tenant.String() + "/trial", body: `{"plan_id":"basic","duration_hours":48}`}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	trial := decode[subscription.Subscription](t, rec)
	assert.Equal(t, subscription.StatusTrialing, trial.Status)

	rec = a.do(t, admin(call{method: http.MethodPost, path: "/admin/tenants/" + tenant.String() + "/expire-trial"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, subscription.StatusExpired, decode[subscription.Subscription](t, rec).Status)

	rec = a.do(t, admin(call{method: http.MethodPost, path: "/admin/assign-plan", body: `{"tenant_id":"` + tenant.String() + `","plan_id":"pro"}`}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assigned := decode[subscription.Subscription](t, rec)
	assert.Equal(t, "pro", assigned.PlanID)

	rec = a.do(t, admin(call{method: http.MethodPost, path: "/admin/tenants/" + tenant.String() + "/force-plan", body: `{"plan_id":"basic"}`}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "basic", decode[subscription.Subscription](t, rec).PlanID)

	rec = a.do(t, admin(call{method: http.MethodGet, path: "/admin/subscriptions/" + assigned.ID.String()}))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, admin(call{method: http.MethodDelete, path: "/admin/subscriptions/" + assigned.ID.String() + "/scheduled-change"}))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(t, admin(call{method: http.MethodGet, path: "/admin/subscriptions/not-a-uuid"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, admin(call{method: http.MethodPost, path: "/admin/sweeps"}))
	require.Equal(t, http.StatusAccepted, rec.Code)
	run := decode[scheduler.Run](t, rec)
	assert.Equal(t, "scheduled_changes", run.Task)

	rec = a.do(t, admin(call{method: http.MethodGet, path: "/admin/runs/" + run.ID.String()}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, run.ID, decode[scheduler.Run](t, rec).ID)

	rec = a.do(t, admin(call{method: http.MethodGet, path: "/admin/runs/" + uuid.NewString()}))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminRoutes_WithoutRunner(t *testing.T) {
	t.Parallel()
	a := newTestAPI(t)

	rec := a.do(t, call{method: http.MethodPost, path: "/admin/sweeps", user: "root", superadmin: true})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPaddleWebhook(t *testing.T) {
	t.Parallel()
	tenant := uuid.New()

	t.Run("activation creates a subscription", func(t *testing.T) {
		t.Parallel()
		a := newTestAPI(t, billingapi.WithPaddleWebhooks(fakeWebhooks{event: &subscription.GatewayEvent{
			ID:         "evt_1",
			Type:       subscription.GatewaySubscriptionActivated,
			TenantID:   tenant,
			PlanID:     "pro",
			OccurredAt: now,
		}}))

		rec := a.do(t, call{method: http.MethodPost, path: "/webhooks/paddle", body: `{}`})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "evt_1", decode[map[string]string](t, rec)["event_id"])

		cur, err := a.svc.CurrentSubscription(context.Background(), tenant)
		require.NoError(t, err)
		assert.Equal(t, "pro", cur.Plan.ID)
	})

	t.Run("bad signature", func(t *testing.T) {
		t.Parallel()
		a := newTestAPI(t, billingapi.WithPaddleWebhooks(fakeWebhooks{err: subscription.ErrWebhookVerificationFailed}))

		rec := a.do(t, call{method: http.MethodPost, path: "/webhooks/paddle", body: `{}`})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("not mounted without gateway", func(t *testing.T) {
		t.Parallel()
		a := newTestAPI(t)

		rec := a.do(t, call{method: http.MethodPost, path: "/webhooks/paddle", body: `{}`})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	subscription.NewMetrics(reg)
	a := newTestAPI(t,
		billingapi.WithMetrics(reg),
		billingapi.WithHealthHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})),
	)

	rec := a.do(t, call{method: http.MethodGet, path: "/healthz"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, call{method: http.MethodGet, path: "/metrics"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestID(t *testing.T) {
	t.Parallel()
	a := newTestAPI(t)

	rec := a.do(t, call{method: http.MethodGet, path: "/plans", headers: map[string]string{billingapi.HeaderRequestID: "req-123"}})
	assert.Equal(t, "req-123", rec.Header().Get(billingapi.HeaderRequestID))

	rec = a.do(t, call{method: http.MethodGet, path: "/plans", headers: map[string]string{billingapi.HeaderRequestID: "bad id!"}})
	assert.NotEqual(t, "bad id!", rec.Header().Get(billingapi.HeaderRequestID))
	assert.NotEmpty(t, rec.Header().Get(billingapi.HeaderRequestID))
}
