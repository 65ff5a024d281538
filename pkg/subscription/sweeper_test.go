package subscription_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/audit"
	"github.com/dmitrymomot/billingkit/pkg/subscription"
)

func scheduleDowngrade(t *testing.T, svc subscription.Service, tenantID uuid.UUID, planID string) {
	t.Helper()
	_, err := svc.UpdateSubscription(context.Background(), tenantID, subscription.ChangeRequest{PlanID: planID})
	require.NoError(t, err)
}

func TestSweeper_RunSweep(t *testing.T) {
	t.Parallel()

	t.Run("promotes due changes once", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, midPeriod)
		due, notDue := uuid.New(), uuid.New()
		dueSub := seedActive(t, f.store, due, "pro")
		scheduleDowngrade(t, f.svc, due, "basic")

		seedActive(t, f.store, notDue, "pro")
		later := periodEnd.AddDate(0, 0, 10)
		_, err := f.svc.UpdateSubscription(context.Background(), notDue,
			subscription.ChangeRequest{PlanID: "basic", EffectiveDate: &later})
		require.NoError(t, err)

		auditLog := audit.NewMemoryStorage()
		inv := &recordingInvalidator{}
		sw := subscription.NewSweeper(f.store,
			subscription.WithSweeperAuditLogger(audit.NewLogger(auditLog)),
			subscription.WithSweeperInvalidator(inv),
		)

		res, err := sw.RunSweep(context.Background(), periodEnd)
		require.NoError(t, err)
		assert.Equal(t, subscription.SweepResult{Promoted: 1}, res)

		stored, err := f.store.Get(context.Background(), dueSub.ID)
		require.NoError(t, err)
		assert.Equal(t, "basic", stored.PlanID)
		assert.Nil(t, stored.ScheduledPlanID)
		assert.Nil(t, stored.ScheduledEffectiveDate)
		assert.Equal(t, periodEnd, stored.UpdatedAt)

		assert.Equal(t, []uuid.UUID{due}, inv.Tenants())
		events := auditLog.Events()
		require.Len(t, events, 1)
		assert.Equal(t, subscription.ActionScheduledChangeApplied, events[0].Action)
		assert.Empty(t, events[0].ActorID)

		again, err := sw.RunSweep(context.Background(), periodEnd)
		require.NoError(t, err)
		assert.Equal(t, subscription.SweepResult{}, again)

		pending, err := f.svc.CurrentSubscription(context.Background(), notDue)
		require.NoError(t, err)
		assert.Equal(t, "pro", pending.Plan.ID)
	})

	t.Run("cancelled context skips remaining rows", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, midPeriod)
		for range 3 {
			tenantID := uuid.New()
			seedActive(t, f.store, tenantID, "pro")
			scheduleDowngrade(t, f.svc, tenantID, "basic")
		}

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		res, err := subscription.NewSweeper(f.store).RunSweep(ctx, periodEnd)
		require.NoError(t, err)
		assert.Equal(t, subscription.SweepResult{Skipped: 3}, res)

		due, err := f.store.ListDueScheduledChanges(context.Background(), periodEnd)
		require.NoError(t, err)
		assert.Len(t, due, 3)
	})

	t.Run("failed rows are counted and left for the next sweep", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, midPeriod)
		broken := uuid.New()
		brokenSub := seedActive(t, f.store, broken, "pro")
		scheduleDowngrade(t, f.svc, broken, "basic")
		healthy := uuid.New()
		seedActive(t, f.store, healthy, "pro")
		scheduleDowngrade(t, f.svc, healthy, "starter")

		store := &failingApplyStore{MemoryStore: f.store, failID: brokenSub.ID}
		res, err := subscription.NewSweeper(store).RunSweep(context.Background(), periodEnd)
		require.NoError(t, err)
		assert.Equal(t, subscription.SweepResult{Promoted: 1, Failed: 1}, res)

		stored, err := f.store.Get(context.Background(), brokenSub.ID)
		require.NoError(t, err)
		assert.Equal(t, "pro", stored.PlanID)
		require.NotNil(t, stored.ScheduledPlanID)
	})

	t.Run("stale schedule is skipped", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, midPeriod)
		tenantID := uuid.New()
		sub := seedActive(t, f.store, tenantID, "pro")
		scheduleDowngrade(t, f.svc, tenantID, "basic")

		applied, err := f.store.ApplyScheduledChange(context.Background(), sub.ID, "starter", periodEnd, periodEnd)
		require.NoError(t, err)
		assert.False(t, applied)

		applied, err = f.store.ApplyScheduledChange(context.Background(), sub.ID, "basic", periodEnd.Add(time.Hour), periodEnd)
		require.NoError(t, err)
		assert.False(t, applied)
	})
}

// failingApplyStore fails ApplyScheduledChange for one subscription.
type failingApplyStore struct {
	*subscription.MemoryStore
	failID uuid.UUID
}

func (s *failingApplyStore) ApplyScheduledChange(ctx context.Context, id uuid.UUID, planID string, effective, now time.Time) (bool, error) {
	if id == s.failID {
		return false, errors.New("connection reset")
	}
	return s.MemoryStore.ApplyScheduledChange(ctx, id, planID, effective, now)
}

func TestSweeper_ExpireTrials(t *testing.T) {
	t.Parallel()

	store := subscription.NewMemoryStore()
	ended := seedTrial(t, store, uuid.New(), midPeriod.Add(-48*time.Hour))
	inGrace := seedTrial(t, store, uuid.New(), midPeriod.Add(-time.Hour))
	running := seedTrial(t, store, uuid.New(), midPeriod.Add(time.Hour))

	sw := subscription.NewSweeper(store, subscription.WithTrialGracePeriod(24*time.Hour))
	n, err := sw.ExpireTrials(context.Background(), midPeriod)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	for id, want := range map[uuid.UUID]subscription.SubscriptionStatus{
		ended.ID:   subscription.StatusExpired,
		inGrace.ID: subscription.StatusTrialing,
		running.ID: subscription.StatusTrialing,
	} {
		stored, err := store.Get(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, want, stored.Status)
	}

	n, err = sw.ExpireTrials(context.Background(), midPeriod)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweeper_Tasks(t *testing.T) {
	t.Parallel()

	f := newFixture(t, midPeriod)
	tenantID := uuid.New()
	seedActive(t, f.store, tenantID, "pro")
	scheduleDowngrade(t, f.svc, tenantID, "basic")

	sw := subscription.NewSweeper(f.store, subscription.WithSweeperClock(fixedClock(periodEnd.Add(time.Minute))))
	require.NoError(t, sw.SweepTask(context.Background()))
	require.NoError(t, sw.ExpireTrialsTask(context.Background()))

	current, err := f.svc.CurrentSubscription(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Equal(t, "basic", current.Plan.ID)
}

func TestNewSweeper_PanicsWithoutStore(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { subscription.NewSweeper(nil) })
}
