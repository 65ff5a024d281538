// Package subscription implements the per-tenant subscription lifecycle: plan
// catalog, plan changes with proration, scheduled downgrades, trials and the
// sweep that promotes due changes.
//
// # Architecture
//
//   - Catalog: immutable, rank-ordered plans loaded from a PlansListSource
//     (in-memory or YAML). The rank table is explicit; unknown plans are errors.
//   - Store: persistence with a compare-and-swap on Subscription.Version and a
//     single current (active or trialing) row per tenant. MemoryStore ships here,
//     the Postgres implementation lives in the pgstore subpackage.
//   - Service: lifecycle and admin operations.
//   - Sweeper: batch promotion of due scheduled changes and the trial expiry flip.
//   - PaddleGateway: verified Paddle webhooks normalized to GatewayEvent.
//
// # Plan changes
//
// UpdateSubscription classifies the move with Catalog.IsUpgrade (strictly higher
// rank). An upgrade swaps the plan right away and, when the prorated difference
// is positive, stores an open invoice in the same write:
//
//	daysRemaining = ceil((periodEnd - now) / 24h)
//	totalDays     = ceil((periodEnd - periodStart) / 24h)
//	ratio         = clamp(daysRemaining / totalDays, 0, 1)
//	netCharge     = round2(max(0, newPrice*ratio - oldPrice*ratio))
//
// A downgrade, or a move to a plan of the same rank, only records
// ScheduledPlanID and ScheduledEffectiveDate. Sweeper.RunSweep applies it later.
//
// # Usage
//
//	catalog, err := subscription.NewCatalog(ctx, subscription.NewYAMLSource("plans.yaml"))
//	if err != nil {
//		return err
//	}
//	svc := subscription.NewService(catalog, store,
//		subscription.WithLogger(log),
//		subscription.WithAuditLogger(auditLog),
//		subscription.WithInvalidator(gate),
//	)
//
//	res, err := svc.UpdateSubscription(ctx, tenantID, subscription.ChangeRequest{PlanID: "basic"})
//	switch {
//	case subscription.IsNotFound(err):
//		// no active subscription or unknown plan
//	case err != nil:
//		return err
//	case res.IsUpgrade():
//		// res.Upgrade.Invoice is nil when nothing is owed
//	default:
//		// res.Downgrade.EffectiveDate
//	}
//
// # Errors
//
// Every error returned by the package unwraps to one of ErrNotFound, ErrForbidden,
// ErrValidation, ErrConflict or ErrUnauthorized, or to ErrStorage for backend
// failures. Specific errors such as ErrPlanNotFound can be matched with errors.Is
// as well.
//
// # Administrative overrides
//
// ForceSubscriptionUpdate and AssignPlanToTenant never prorate or invoice. They
// exist for support staff correcting state, not for billing.
package subscription
