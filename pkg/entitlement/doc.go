// Package entitlement gates access to tenant features by subscription state.
//
// A Gate resolves an Entitlements snapshot per tenant from a SubscriptionReader
// (normally subscription.Service) and caches it in a Cache: MemoryCache for a
// single process or RedisCache when several replicas serve the same tenants.
// Register the gate, or a CacheInvalidator over the same cache, with
// subscription.WithInvalidator so every lifecycle change drops the tenant's
// snapshot.
//
// CanActivate applies the base rules. Superadmins always pass. Everyone else needs
// a tenant, and a tenant whose newest trial has ended and was flipped to expired
// is refused with ErrTrialExpired. A trial past its end date that is still
// trialing keeps access until the flip happens.
//
// Require adds plan and feature checks:
//
//	r.With(gate.Middleware(
//		entitlement.RequiredPlan{Rank: 2},
//		entitlement.RequiredFeature{Feature: subscription.FeatureAnalytics},
//	)).Get("/reports", reportsHandler)
//
// Refusals carry the subscription error kinds (ErrUnauthorized, ErrForbidden), so
// the same error mapping serves both packages.
package entitlement
