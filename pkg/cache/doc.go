// Package cache provides a generic, thread-safe LRU cache with per-entry TTL.
//
// It backs short-lived per-tenant snapshots such as entitlement lookups: the
// capacity bounds memory, the TTL bounds staleness, and Delete lets writers
// invalidate an entry the moment the underlying data changes.
//
//	snapshots := cache.New[uuid.UUID, Entitlements](10_000, 30*time.Second)
//	snapshots.Set(tenantID, ent)
//	if ent, ok := snapshots.Get(tenantID); ok {
//		// fresh enough
//	}
//	snapshots.Delete(tenantID)
//
// Get, Set and Delete are O(1). Expired entries are dropped lazily when read
// or when they fall off the back of the LRU list.
package cache
