// Package license decides whether the installed license may be used.
//
// # Components
//
//   - HTTPClient: one GET per check against the licensing authority
//   - FileStore: the single persisted Record, replaced atomically
//   - Policy: classifies authority outcomes into three tiers
//   - Manager: the orchestrator callers talk to
//
// # Status tiers
//
// Authority statuses are split into confirmed-invalid (for example
// "expired", "suspended"), ambiguous (for example "pending", "inactive") and
// affirmed. A confirmed-invalid status discards the cached record at once.
// Ambiguous statuses and transport failures are tolerated until the
// consecutive failure count reaches the threshold, with the verdict marked
// Degraded and Cached so UIs can warn without blocking. Both tier lists are
// configuration.
//
// # Checks
//
//	out := manager.CheckCached(ctx)      // cheap, no network on a warm cache
//	out = manager.Revalidate(ctx, key)  // single-flight authority check
//	manager.ForceRevalidate(ctx)        // bypass the interval once
//	manager.Clear(ctx)                  // operator deactivation
//
// A local expiry check always runs before the authority is contacted.
//
// # Lifecycle
//
// Start loads the persisted record and begins the periodic background
// re-check; Stop ends it. The Manager holds no package-level state, so tests
// construct as many as they need.
package license
