// Package revocation implements the tiered "is this key revoked" lookup as a
// chain of responsibility.
//
// Tier order is fixed by the caller at construction: the Redis cache, then the
// in-process memory fallback (present only without Redis), then the durable
// store. A [Decision] records which tiers were consulted and whether the
// outcome was resolved, failed open or failed closed. That makes the
// availability/security trade-off one decision point.
//
// # What this package must NOT do
//
//   - Write revocations. The engine owns writes to every tier.
//   - Retry a failed tier.
package revocation
