// Package limiters provides the OTP lockout behind a single [Lockout]
// interface.
//
// # Implementations
//
//   - [CacheLockout]: lock marker in the cache tier, TTL equal to the lock.
//   - [DurableLockout]: the locked_until column of OTP records.
//   - [LayeredLockout]: cache first, durable on miss or error; writes both.
//
// # Architecture boundaries
//
// Limiters count and remember. Attempt thresholds and lock durations are
// decided by the OTP flow, which only sees the interface.
//
// # What this package must NOT do
//
//   - Import goSession or any sibling internal package except internal/cache.
//   - Expose the unlock instant to callers beyond a boolean.
package limiters
