// Package cache abstracts the fast, volatile tier used for revocation entries,
// user watermarks and OTP lockouts.
//
// [RedisCache] is the distributed implementation. [MemoryCache] is the
// per-process fallback used only when no Redis client is configured.
// [Bounded] attaches the configured per-call timeout to any implementation.
package cache
