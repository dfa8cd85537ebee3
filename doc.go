// Package goSession is a credential and session lifecycle engine: JWT access
// and refresh tokens, device-binding fingerprints, layered revocation and
// emailed one-time passcodes with brute-force lockout.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build]. Redis clients, durable stores, notifiers and loggers are
// injected; the engine never reaches for globals.
//
// # Architecture boundaries
//
// goSession is the public surface. It exposes [Engine], [Builder], [Config]
// and value types (TokenPair, OTPResult, MetricsSnapshot). Flow orchestration,
// the revocation chain, cache adapters, lockouts and audit dispatch live under
// internal/ and are never exported.
//
// # Failure policy
//
// [ModeStrict] consults the durable store on every unresolved revocation
// lookup and fails closed when no tier can answer. [ModePermissive] trusts a
// cache miss and fails open. Every error can be classified with [KindOf].
//
// # What this package must NOT do
//
//   - Return the cause of a refresh rejection to the caller.
//   - Store plaintext OTP codes or log tokens and codes.
//   - Perform I/O during issuance.
package goSession
