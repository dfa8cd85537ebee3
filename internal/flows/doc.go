// Package flows contains pure-function orchestrators for the engine's
// verification paths.
//
// Each flow (RunVerifyRefresh, RunValidateAccess, RunLogoutRefresh, RunVerifyOTP) accepts a typed dependency struct
// and returns a result carrying a failure kind. The engine maps failure kinds
// to public errors, audit events and metrics.
//
// # Architecture boundaries
//
// Flows coordinate the JWT manager, revocation lookups, the OTP store and the
// lockout. They do not own any of these resources.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goSession (to avoid import cycles).
//   - Perform I/O directly. All I/O goes through dependency interfaces.
package flows
