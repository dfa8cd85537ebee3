// Package internal contains helpers that are private to goSession: token
// identifier generation, OTP code generation and constant-time comparison.
//
// # Sub-packages
//
//   - appconfig: YAML/env loader for the operator CLI
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - cache: cache tier abstraction over Redis or an in-process map
//   - flows: pure-function orchestrators for refresh verification and OTP
//   - limiters: OTP lockout with cache, durable and layered backends
//   - logx: slog construction and context helpers
//   - redact: masking of emails and tokens for logs and audit metadata
//   - revocation: ordered tier chain answering "is this key revoked"
//
// # What this package must NOT do
//
//   - Be imported by any package outside the goSession module.
//   - Export types that appear in the public goSession API.
package internal
