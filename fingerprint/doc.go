// Package fingerprint derives the device-binding value embedded in refresh
// tokens from a client's network prefix and user-agent.
//
// Fingerprints are never stored. They are recomputed at issuance and at
// verification and compared in constant time. Only the leading address octets
// (or IPv6 groups) participate, so a client roaming inside its provider's
// network keeps the same fingerprint.
//
// # What this package must NOT do
//
//   - Perform I/O or hold per-client state.
//   - Decide what happens on a mismatch. Callers own that policy.
package fingerprint
