// Package middleware adapts the engine to net/http handlers.
//
// [RequireAccess] validates bearer access tokens and exposes the claims
// through [ClaimsFromContext]. [CaptureClient] records the caller's IP and
// User-Agent so refresh verification can compare device fingerprints.
//
// Routing stays with the caller; these are plain func(http.Handler) http.Handler
// wrappers usable with any mux.
package middleware
