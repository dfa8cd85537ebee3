package internaldefs

import (
	goSession "github.com/MrEthical07/goSession"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram for exporters.
type HistogramDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: goSession.MetricAccessIssued, Name: "gosession_access_issued_total", Help: "Access tokens issued."},
	{ID: goSession.MetricRefreshIssued, Name: "gosession_refresh_issued_total", Help: "Refresh tokens issued."},
	{ID: goSession.MetricRefreshVerified, Name: "gosession_refresh_verified_total", Help: "Refresh tokens that passed verification."},
	{ID: goSession.MetricRefreshRejected, Name: "gosession_refresh_rejected_total", Help: "Refresh tokens rejected for any reason."},
	{ID: goSession.MetricRefreshFingerprintMismatch, Name: "gosession_refresh_fingerprint_mismatch_total", Help: "Refresh tokens presented from a different device."},
	{ID: goSession.MetricRefreshSignatureInvalid, Name: "gosession_refresh_signature_invalid_total", Help: "Tokens with a tampered or foreign signature."},
	{ID: goSession.MetricAccessValidated, Name: "gosession_access_validated_total", Help: "Access tokens that passed validation."},
	{ID: goSession.MetricAccessRejected, Name: "gosession_access_rejected_total", Help: "Access tokens rejected."},
	{ID: goSession.MetricRevoked, Name: "gosession_revoked_total", Help: "Token identifiers revoked."},
	{ID: goSession.MetricRevokeFailure, Name: "gosession_revoke_failure_total", Help: "Revocations that failed in every tier."},
	{ID: goSession.MetricRevocationHitCache, Name: "gosession_revocation_hit_cache_total", Help: "Revocation lookups answered by the cache tier."},
	{ID: goSession.MetricRevocationHitMemory, Name: "gosession_revocation_hit_memory_total", Help: "Revocation lookups answered by the in-process tier."},
	{ID: goSession.MetricRevocationHitDurable, Name: "gosession_revocation_hit_durable_total", Help: "Revocation lookups answered by the durable tier."},
	{ID: goSession.MetricRevocationFailClosed, Name: "gosession_revocation_fail_closed_total", Help: "Indeterminate lookups treated as revoked."},
	{ID: goSession.MetricRevocationFailOpen, Name: "gosession_revocation_fail_open_total", Help: "Indeterminate lookups treated as not revoked."},
	{ID: goSession.MetricUserInvalidated, Name: "gosession_user_invalidated_total", Help: "Invalidate-all operations."},
	{ID: goSession.MetricOTPCreated, Name: "gosession_otp_created_total", Help: "OTP codes created."},
	{ID: goSession.MetricOTPDeliveryFailed, Name: "gosession_otp_delivery_failed_total", Help: "OTP codes the notifier failed to deliver."},
	{ID: goSession.MetricOTPResendThrottled, Name: "gosession_otp_resend_throttled_total", Help: "OTP requests inside the resend cooldown."},
	{ID: goSession.MetricOTPVerified, Name: "gosession_otp_verified_total", Help: "OTP codes verified."},
	{ID: goSession.MetricOTPFailure, Name: "gosession_otp_failure_total", Help: "Failed OTP verifications."},
	{ID: goSession.MetricOTPLockoutTriggered, Name: "gosession_otp_lockout_triggered_total", Help: "Identities moved into OTP lockout."},
	{ID: goSession.MetricOTPLockedRejected, Name: "gosession_otp_locked_rejected_total", Help: "OTP attempts rejected during lockout."},
	{ID: goSession.MetricPurgedRevocations, Name: "gosession_purged_revocations_total", Help: "Expired revocation rows purged."},
	{ID: goSession.MetricPurgedOTPs, Name: "gosession_purged_otps_total", Help: "OTP rows purged past retention."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goSession.MetricVerifyLatency, Name: "gosession_verify_latency_seconds", Help: "Refresh and access verification latency."},
	{ID: goSession.MetricRevocationLookupLatency, Name: "gosession_revocation_lookup_latency_seconds", Help: "Revocation chain lookup latency."},
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = "gosession_audit_dropped_total"

// AuditDroppedHelp describes AuditDroppedName.
const AuditDroppedHelp = "Audit events dropped on a full dispatcher buffer."

// UpperBounds are the finite bucket bounds in seconds. The engine keeps one
// extra overflow bucket.
var UpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// NormalizeBuckets pads or truncates raw to the engine's bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
