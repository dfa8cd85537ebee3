package goSession

import (
	"context"
	"errors"
)

const (
	auditEventSessionIssued      = "session_issued"
	auditEventRefreshVerified    = "refresh_verified"
	auditEventRefreshRejected    = "refresh_rejected"
	auditEventAccessRejected     = "access_rejected"
	auditEventTokenRevoked       = "token_revoked"
	auditEventUserInvalidated    = "user_invalidated"
	auditEventRevocationDegraded = "revocation_degraded"
	auditEventOTPCreated         = "otp_created"
	auditEventOTPDeliveryFailed  = "otp_delivery_failed"
	auditEventOTPVerified        = "otp_verified"
	auditEventOTPFailure         = "otp_failure"
	auditEventOTPLockout         = "otp_lockout"
	auditEventPurge              = "purge"
)

// AuditErrorCode is the stable failure reason recorded in AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrInvalidToken      AuditErrorCode = "invalid_token"
	auditErrRefreshRejected   AuditErrorCode = "refresh_rejected"
	auditErrSecurityViolation AuditErrorCode = "security_violation"
	auditErrUnavailable       AuditErrorCode = "backend_unavailable"
	auditErrInvalidArgument   AuditErrorCode = "invalid_argument"
	auditErrOTPNoPending      AuditErrorCode = "otp_no_pending"
	auditErrOTPExpired        AuditErrorCode = "otp_expired"
	auditErrOTPInvalid        AuditErrorCode = "otp_invalid"
	auditErrOTPLocked         AuditErrorCode = "otp_locked"
	auditErrOTPResendCooldown AuditErrorCode = "otp_resend_cooldown"
	auditErrInternal          AuditErrorCode = "internal_error"
)

// emitAudit hands one event to the dispatcher. metadataBuilder runs only when
// auditing is enabled.
func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	security bool,
	userID string,
	jti string,
	code string,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	e.audit.Emit(ctx, AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		JTI:       jti,
		IP:        clientValue(ctx, keyClientIP),
		Success:   success,
		Security:  security,
		Error:     code,
		Metadata:  metadata,
	})
}

func auditErrorCode(err error) AuditErrorCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSecurityViolation):
		return auditErrSecurityViolation
	case errors.Is(err, ErrBackendUnavailable), errors.Is(err, ErrOTPUnavailable):
		return auditErrUnavailable
	case errors.Is(err, ErrTokenInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrRefreshRejected):
		return auditErrRefreshRejected
	case errors.Is(err, ErrInvalidArgument):
		return auditErrInvalidArgument
	case errors.Is(err, ErrOTPNoPending):
		return auditErrOTPNoPending
	case errors.Is(err, ErrOTPExpired):
		return auditErrOTPExpired
	case errors.Is(err, ErrOTPInvalid):
		return auditErrOTPInvalid
	case errors.Is(err, ErrOTPLocked):
		return auditErrOTPLocked
	case errors.Is(err, ErrOTPResendCooldown):
		return auditErrOTPResendCooldown
	default:
		return auditErrInternal
	}
}
