package goSession

import "errors"

var (
	// ErrConfiguration wraps every startup configuration failure. The process
	// must not start when Build returns it.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrEngineNotReady is returned when a nil or half-built Engine is used.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrInvalidArgument is returned for empty identifiers and similar caller mistakes.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrTokenInvalid is returned by ValidateAccess for any rejected access token.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrRefreshRejected is the single error VerifyRefresh returns for every
	// rejection cause. The cause is audited, never returned.
	ErrRefreshRejected = errors.New("refresh token rejected")
	// ErrSecurityViolation wraps the logged cause of a fingerprint mismatch or
	// tampered signature. Callers still only see ErrRefreshRejected.
	ErrSecurityViolation = errors.New("security violation")
	// ErrBackendUnavailable is returned when no storage tier could answer and
	// policy requires a definite answer.
	ErrBackendUnavailable = errors.New("revocation backend unavailable")

	// ErrOTPNoPending is returned when the email has no active code. It is
	// also returned for a code that was already used or superseded.
	ErrOTPNoPending = errors.New("no pending verification")
	// ErrOTPExpired is returned when the active code is past its expiry.
	ErrOTPExpired = errors.New("verification code expired")
	// ErrOTPInvalid is returned for a wrong code with attempts remaining.
	ErrOTPInvalid = errors.New("invalid verification code")
	// ErrOTPLocked is returned while the email is locked out. It never carries
	// the unlock time.
	ErrOTPLocked = errors.New("too many attempts, try again later")
	// ErrOTPResendCooldown is returned when a new code is requested too soon.
	ErrOTPResendCooldown = errors.New("verification code requested too recently")
	// ErrOTPUnavailable is returned when the OTP store or lockout backend fails.
	ErrOTPUnavailable = errors.New("verification backend unavailable")
)

// ErrorKind groups engine errors by how callers should react.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// KindConfiguration is fatal at startup and never retried.
	KindConfiguration
	// KindValidation always rejects and is never retried.
	KindValidation
	// KindExternalService means a storage tier could not answer.
	KindExternalService
	// KindSecurityViolation is rejected and logged as a security event.
	KindSecurityViolation
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindValidation:
		return "validation"
	case KindExternalService:
		return "external_service"
	case KindSecurityViolation:
		return "security_violation"
	default:
		return "unknown"
	}
}

// KindOf classifies err. Nil and foreign errors are KindUnknown.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrSecurityViolation), errors.Is(err, ErrOTPLocked):
		return KindSecurityViolation
	case errors.Is(err, ErrBackendUnavailable), errors.Is(err, ErrOTPUnavailable):
		return KindExternalService
	case errors.Is(err, ErrTokenInvalid),
		errors.Is(err, ErrRefreshRejected),
		errors.Is(err, ErrInvalidArgument),
		errors.Is(err, ErrOTPNoPending),
		errors.Is(err, ErrOTPExpired),
		errors.Is(err, ErrOTPInvalid),
		errors.Is(err, ErrOTPResendCooldown):
		return KindValidation
	default:
		return KindUnknown
	}
}
