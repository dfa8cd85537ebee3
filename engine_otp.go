package goSession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MrEthical07/goSession/internal"
	"github.com/MrEthical07/goSession/internal/flows"
	"github.com/MrEthical07/goSession/internal/redact"
	"github.com/MrEthical07/goSession/record"
	"github.com/google/uuid"
)

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", fmt.Errorf("%w: empty email", ErrInvalidArgument)
	}
	return email, nil
}

func (e *Engine) otpHash(email, code string) []byte {
	return internal.KeyedHash(e.otpKey, email, code)
}

// CreateOTP supersedes any pending code for email and stores a fresh one.
// Only the keyed hash is persisted; the plaintext is returned once. An
// existing lockout is left in place.
func (e *Engine) CreateOTP(ctx context.Context, email string) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return "", err
	}

	code, err := internal.NewOTP(e.config.OTP.Digits)
	if err != nil {
		return "", err
	}
	now := e.now()
	rec := record.OTP{
		ID:          uuid.New(),
		Email:       email,
		CodeHash:    e.otpHash(email, code),
		MaxAttempts: e.config.OTP.MaxAttempts,
		CreatedAt:   now.UTC(),
		ExpiresAt:   now.Add(e.config.OTP.TTL).UTC(),
	}
	if err := e.durable.ReplaceActiveOTP(ctx, rec); err != nil {
		e.log(ctx).Error("otp create failed",
			slog.String("email", redact.Email(email)),
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("%w: %v", ErrOTPUnavailable, err)
	}

	e.metricInc(MetricOTPCreated)
	e.emitAudit(ctx, auditEventOTPCreated, true, false, "", "", "", func() map[string]string {
		return map[string]string{"email": redact.Email(email)}
	})
	return code, nil
}

// RequestOTP enforces the resend cooldown, creates a code and hands it to
// the Notifier. A delivery failure is logged and counted but not returned.
func (e *Engine) RequestOTP(ctx context.Context, email string) error {
	ok, err := e.CanResendOTP(ctx, email)
	if err != nil {
		return err
	}
	if !ok {
		e.metricInc(MetricOTPResendThrottled)
		return ErrOTPResendCooldown
	}

	code, err := e.CreateOTP(ctx, email)
	if err != nil {
		return err
	}
	email, _ = normalizeEmail(email)

	expiryMinutes := int(e.config.OTP.TTL.Minutes())
	if e.notifier == nil || !e.notifier.SendOTPCode(ctx, email, code, expiryMinutes) {
		e.metricInc(MetricOTPDeliveryFailed)
		e.log(ctx).Warn("otp delivery failed", slog.String("email", redact.Email(email)))
		e.emitAudit(ctx, auditEventOTPDeliveryFailed, false, false, "", "", "", func() map[string]string {
			return map[string]string{"email": redact.Email(email)}
		})
	}
	return nil
}

// CanResendOTP reports whether the cooldown since the latest code for email
// has elapsed. An email with no codes can always request one.
func (e *Engine) CanResendOTP(ctx context.Context, email string) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return false, err
	}

	latest, err := e.durable.LatestOTPCreatedAt(ctx, email)
	if errors.Is(err, record.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrOTPUnavailable, err)
	}
	return !e.now().Before(latest.Add(e.config.OTP.ResendCooldown)), nil
}

// VerifyOTP checks candidate against the pending code for email. A locked
// email is rejected before any record is read. A wrong code returns
// ErrOTPInvalid with the attempts left; the attempt that exhausts them locks
// the email and returns ErrOTPLocked, which never carries the unlock time.
func (e *Engine) VerifyOTP(ctx context.Context, email, candidate string) (OTPResult, error) {
	if err := e.ready(); err != nil {
		return OTPResult{}, err
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return OTPResult{}, err
	}

	res := flows.RunVerifyOTP(ctx, email, strings.TrimSpace(candidate), e.flows.OTP)
	if res.Failure == flows.OTPFailureNone {
		e.metricInc(MetricOTPVerified)
		e.emitAudit(ctx, auditEventOTPVerified, true, false, "", "", "", func() map[string]string {
			return map[string]string{"email": redact.Email(email), "record": redact.ID(res.RecordID)}
		})
		return OTPResult{Verified: true, AttemptsRemaining: res.AttemptsRemaining}, nil
	}

	e.metricInc(MetricOTPFailure)
	err = e.otpError(ctx, email, res)
	e.emitAudit(ctx, auditEventOTPFailure, false, false, "", "", string(auditErrorCode(err)), func() map[string]string {
		return map[string]string{"email": redact.Email(email), "cause": res.Failure.String()}
	})
	if errors.Is(err, ErrOTPInvalid) {
		return OTPResult{AttemptsRemaining: res.AttemptsRemaining}, err
	}
	return OTPResult{}, err
}

func (e *Engine) otpError(ctx context.Context, email string, res flows.OTPResult) error {
	switch res.Failure {
	case flows.OTPFailureLocked:
		e.metricInc(MetricOTPLockedRejected)
		return ErrOTPLocked
	case flows.OTPFailureNoPending:
		return ErrOTPNoPending
	case flows.OTPFailureExpired:
		return ErrOTPExpired
	case flows.OTPFailureMismatch:
		return ErrOTPInvalid
	case flows.OTPFailureAttemptsExceeded:
		if res.Err != nil {
			e.log(ctx).Error("otp lockout could not be recorded",
				slog.String("email", redact.Email(email)),
				slog.String("error", res.Err.Error()),
			)
		}
		if res.LockTriggered {
			e.metricInc(MetricOTPLockoutTriggered)
			e.log(ctx).Warn("otp lockout triggered",
				slog.String("event", auditEventOTPLockout),
				slog.String("kind", KindSecurityViolation.String()),
				slog.String("email", redact.Email(email)),
			)
			e.emitAudit(ctx, auditEventOTPLockout, false, true, "", "", string(auditErrOTPLocked), func() map[string]string {
				return map[string]string{"email": redact.Email(email)}
			})
		}
		return ErrOTPLocked
	default:
		e.log(ctx).Warn("otp backend unavailable",
			slog.String("email", redact.Email(email)),
			slog.Any("error", res.Err),
		)
		return fmt.Errorf("%w: %v", ErrOTPUnavailable, res.Err)
	}
}
