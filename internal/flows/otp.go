package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goSession/internal/limiters"
	"github.com/MrEthical07/goSession/record"
	"github.com/google/uuid"
)

// OTPFailureKind classifies OTP verification outcomes.
type OTPFailureKind int

const (
	OTPFailureNone OTPFailureKind = iota
	OTPFailureLocked
	OTPFailureNoPending
	OTPFailureExpired
	OTPFailureAttemptsExceeded
	OTPFailureMismatch
	OTPFailureUnavailable
)

func (k OTPFailureKind) String() string {
	switch k {
	case OTPFailureNone:
		return "none"
	case OTPFailureLocked:
		return "locked"
	case OTPFailureNoPending:
		return "no_pending"
	case OTPFailureExpired:
		return "expired"
	case OTPFailureAttemptsExceeded:
		return "attempts_exceeded"
	case OTPFailureMismatch:
		return "mismatch"
	case OTPFailureUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// OTPResult is the outcome of one verification attempt. LockTriggered is set
// when this attempt moved the identity into lockout.
type OTPResult struct {
	Failure           OTPFailureKind
	Err               error
	RecordID          string
	AttemptsRemaining int
	LockTriggered     bool
}

// OTPStore is the slice of the durable store the OTP flow needs.
type OTPStore interface {
	ActiveOTP(ctx context.Context, email string) (record.OTP, error)
	IncrementOTPAttempts(ctx context.Context, id uuid.UUID) (int, error)
	MarkOTPVerified(ctx context.Context, id uuid.UUID, at time.Time) error
	ConsumedOTP(ctx context.Context, email string, codeHash []byte) (bool, error)
}

// OTPDeps captures OTP verification dependencies.
type OTPDeps struct {
	Store           OTPStore
	Lockout         limiters.Lockout
	Hash            func(email, code string) []byte
	Equal           func(a, b []byte) bool
	Now             func() time.Time
	LockoutDuration time.Duration
}

// RunVerifyOTP walks the per-email state machine: lockout, active record,
// expiry, attempt ceiling, then a constant-time hash compare. A mismatching
// candidate that equals an already used or superseded code reports
// NoPending without consuming an attempt.
func RunVerifyOTP(ctx context.Context, email, candidate string, deps OTPDeps) OTPResult {
	now := deps.Now()

	locked, err := deps.Lockout.Locked(ctx, email, now)
	if err != nil {
		return OTPResult{Failure: OTPFailureUnavailable, Err: err}
	}
	if locked {
		return OTPResult{Failure: OTPFailureLocked}
	}

	rec, err := deps.Store.ActiveOTP(ctx, email)
	if err != nil {
		if errors.Is(err, record.ErrNotFound) {
			return OTPResult{Failure: OTPFailureNoPending}
		}
		return OTPResult{Failure: OTPFailureUnavailable, Err: err}
	}
	res := OTPResult{RecordID: rec.ID.String(), AttemptsRemaining: rec.AttemptsRemaining()}

	if !now.Before(rec.ExpiresAt) {
		res.Failure = OTPFailureExpired
		return res
	}

	if rec.Attempts >= rec.MaxAttempts {
		res.Failure, res.AttemptsRemaining = OTPFailureAttemptsExceeded, 0
		res.Err = lock(ctx, deps, email, now)
		res.LockTriggered = res.Err == nil
		return res
	}

	hash := deps.Hash(email, candidate)
	if deps.Equal(hash, rec.CodeHash) {
		if err := deps.Store.MarkOTPVerified(ctx, rec.ID, now); err != nil {
			if errors.Is(err, record.ErrNotFound) {
				// Lost a race with a concurrent verify or a newer code.
				res.Failure = OTPFailureNoPending
				return res
			}
			res.Failure, res.Err = OTPFailureUnavailable, err
			return res
		}
		// Lock state is advisory once the code is consumed.
		_ = deps.Lockout.Clear(ctx, email)
		return res
	}

	// A code that was already used or replaced is not a guess.
	if consumed, err := deps.Store.ConsumedOTP(ctx, email, hash); err == nil && consumed {
		res.Failure = OTPFailureNoPending
		return res
	}

	attempts, err := deps.Store.IncrementOTPAttempts(ctx, rec.ID)
	if err != nil {
		res.Failure, res.Err = OTPFailureUnavailable, err
		return res
	}
	res.AttemptsRemaining = rec.MaxAttempts - attempts
	if res.AttemptsRemaining <= 0 {
		res.Failure, res.AttemptsRemaining = OTPFailureAttemptsExceeded, 0
		res.Err = lock(ctx, deps, email, now)
		res.LockTriggered = res.Err == nil
		return res
	}
	res.Failure = OTPFailureMismatch
	return res
}

func lock(ctx context.Context, deps OTPDeps, email string, now time.Time) error {
	return deps.Lockout.Lock(ctx, email, now.Add(deps.LockoutDuration))
}
