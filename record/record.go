// Package record holds the persisted shapes shared by the engine and its
// durable store adapters: revocation entries, user invalidation watermarks
// and OTP records.
package record

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned by stores when no matching row exists.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a write races another writer on a unique key.
	ErrConflict = errors.New("record conflict")
)

// Revocation marks a single token identifier as no longer valid.
type Revocation struct {
	ID        uuid.UUID
	JTI       string
	UserID    string
	Reason    string
	RevokedAt time.Time
	ExpiresAt time.Time
}

// Watermark invalidates every token of a user issued at or before InvalidatedAt.
type Watermark struct {
	UserID        string
	InvalidatedAt time.Time
}

// OTP is one issued one-time passcode. Only the keyed hash of the code is kept.
type OTP struct {
	ID           uuid.UUID
	Email        string
	CodeHash     []byte
	Attempts     int
	MaxAttempts  int
	CreatedAt    time.Time
	ExpiresAt    time.Time
	LockedUntil  *time.Time
	VerifiedAt   *time.Time
	SupersededAt *time.Time
}

// AttemptsRemaining never goes below zero.
func (o OTP) AttemptsRemaining() int {
	if o.Attempts >= o.MaxAttempts {
		return 0
	}
	return o.MaxAttempts - o.Attempts
}

// Millis truncates t to millisecond precision in UTC, the representation used
// for every watermark and revocation timestamp.
func Millis(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
