package goSession

import (
	"context"
	"time"

	"github.com/MrEthical07/goSession/fingerprint"
	"github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/record"
	"github.com/google/uuid"
)

// VerifiedIdentity is the claim set handed over by the external identity
// provider after it has verified the user. The engine never re-verifies it.
type VerifiedIdentity struct {
	ID      string
	Email   string
	Name    string
	Picture string
}

// ClientContext describes the caller for fingerprint binding. A nil
// *ClientContext skips binding.
type ClientContext = fingerprint.ClientContext

// TokenPair is returned by IssueSession.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessJTI        string
	RefreshJTI       string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Grant is the role and permission set minted into an access token.
type Grant struct {
	Role        string
	Permissions []string
}

// GrantResolver looks up the current grant for a user when an access token
// is minted from a refresh token.
type GrantResolver interface {
	ResolveGrant(ctx context.Context, userID string) (Grant, error)
}

// GrantResolverFunc adapts a function to GrantResolver.
type GrantResolverFunc func(ctx context.Context, userID string) (Grant, error)

// ResolveGrant calls f.
func (f GrantResolverFunc) ResolveGrant(ctx context.Context, userID string) (Grant, error) {
	return f(ctx, userID)
}

// Notifier delivers plaintext OTP codes. A false return is logged and
// counted but never fails record creation.
type Notifier interface {
	SendOTPCode(ctx context.Context, email, code string, expiryMinutes int) bool
}

// RevocationStore persists revoked token identifiers.
type RevocationStore interface {
	InsertRevocation(ctx context.Context, rev record.Revocation) error
	GetRevocation(ctx context.Context, jti string) (record.Revocation, error)
	DeleteExpiredRevocations(ctx context.Context, before time.Time) (int64, error)
}

// WatermarkStore persists per-user invalidation watermarks. Upserts never
// move a watermark backwards.
type WatermarkStore interface {
	UpsertWatermark(ctx context.Context, wm record.Watermark) error
	GetWatermark(ctx context.Context, userID string) (record.Watermark, error)
}

// OTPStore persists OTP records and the durable lockout column.
type OTPStore interface {
	// ReplaceActiveOTP supersedes any pending record for the email and inserts
	// rec in one transaction.
	ReplaceActiveOTP(ctx context.Context, rec record.OTP) error
	// ActiveOTP returns the pending (not superseded, not verified) record,
	// expired or not, or record.ErrNotFound.
	ActiveOTP(ctx context.Context, email string) (record.OTP, error)
	IncrementOTPAttempts(ctx context.Context, id uuid.UUID) (int, error)
	// MarkOTPVerified returns record.ErrNotFound when the record is no longer pending.
	MarkOTPVerified(ctx context.Context, id uuid.UUID, at time.Time) error
	// ConsumedOTP reports whether codeHash belongs to a verified or superseded
	// record of email.
	ConsumedOTP(ctx context.Context, email string, codeHash []byte) (bool, error)
	// LatestOTPCreatedAt returns record.ErrNotFound when the email has no records.
	LatestOTPCreatedAt(ctx context.Context, email string) (time.Time, error)
	DeleteOTPsBefore(ctx context.Context, before time.Time) (int64, error)

	OTPLockedUntil(ctx context.Context, email string) (time.Time, error)
	SetOTPLockedUntil(ctx context.Context, email string, until time.Time) error
	ClearOTPLock(ctx context.Context, email string) error
}

// DurableStore is the authoritative relational tier.
type DurableStore interface {
	RevocationStore
	WatermarkStore
	OTPStore
}

// OTPResult reports the outcome of a successful or rejected verification.
type OTPResult struct {
	Verified          bool
	AttemptsRemaining int
}

// PurgeResult counts rows removed by PurgeExpired.
type PurgeResult struct {
	Revocations int64
	OTPs        int64
}

// AuditEvent is one security-relevant engine outcome.
type AuditEvent = audit.Event

// AuditSink receives audit events from the async dispatcher.
type AuditSink = audit.Sink
