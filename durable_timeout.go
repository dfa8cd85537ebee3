package goSession

import (
	"context"
	"time"

	"github.com/MrEthical07/goSession/record"
	"github.com/google/uuid"
)

// boundedStore applies the durable timeout to every DurableStore call so a
// slow database cannot stall verification.
type boundedStore struct {
	next    DurableStore
	timeout time.Duration
}

func withDurableTimeout(s DurableStore, timeout time.Duration) DurableStore {
	if s == nil || timeout <= 0 {
		return s
	}
	if b, ok := s.(*boundedStore); ok {
		s = b.next
	}
	return &boundedStore{next: s, timeout: timeout}
}

func (b *boundedStore) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, b.timeout)
}

func (b *boundedStore) InsertRevocation(ctx context.Context, rev record.Revocation) error {
	ctx, cancel := b.ctx(ctx)
	defer cancel()
	return b.next.InsertRevocation(ctx, rev)
}

func (b *boundedStore) GetRevocation(ctx context.Context, jti string) (record.Revocation, error) {
	ctx, cancel := b.ctx(ctx)
	defer cancel()
	return b.next.GetRevocation(ctx, jti)
}

func (b *boundedStore) DeleteExpiredRevocations(ctx context.Context, before time.Time) (int64, error) {
	ctx, cancel := b.ctx(ctx)
	defer cancel()
	return b.next.DeleteExpiredRevocations(ctx, before)
}

func (b *boundedStore) UpsertWatermark(ctx context.Context, wm record.Watermark) error {
	ctx, cancel := b.ctx(ctx)
	defer cancel()
	return b.next.UpsertWatermark(ctx, wm)
}

func (b *boundedStore) GetWatermark(ctx context.Context, userID string) (record.Watermark, error) {
	ctx, cancel := b.ctx(ctx)
	defer cancel()
	return b.next.GetWatermark(ctx, userID)
}

func (b *boundedStore) ReplaceActiveOTP(ctx context.Context, rec record.OTP) error {
	ctx, cancel := b.ctx(ctx)
	defer cancel()
	return b.next.ReplaceActiveOTP(ctx, rec)
}

func (b *boundedStore) ActiveOTP(ctx context.Context, email string) (record.OTP, error) {
	ctx, cancel := b.ctx(ctx)
	defer cancel()
	return b.next.ActiveOTP(ctx, email)
}

func (b *boundedStore) IncrementOTPAttempts(ctx context.Context, id uuid.UUID) (int, error) {
	ctx, cancel := b.ctx(ctx)
	defer cancel()
	return b.next.IncrementOTPAttempts(ctx, id)
}

func (b *boundedStore) MarkOTPVerified(ctx context.Context, id uuid.UUID, at time.Time) error {
	ctx, cancel := b.ctx(ctx)
	defer cancel()
	return b.next.MarkOTPVerified(ctx, id, at)
}

func (b *boundedStore) ConsumedOTP(ctx context.Context, email string, codeHash []byte) (bool, error) {
	ctx, cancel := b.ctx(ctx)
	defer cancel()
	return b.next.ConsumedOTP(ctx, email, codeHash)
}

func (b *boundedStore) LatestOTPCreatedAt(ctx context.Context, email string) (time.Time, error) {
	ctx, cancel := b.ctx(ctx)
	defer cancel()
	return b.next.LatestOTPCreatedAt(ctx, email)
}

func (b *boundedStore) DeleteOTPsBefore(ctx context.Context, before time.Time) (int64, error) {
	ctx, cancel := b.ctx(ctx)
	defer cancel()
	return b.next.DeleteOTPsBefore(ctx, before)
}

func (b *boundedStore) OTPLockedUntil(ctx context.Context, email string) (time.Time, error) {
	ctx, cancel := b.ctx(ctx)
	defer cancel()
	return b.next.OTPLockedUntil(ctx, email)
}

func (b *boundedStore) SetOTPLockedUntil(ctx context.Context, email string, until time.Time) error {
	ctx, cancel := b.ctx(ctx)
	defer cancel()
	return b.next.SetOTPLockedUntil(ctx, email, until)
}

func (b *boundedStore) ClearOTPLock(ctx context.Context, email string) error {
	ctx, cancel := b.ctx(ctx)
	defer cancel()
	return b.next.ClearOTPLock(ctx, email)
}
