// Package memory is an in-process durable store for development, tests and
// single-instance permissive deployments. Nothing survives a restart.
package memory

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/goSession/record"
	"github.com/google/uuid"
)

// Store keeps every record behind one mutex.
type Store struct {
	mu          sync.RWMutex
	revocations map[string]record.Revocation
	watermarks  map[string]record.Watermark
	otps        map[uuid.UUID]*record.OTP
	byEmail     map[string][]uuid.UUID
}

// New returns an empty store.
func New() *Store {
	return &Store{
		revocations: make(map[string]record.Revocation),
		watermarks:  make(map[string]record.Watermark),
		otps:        make(map[uuid.UUID]*record.OTP),
		byEmail:     make(map[string][]uuid.UUID),
	}
}

func normEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// InsertRevocation stores rev. A second revocation of the same jti is a
// conflict and leaves the first in place.
func (s *Store) InsertRevocation(ctx context.Context, rev record.Revocation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.revocations[rev.JTI]; ok {
		return record.ErrConflict
	}
	if rev.ID == uuid.Nil {
		rev.ID = uuid.New()
	}
	rev.RevokedAt = record.Millis(rev.RevokedAt)
	rev.ExpiresAt = record.Millis(rev.ExpiresAt)
	s.revocations[rev.JTI] = rev
	return nil
}

// GetRevocation returns record.ErrNotFound for an unknown jti.
func (s *Store) GetRevocation(ctx context.Context, jti string) (record.Revocation, error) {
	if err := ctx.Err(); err != nil {
		return record.Revocation{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rev, ok := s.revocations[jti]
	if !ok {
		return record.Revocation{}, record.ErrNotFound
	}
	return rev, nil
}

// DeleteExpiredRevocations removes entries that expired before before.
func (s *Store) DeleteExpiredRevocations(ctx context.Context, before time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for jti, rev := range s.revocations {
		if rev.ExpiresAt.Before(before) {
			delete(s.revocations, jti)
			n++
		}
	}
	return n, nil
}

// UpsertWatermark never moves a watermark backwards.
func (s *Store) UpsertWatermark(ctx context.Context, wm record.Watermark) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	wm.InvalidatedAt = record.Millis(wm.InvalidatedAt)
	if cur, ok := s.watermarks[wm.UserID]; ok && !wm.InvalidatedAt.After(cur.InvalidatedAt) {
		return nil
	}
	s.watermarks[wm.UserID] = wm
	return nil
}

// GetWatermark returns record.ErrNotFound when the user was never invalidated.
func (s *Store) GetWatermark(ctx context.Context, userID string) (record.Watermark, error) {
	if err := ctx.Err(); err != nil {
		return record.Watermark{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	wm, ok := s.watermarks[userID]
	if !ok {
		return record.Watermark{}, record.ErrNotFound
	}
	return wm, nil
}

func pending(o *record.OTP) bool {
	return o.VerifiedAt == nil && o.SupersededAt == nil
}

// ReplaceActiveOTP supersedes the pending record for the email and stores rec.
func (s *Store) ReplaceActiveOTP(ctx context.Context, rec record.OTP) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	email := normEmail(rec.Email)
	s.mu.Lock()
	defer s.mu.Unlock()

	now := rec.CreatedAt
	for _, id := range s.byEmail[email] {
		if o := s.otps[id]; pending(o) {
			at := now
			o.SupersededAt = &at
		}
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.Email = email
	rec.CodeHash = append([]byte(nil), rec.CodeHash...)
	cp := rec
	s.otps[rec.ID] = &cp
	s.byEmail[email] = append(s.byEmail[email], rec.ID)
	return nil
}

// ActiveOTP returns the pending record for email, expired or not.
func (s *Store) ActiveOTP(ctx context.Context, email string) (record.OTP, error) {
	if err := ctx.Err(); err != nil {
		return record.OTP{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.byEmail[normEmail(email)] {
		if o := s.otps[id]; pending(o) {
			return *o, nil
		}
	}
	return record.OTP{}, record.ErrNotFound
}

// IncrementOTPAttempts adds one attempt and returns the new count.
func (s *Store) IncrementOTPAttempts(ctx context.Context, id uuid.UUID) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.otps[id]
	if !ok {
		return 0, record.ErrNotFound
	}
	o.Attempts++
	return o.Attempts, nil
}

// MarkOTPVerified only succeeds while the record is still pending.
func (s *Store) MarkOTPVerified(ctx context.Context, id uuid.UUID, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.otps[id]
	if !ok || !pending(o) {
		return record.ErrNotFound
	}
	at = record.Millis(at)
	o.VerifiedAt = &at
	return nil
}

// ConsumedOTP reports whether codeHash belongs to a verified or superseded record.
func (s *Store) ConsumedOTP(ctx context.Context, email string, codeHash []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.byEmail[normEmail(email)] {
		o := s.otps[id]
		if !pending(o) && bytes.Equal(o.CodeHash, codeHash) {
			return true, nil
		}
	}
	return false, nil
}

// LatestOTPCreatedAt returns the creation time of the newest record for email.
func (s *Store) LatestOTPCreatedAt(ctx context.Context, email string) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest time.Time
	for _, id := range s.byEmail[normEmail(email)] {
		if c := s.otps[id].CreatedAt; c.After(latest) {
			latest = c
		}
	}
	if latest.IsZero() {
		return time.Time{}, record.ErrNotFound
	}
	return latest, nil
}

// DeleteOTPsBefore removes records that expired before the cutoff. The
// newest record per email keeps its lock column alive until the lock ends.
func (s *Store) DeleteOTPsBefore(ctx context.Context, before time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for email, ids := range s.byEmail {
		kept := ids[:0]
		for _, id := range ids {
			o := s.otps[id]
			locked := o.LockedUntil != nil && !o.LockedUntil.Before(before)
			if o.ExpiresAt.Before(before) && !locked {
				delete(s.otps, id)
				n++
				continue
			}
			kept = append(kept, id)
		}
		if len(kept) == 0 {
			delete(s.byEmail, email)
		} else {
			s.byEmail[email] = kept
		}
	}
	return n, nil
}

// OTPLockedUntil returns the latest lock across the email's records, or the
// zero time.
func (s *Store) OTPLockedUntil(ctx context.Context, email string) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var until time.Time
	for _, id := range s.byEmail[normEmail(email)] {
		if o := s.otps[id]; o.LockedUntil != nil && o.LockedUntil.After(until) {
			until = *o.LockedUntil
		}
	}
	return until, nil
}

// SetOTPLockedUntil writes the lock onto the newest record for the email.
func (s *Store) SetOTPLockedUntil(ctx context.Context, email string, until time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.newest(normEmail(email))
	if o == nil {
		return record.ErrNotFound
	}
	until = record.Millis(until)
	o.LockedUntil = &until
	return nil
}

// ClearOTPLock unlocks every record of email.
func (s *Store) ClearOTPLock(ctx context.Context, email string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.byEmail[normEmail(email)] {
		s.otps[id].LockedUntil = nil
	}
	return nil
}

func (s *Store) newest(email string) *record.OTP {
	ids := s.byEmail[email]
	if len(ids) == 0 {
		return nil
	}
	sorted := append([]uuid.UUID(nil), ids...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return s.otps[sorted[i]].CreatedAt.Before(s.otps[sorted[j]].CreatedAt)
	})
	return s.otps[sorted[len(sorted)-1]]
}
