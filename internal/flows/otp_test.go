package flows

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/internal"
	"github.com/MrEthical07/goSession/internal/cache"
	"github.com/MrEthical07/goSession/internal/limiters"
	"github.com/MrEthical07/goSession/record"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOTPStore struct {
	mu       sync.Mutex
	rec      *record.OTP
	loadErr  error
	incErr   error
	consumed [][]byte
}

func (s *fakeOTPStore) ActiveOTP(_ context.Context, _ string) (record.OTP, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return record.OTP{}, s.loadErr
	}
	if s.rec == nil || s.rec.VerifiedAt != nil {
		return record.OTP{}, record.ErrNotFound
	}
	return *s.rec, nil
}

func (s *fakeOTPStore) IncrementOTPAttempts(_ context.Context, _ uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.incErr != nil {
		return 0, s.incErr
	}
	s.rec.Attempts++
	return s.rec.Attempts, nil
}

func (s *fakeOTPStore) MarkOTPVerified(_ context.Context, _ uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec == nil || s.rec.VerifiedAt != nil {
		return record.ErrNotFound
	}
	s.rec.VerifiedAt = &at
	return nil
}

func (s *fakeOTPStore) ConsumedOTP(_ context.Context, _ string, codeHash []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.consumed {
		if bytes.Equal(h, codeHash) {
			return true, nil
		}
	}
	return false, nil
}

func testHash(email, code string) []byte {
	sum := sha256.Sum256([]byte(email + "|" + code))
	return sum[:]
}

func newOTPFixture(t *testing.T, code string) (*fakeOTPStore, OTPDeps, *time.Time) {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := &now
	store := &fakeOTPStore{rec: &record.OTP{
		ID:          uuid.New(),
		Email:       "a@b.com",
		CodeHash:    testHash("a@b.com", code),
		MaxAttempts: 3,
		CreatedAt:   now,
		ExpiresAt:   now.Add(10 * time.Minute),
	}}
	nowFn := func() time.Time { return *clock }
	deps := OTPDeps{
		Store:           store,
		Lockout:         limiters.NewCacheLockout(cache.NewMemoryCache(nowFn), nowFn),
		Hash:            testHash,
		Equal:           internal.EqualHash,
		Now:             nowFn,
		LockoutDuration: 15 * time.Minute,
	}
	return store, deps, clock
}

func TestRunVerifyOTPSuccessThenNoPending(t *testing.T) {
	ctx := context.Background()
	_, deps, _ := newOTPFixture(t, "123456")

	res := RunVerifyOTP(ctx, "a@b.com", "123456", deps)
	require.Equal(t, OTPFailureNone, res.Failure)
	assert.Equal(t, 3, res.AttemptsRemaining)

	res = RunVerifyOTP(ctx, "a@b.com", "123456", deps)
	assert.Equal(t, OTPFailureNoPending, res.Failure)
}

func TestRunVerifyOTPMismatchCountsDown(t *testing.T) {
	ctx := context.Background()
	store, deps, _ := newOTPFixture(t, "123456")

	res := RunVerifyOTP(ctx, "a@b.com", "000000", deps)
	assert.Equal(t, OTPFailureMismatch, res.Failure)
	assert.Equal(t, 2, res.AttemptsRemaining)
	assert.Equal(t, 1, store.rec.Attempts)
}

func TestRunVerifyOTPLocksAtMaxAttempts(t *testing.T) {
	ctx := context.Background()
	_, deps, clock := newOTPFixture(t, "123456")

	for i := 0; i < 2; i++ {
		res := RunVerifyOTP(ctx, "a@b.com", "000000", deps)
		require.Equal(t, OTPFailureMismatch, res.Failure)
	}
	res := RunVerifyOTP(ctx, "a@b.com", "000000", deps)
	require.Equal(t, OTPFailureAttemptsExceeded, res.Failure)
	assert.True(t, res.LockTriggered)
	assert.Zero(t, res.AttemptsRemaining)

	res = RunVerifyOTP(ctx, "a@b.com", "123456", deps)
	assert.Equal(t, OTPFailureLocked, res.Failure)

	*clock = clock.Add(16 * time.Minute)
	res = RunVerifyOTP(ctx, "a@b.com", "123456", deps)
	// Lock has elapsed, but the record is expired by now too.
	assert.Equal(t, OTPFailureExpired, res.Failure)
}

func TestRunVerifyOTPRelocksWhenAttemptsAlreadyExhausted(t *testing.T) {
	ctx := context.Background()
	store, deps, _ := newOTPFixture(t, "123456")
	store.rec.Attempts = store.rec.MaxAttempts

	res := RunVerifyOTP(ctx, "a@b.com", "123456", deps)
	assert.Equal(t, OTPFailureAttemptsExceeded, res.Failure)
	assert.True(t, res.LockTriggered)

	locked, err := deps.Lockout.Locked(ctx, "a@b.com", deps.Now())
	require.NoError(t, err)
	assert.True(t, locked)
}

func TestRunVerifyOTPExpired(t *testing.T) {
	_, deps, clock := newOTPFixture(t, "123456")
	*clock = clock.Add(10 * time.Minute)

	res := RunVerifyOTP(context.Background(), "a@b.com", "123456", deps)
	assert.Equal(t, OTPFailureExpired, res.Failure)
}

func TestRunVerifyOTPStoreUnavailable(t *testing.T) {
	store, deps, _ := newOTPFixture(t, "123456")
	store.loadErr = errors.New("db down")

	res := RunVerifyOTP(context.Background(), "a@b.com", "123456", deps)
	assert.Equal(t, OTPFailureUnavailable, res.Failure)
	assert.Error(t, res.Err)
}

func TestRunVerifyOTPIncrementFailureIsUnavailable(t *testing.T) {
	store, deps, _ := newOTPFixture(t, "123456")
	store.incErr = errors.New("db down")

	res := RunVerifyOTP(context.Background(), "a@b.com", "999999", deps)
	assert.Equal(t, OTPFailureUnavailable, res.Failure)
}

type brokenLockout struct{}

func (brokenLockout) Locked(context.Context, string, time.Time) (bool, error) {
	return false, limiters.ErrLockoutUnavailable
}

func (brokenLockout) Lock(context.Context, string, time.Time) error { return nil }

func (brokenLockout) Clear(context.Context, string) error { return nil }

func TestRunVerifyOTPLockoutBackendDown(t *testing.T) {
	_, deps, _ := newOTPFixture(t, "123456")
	deps.Lockout = brokenLockout{}

	res := RunVerifyOTP(context.Background(), "a@b.com", "123456", deps)
	assert.Equal(t, OTPFailureUnavailable, res.Failure)
	assert.ErrorIs(t, res.Err, limiters.ErrLockoutUnavailable)
}

func TestRunVerifyOTPSupersededCodeIsNotAGuess(t *testing.T) {
	ctx := context.Background()
	store, deps, _ := newOTPFixture(t, "123456")
	store.consumed = [][]byte{testHash("a@b.com", "654321")}

	res := RunVerifyOTP(ctx, "a@b.com", "654321", deps)
	assert.Equal(t, OTPFailureNoPending, res.Failure)
	assert.Equal(t, 0, store.rec.Attempts)

	res = RunVerifyOTP(ctx, "a@b.com", "000000", deps)
	assert.Equal(t, OTPFailureMismatch, res.Failure)
	assert.Equal(t, 1, store.rec.Attempts)
}
