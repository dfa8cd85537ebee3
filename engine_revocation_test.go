package goSession

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/record"
	"github.com/MrEthical07/goSession/store/memory"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errStoreDown = errors.New("durable store down")

// flakyStore fails every call while down is set.
type flakyStore struct {
	DurableStore
	down atomic.Bool
}

func (s *flakyStore) InsertRevocation(ctx context.Context, rev record.Revocation) error {
	if s.down.Load() {
		return errStoreDown
	}
	return s.DurableStore.InsertRevocation(ctx, rev)
}

func (s *flakyStore) GetRevocation(ctx context.Context, jti string) (record.Revocation, error) {
	if s.down.Load() {
		return record.Revocation{}, errStoreDown
	}
	return s.DurableStore.GetRevocation(ctx, jti)
}

func (s *flakyStore) UpsertWatermark(ctx context.Context, wm record.Watermark) error {
	if s.down.Load() {
		return errStoreDown
	}
	return s.DurableStore.UpsertWatermark(ctx, wm)
}

func (s *flakyStore) GetWatermark(ctx context.Context, userID string) (record.Watermark, error) {
	if s.down.Load() {
		return record.Watermark{}, errStoreDown
	}
	return s.DurableStore.GetWatermark(ctx, userID)
}

func (s *flakyStore) ActiveOTP(ctx context.Context, email string) (record.OTP, error) {
	if s.down.Load() {
		return record.OTP{}, errStoreDown
	}
	return s.DurableStore.ActiveOTP(ctx, email)
}

func (s *flakyStore) ReplaceActiveOTP(ctx context.Context, rec record.OTP) error {
	if s.down.Load() {
		return errStoreDown
	}
	return s.DurableStore.ReplaceActiveOTP(ctx, rec)
}

func (s *flakyStore) LatestOTPCreatedAt(ctx context.Context, email string) (time.Time, error) {
	if s.down.Load() {
		return time.Time{}, errStoreDown
	}
	return s.DurableStore.LatestOTPCreatedAt(ctx, email)
}

func (s *flakyStore) OTPLockedUntil(ctx context.Context, email string) (time.Time, error) {
	if s.down.Load() {
		return time.Time{}, errStoreDown
	}
	return s.DurableStore.OTPLockedUntil(ctx, email)
}

func (s *flakyStore) DeleteExpiredRevocations(ctx context.Context, before time.Time) (int64, error) {
	if s.down.Load() {
		return 0, errStoreDown
	}
	return s.DurableStore.DeleteExpiredRevocations(ctx, before)
}

func newFlakyEnv(t *testing.T, opts ...envOption) (*testEnv, *flakyStore) {
	t.Helper()
	var flaky *flakyStore
	env := newTestEnvWith(t, func(s DurableStore) DurableStore {
		flaky = &flakyStore{DurableStore: s}
		return flaky
	}, opts...)
	return env, flaky
}

func TestRevokeThenIsRevoked(t *testing.T) {
	env := newTestEnv(t, withMetrics)
	ctx := context.Background()

	pair, err := env.engine.IssueSession(ctx, alice(), "user", nil, nil)
	require.NoError(t, err)

	revoked, err := env.engine.IsRevoked(ctx, pair.RefreshJTI)
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, env.engine.Revoke(ctx, pair.RefreshJTI, alice().ID, pair.RefreshExpiresAt, "admin"))
	assert.True(t, env.redis.Exists("gs:rv:"+pair.RefreshJTI))
	ttl := env.redis.TTL("gs:rv:" + pair.RefreshJTI)
	assert.InDelta(t, env.engine.config.JWT.RefreshTTL.Seconds(), ttl.Seconds(), 1)

	revoked, err = env.engine.IsRevoked(ctx, pair.RefreshJTI)
	require.NoError(t, err)
	assert.True(t, revoked)
	assert.Equal(t, uint64(1), env.engine.metrics.Value(MetricRevocationHitCache))

	_, err = env.engine.VerifyRefresh(ctx, pair.RefreshToken, nil)
	assert.ErrorIs(t, err, ErrRefreshRejected)
}

func TestStrictRevocationSurvivesCacheEviction(t *testing.T) {
	env := newTestEnv(t, strictMode, withMetrics)
	ctx := context.Background()

	pair, err := env.engine.IssueSession(ctx, alice(), "user", nil, nil)
	require.NoError(t, err)
	require.NoError(t, env.engine.Logout(ctx, pair.RefreshToken, ""))

	// Evict early, long before the token's own expiry.
	env.redis.FlushAll()
	env.clock.Advance(24 * time.Hour)

	revoked, err := env.engine.IsRevoked(ctx, pair.RefreshJTI)
	require.NoError(t, err)
	assert.True(t, revoked)
	assert.Equal(t, uint64(1), env.engine.metrics.Value(MetricRevocationHitDurable))

	// The durable hit is backfilled into the cache tier.
	assert.True(t, env.redis.Exists("gs:rv:"+pair.RefreshJTI))

	env.redis.FlushAll()
	env.clock.Advance(5 * 24 * time.Hour)
	_, err = env.engine.VerifyRefresh(ctx, pair.RefreshToken, nil)
	assert.ErrorIs(t, err, ErrRefreshRejected)
}

func TestPermissiveTrustsCacheMiss(t *testing.T) {
	ctx := context.Background()
	jti := "01J0000000000000000000TEST"
	rev := record.Revocation{
		ID:        uuid.New(),
		JTI:       jti,
		UserID:    alice().ID,
		RevokedAt: time.Now().UTC(),
		ExpiresAt: time.Now().Add(time.Hour).UTC(),
	}

	permissive := newTestEnv(t)
	require.NoError(t, permissive.store.InsertRevocation(ctx, rev))
	revoked, err := permissive.engine.IsRevoked(ctx, jti)
	require.NoError(t, err)
	assert.False(t, revoked)

	strict := newTestEnv(t, strictMode)
	require.NoError(t, strict.store.InsertRevocation(ctx, rev))
	revoked, err = strict.engine.IsRevoked(ctx, jti)
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestPermissiveConsultsDurableAfterCacheError(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	pair, err := env.engine.IssueSession(ctx, alice(), "user", nil, nil)
	require.NoError(t, err)
	require.NoError(t, env.engine.Logout(ctx, pair.RefreshToken, ""))

	env.redis.Close()

	revoked, err := env.engine.IsRevoked(ctx, pair.RefreshJTI)
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestPermissiveFailsOpen(t *testing.T) {
	env, flaky := newFlakyEnv(t, withMetrics)
	ctx := context.Background()

	pair, err := env.engine.IssueSession(ctx, alice(), "user", nil, nil)
	require.NoError(t, err)

	env.redis.Close()
	flaky.down.Store(true)

	revoked, err := env.engine.IsRevoked(ctx, pair.RefreshJTI)
	require.NoError(t, err)
	assert.False(t, revoked)
	assert.Equal(t, uint64(1), env.engine.metrics.Value(MetricRevocationFailOpen))

	_, err = env.engine.VerifyRefresh(ctx, pair.RefreshToken, nil)
	assert.NoError(t, err)
}

func TestStrictFailsClosed(t *testing.T) {
	env, flaky := newFlakyEnv(t, strictMode, withMetrics)
	ctx := context.Background()

	pair, err := env.engine.IssueSession(ctx, alice(), "user", nil, nil)
	require.NoError(t, err)

	env.redis.Close()
	flaky.down.Store(true)

	revoked, err := env.engine.IsRevoked(ctx, pair.RefreshJTI)
	assert.True(t, revoked)
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.Equal(t, KindExternalService, KindOf(err))
	assert.Equal(t, uint64(1), env.engine.metrics.Value(MetricRevocationFailClosed))

	_, err = env.engine.VerifyRefresh(ctx, pair.RefreshToken, nil)
	assert.ErrorIs(t, err, ErrRefreshRejected)

	_, err = env.engine.ValidateAccess(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestStrictFailsClosedOnCancelledContext(t *testing.T) {
	env := newTestEnv(t, strictMode)

	pair, err := env.engine.IssueSession(context.Background(), alice(), "user", nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	revoked, err := env.engine.IsRevoked(ctx, pair.RefreshJTI)
	assert.True(t, revoked)
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}

func TestRevokeSucceedsWhileOneTierIsDown(t *testing.T) {
	env, flaky := newFlakyEnv(t)
	ctx := context.Background()
	exp := env.clock.Now().Add(time.Hour)

	flaky.down.Store(true)
	require.NoError(t, env.engine.Revoke(ctx, "jti-cache-only", "u1", exp, ""))
	assert.True(t, env.redis.Exists("gs:rv:jti-cache-only"))

	flaky.down.Store(false)
	env.redis.Close()
	require.NoError(t, env.engine.Revoke(ctx, "jti-durable-only", "u1", exp, ""))
	_, err := env.store.GetRevocation(ctx, "jti-durable-only")
	assert.NoError(t, err)

	flaky.down.Store(true)
	err = env.engine.Revoke(ctx, "jti-nowhere", "u1", exp, "")
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}

func TestRevokeIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exp := env.clock.Now().Add(time.Hour)

	require.NoError(t, env.engine.Revoke(ctx, "jti-1", "u1", exp, "first"))
	require.NoError(t, env.engine.Revoke(ctx, "jti-1", "u1", exp, "second"))

	rev, err := env.store.GetRevocation(ctx, "jti-1")
	require.NoError(t, err)
	assert.Equal(t, "first", rev.Reason)
}

func TestRevokeExpiredTokenIsNoop(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.engine.Revoke(ctx, "jti-old", "u1", env.clock.Now().Add(-time.Second), ""))
	assert.False(t, env.redis.Exists("gs:rv:jti-old"))
	_, err := env.store.GetRevocation(ctx, "jti-old")
	assert.ErrorIs(t, err, record.ErrNotFound)

	assert.ErrorIs(t, env.engine.Revoke(ctx, " ", "u1", time.Time{}, ""), ErrInvalidArgument)
	_, err = env.engine.IsRevoked(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestInvalidateAllForUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	before, err := env.engine.IssueSession(ctx, alice(), "user", nil, nil)
	require.NoError(t, err)
	other, err := env.engine.IssueSession(ctx, VerifiedIdentity{ID: "bob"}, "user", nil, nil)
	require.NoError(t, err)

	env.clock.Advance(time.Millisecond)
	require.NoError(t, env.engine.InvalidateAllForUser(ctx, alice().ID))
	env.clock.Advance(time.Millisecond)

	after, err := env.engine.IssueSession(ctx, alice(), "user", nil, nil)
	require.NoError(t, err)

	_, err = env.engine.VerifyRefresh(ctx, before.RefreshToken, nil)
	assert.ErrorIs(t, err, ErrRefreshRejected)
	_, err = env.engine.ValidateAccess(ctx, before.AccessToken)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = env.engine.VerifyRefresh(ctx, after.RefreshToken, nil)
	assert.NoError(t, err)
	_, err = env.engine.ValidateAccess(ctx, after.AccessToken)
	assert.NoError(t, err)

	_, err = env.engine.VerifyRefresh(ctx, other.RefreshToken, nil)
	assert.NoError(t, err)
}

func TestInvalidateAllForUserWallClock(t *testing.T) {
	engine, err := New().WithConfig(testConfig()).Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		before, err := engine.IssueRefresh(ctx, alice(), nil)
		require.NoError(t, err)

		require.NoError(t, engine.InvalidateAllForUser(ctx, alice().ID))

		after, err := engine.IssueRefresh(ctx, alice(), nil)
		require.NoError(t, err)

		_, err = engine.VerifyRefresh(ctx, before, nil)
		require.ErrorIs(t, err, ErrRefreshRejected, "iteration %d: token from before the call", i)
		_, err = engine.VerifyRefresh(ctx, after, nil)
		require.NoError(t, err, "iteration %d: token from after the call", i)
	}
}

func TestInvalidateAllForUserFrozenClockReturns(t *testing.T) {
	env := newTestEnv(t)

	start := time.Now()
	require.NoError(t, env.engine.InvalidateAllForUser(context.Background(), alice().ID))
	assert.Less(t, time.Since(start), time.Second)
}

func TestIsUserInvalidatedMillisecondBoundary(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.clock.Advance(123*time.Millisecond + 456*time.Microsecond)
	watermark := env.clock.Now().Truncate(time.Millisecond)
	require.NoError(t, env.engine.InvalidateAllForUser(ctx, "u1"))

	tests := []struct {
		name     string
		issuedAt time.Time
		want     bool
	}{
		{name: "well before", issuedAt: watermark.Add(-time.Hour), want: true},
		{name: "same millisecond", issuedAt: watermark.Add(900 * time.Microsecond), want: true},
		{name: "exact instant", issuedAt: watermark, want: true},
		{name: "next millisecond", issuedAt: watermark.Add(time.Millisecond), want: false},
		{name: "other zone same instant", issuedAt: watermark.In(time.FixedZone("x", 5*3600)), want: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := env.engine.IsUserInvalidated(ctx, "u1", tc.issuedAt)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	got, err := env.engine.IsUserInvalidated(ctx, "u2", watermark)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestStrictWatermarkSurvivesCacheEviction(t *testing.T) {
	env := newTestEnv(t, strictMode)
	ctx := context.Background()

	pair, err := env.engine.IssueSession(ctx, alice(), "user", nil, nil)
	require.NoError(t, err)
	env.clock.Advance(time.Millisecond)
	require.NoError(t, env.engine.InvalidateAllForUser(ctx, alice().ID))

	env.redis.FlushAll()

	_, err = env.engine.VerifyRefresh(ctx, pair.RefreshToken, nil)
	assert.ErrorIs(t, err, ErrRefreshRejected)
	assert.True(t, env.redis.Exists("gs:wm:"+alice().ID))
}

func TestWatermarkNeverMovesBackwards(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.clock.Advance(time.Hour)
	require.NoError(t, env.engine.InvalidateAllForUser(ctx, "u1"))
	later := env.clock.Now()
	env.clock.Advance(-30 * time.Minute)
	require.NoError(t, env.engine.InvalidateAllForUser(ctx, "u1"))

	wm, err := env.store.GetWatermark(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, wm.InvalidatedAt.Equal(later))
}

func TestRevokeAccessHonoursCheckAccessTokens(t *testing.T) {
	ctx := context.Background()

	checked := newTestEnv(t, func(c *Config) { c.Revocation.CheckAccessTokens = true })
	pair, err := checked.engine.IssueSession(ctx, alice(), "user", nil, nil)
	require.NoError(t, err)
	require.NoError(t, checked.engine.RevokeAccess(ctx, pair.AccessToken, ""))
	_, err = checked.engine.ValidateAccess(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	unchecked := newTestEnv(t)
	pair, err = unchecked.engine.IssueSession(ctx, alice(), "user", nil, nil)
	require.NoError(t, err)
	require.NoError(t, unchecked.engine.RevokeAccess(ctx, pair.AccessToken, ""))
	_, err = unchecked.engine.ValidateAccess(ctx, pair.AccessToken)
	assert.NoError(t, err)

	assert.ErrorIs(t, unchecked.engine.RevokeAccess(ctx, pair.RefreshToken, ""), ErrTokenInvalid)
}

func TestValidateAccessRejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	pair, err := env.engine.IssueSession(ctx, alice(), "user", nil, nil)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"garbage":       "a.b.c",
		"refresh token": pair.RefreshToken,
		"empty":         "",
	} {
		_, err := env.engine.ValidateAccess(ctx, token)
		assert.ErrorIs(t, err, ErrTokenInvalid, name)
	}

	env.clock.Advance(env.engine.config.JWT.AccessTTL + time.Second)
	_, err = env.engine.ValidateAccess(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestMemoryFallbackWithoutRedis(t *testing.T) {
	clock := newTestClock()
	cfg := testConfig()
	cfg.Metrics.Enabled = true
	engine, err := New().WithConfig(cfg).WithClock(clock.Now).Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	ctx := context.Background()

	assert.Equal(t, "memory", engine.SecurityReport().CacheTier)
	assert.Equal(t, []string{"memory", "durable"}, engine.SecurityReport().RevocationTiers)
	assert.Equal(t, "in-process", engine.SecurityReport().DurableTier)

	pair, err := engine.IssueSession(ctx, alice(), "user", nil, nil)
	require.NoError(t, err)
	require.NoError(t, engine.Logout(ctx, pair.RefreshToken, ""))

	revoked, err := engine.IsRevoked(ctx, pair.RefreshJTI)
	require.NoError(t, err)
	assert.True(t, revoked)
	assert.Equal(t, uint64(1), engine.metrics.Value(MetricRevocationHitMemory))
}

func TestPurgeExpired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.engine.Revoke(ctx, "short", "u1", env.clock.Now().Add(time.Hour), ""))
	require.NoError(t, env.engine.Revoke(ctx, "long", "u1", env.clock.Now().Add(72*time.Hour), ""))
	_, err := env.engine.CreateOTP(ctx, "a@b.com")
	require.NoError(t, err)

	env.clock.Advance(25 * time.Hour)
	res, err := env.engine.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, PurgeResult{Revocations: 1, OTPs: 1}, res)

	_, err = env.store.GetRevocation(ctx, "long")
	assert.NoError(t, err)
}

func TestPurgeExpiredReportsBackendFailure(t *testing.T) {
	env, flaky := newFlakyEnv(t)
	flaky.down.Store(true)

	_, err := env.engine.PurgeExpired(context.Background())
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}

func TestDurableCallsAreBounded(t *testing.T) {
	cfg := testConfig()
	cfg.ValidationMode = ModeStrict
	cfg.Timeouts.Durable = 20 * time.Millisecond
	engine, err := New().WithConfig(cfg).WithDurableStore(&slowStore{DurableStore: memory.New()}).Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	start := time.Now()
	revoked, err := engine.IsRevoked(context.Background(), "jti")
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, revoked)
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}

type slowStore struct {
	DurableStore
}

func (s *slowStore) GetRevocation(ctx context.Context, _ string) (record.Revocation, error) {
	<-ctx.Done()
	return record.Revocation{}, ctx.Err()
}
