package goSession

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sixDigits = regexp.MustCompile(`^[0-9]{6}$`)

func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}

func TestOTPScenarioSingleUse(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	code, err := env.engine.CreateOTP(ctx, "a@b.com")
	require.NoError(t, err)
	assert.Regexp(t, sixDigits, code)

	res, err := env.engine.VerifyOTP(ctx, "a@b.com", code)
	require.NoError(t, err)
	assert.True(t, res.Verified)

	_, err = env.engine.VerifyOTP(ctx, "a@b.com", code)
	assert.ErrorIs(t, err, ErrOTPNoPending)
	assert.Equal(t, "no pending verification", err.Error())
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestCreateOTPSupersedesPreviousCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.engine.CreateOTP(ctx, "a@b.com")
	require.NoError(t, err)
	second, err := env.engine.CreateOTP(ctx, "a@b.com")
	require.NoError(t, err)
	for second == first {
		second, err = env.engine.CreateOTP(ctx, "a@b.com")
		require.NoError(t, err)
	}

	_, err = env.engine.VerifyOTP(ctx, "a@b.com", first)
	assert.ErrorIs(t, err, ErrOTPNoPending)
	assert.Equal(t, "no pending verification", err.Error())

	rec, err := env.store.ActiveOTP(ctx, "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Attempts)

	res, err := env.engine.VerifyOTP(ctx, "a@b.com", second)
	require.NoError(t, err)
	assert.True(t, res.Verified)

	_, err = env.engine.VerifyOTP(ctx, "a@b.com", first)
	assert.ErrorIs(t, err, ErrOTPNoPending)
}

func TestOTPLockoutAfterMaxAttempts(t *testing.T) {
	env := newTestEnv(t, withMetrics)
	ctx := context.Background()
	maxAttempts := env.engine.config.OTP.MaxAttempts

	code, err := env.engine.CreateOTP(ctx, "a@b.com")
	require.NoError(t, err)

	for i := 1; i < maxAttempts; i++ {
		res, err := env.engine.VerifyOTP(ctx, "a@b.com", wrongCode(code))
		require.ErrorIs(t, err, ErrOTPInvalid)
		assert.Equal(t, maxAttempts-i, res.AttemptsRemaining)
	}
	_, err = env.engine.VerifyOTP(ctx, "a@b.com", wrongCode(code))
	require.ErrorIs(t, err, ErrOTPLocked)
	assert.Equal(t, uint64(1), env.engine.metrics.Value(MetricOTPLockoutTriggered))

	_, err = env.engine.VerifyOTP(ctx, "a@b.com", code)
	assert.ErrorIs(t, err, ErrOTPLocked)
	assert.Equal(t, ErrOTPLocked.Error(), err.Error())
	assert.Equal(t, KindSecurityViolation, KindOf(err))

	// A fresh code does not lift the lock.
	fresh, err := env.engine.CreateOTP(ctx, "a@b.com")
	require.NoError(t, err)
	_, err = env.engine.VerifyOTP(ctx, "a@b.com", fresh)
	assert.ErrorIs(t, err, ErrOTPLocked)

	env.clock.Advance(env.engine.config.OTP.LockoutDuration - time.Second)
	_, err = env.engine.VerifyOTP(ctx, "a@b.com", fresh)
	assert.ErrorIs(t, err, ErrOTPLocked)

	env.clock.Advance(2 * time.Second)
	_, err = env.engine.VerifyOTP(ctx, "a@b.com", fresh)
	assert.NotErrorIs(t, err, ErrOTPLocked)

	after, err := env.engine.CreateOTP(ctx, "a@b.com")
	require.NoError(t, err)
	res, err := env.engine.VerifyOTP(ctx, "a@b.com", after)
	require.NoError(t, err)
	assert.True(t, res.Verified)
}

func TestOTPLockoutSurvivesCacheFlush(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	code, err := env.engine.CreateOTP(ctx, "a@b.com")
	require.NoError(t, err)
	for i := 0; i < env.engine.config.OTP.MaxAttempts; i++ {
		_, _ = env.engine.VerifyOTP(ctx, "a@b.com", wrongCode(code))
	}
	assert.True(t, env.redis.Exists("gs:otl:a@b.com"))

	env.redis.FlushAll()
	_, err = env.engine.VerifyOTP(ctx, "a@b.com", code)
	assert.ErrorIs(t, err, ErrOTPLocked)
}

func TestOTPLockoutBackends(t *testing.T) {
	for _, backend := range []LockoutBackend{LockoutLayered, LockoutCache, LockoutDurable} {
		t.Run(backend.String(), func(t *testing.T) {
			env := newTestEnv(t, func(c *Config) {
				c.OTP.Lockout = backend
				c.OTP.MaxAttempts = 2
			})
			ctx := context.Background()

			code, err := env.engine.CreateOTP(ctx, "a@b.com")
			require.NoError(t, err)
			_, err = env.engine.VerifyOTP(ctx, "a@b.com", wrongCode(code))
			require.ErrorIs(t, err, ErrOTPInvalid)
			_, err = env.engine.VerifyOTP(ctx, "a@b.com", wrongCode(code))
			require.ErrorIs(t, err, ErrOTPLocked)
			_, err = env.engine.VerifyOTP(ctx, "a@b.com", code)
			assert.ErrorIs(t, err, ErrOTPLocked)
		})
	}
}

func TestOTPExpires(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	code, err := env.engine.CreateOTP(ctx, "a@b.com")
	require.NoError(t, err)

	env.clock.Advance(env.engine.config.OTP.TTL)
	_, err = env.engine.VerifyOTP(ctx, "a@b.com", code)
	assert.ErrorIs(t, err, ErrOTPExpired)
}

func TestOTPWithoutPendingCode(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.VerifyOTP(context.Background(), "nobody@b.com", "123456")
	assert.ErrorIs(t, err, ErrOTPNoPending)

	_, err = env.engine.VerifyOTP(context.Background(), "  ", "123456")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestOTPEmailIsNormalized(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	code, err := env.engine.CreateOTP(ctx, "  Alice@Example.COM ")
	require.NoError(t, err)

	res, err := env.engine.VerifyOTP(ctx, "alice@example.com", " "+code+" ")
	require.NoError(t, err)
	assert.True(t, res.Verified)
}

func TestOTPStoresOnlyKeyedHash(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	code, err := env.engine.CreateOTP(ctx, "a@b.com")
	require.NoError(t, err)

	rec, err := env.store.ActiveOTP(ctx, "a@b.com")
	require.NoError(t, err)
	assert.Len(t, rec.CodeHash, 32)
	assert.NotContains(t, string(rec.CodeHash), code)
	assert.Equal(t, 0, rec.Attempts)
	assert.Equal(t, env.engine.config.OTP.MaxAttempts, rec.MaxAttempts)
	assert.True(t, rec.ExpiresAt.Equal(env.clock.Now().Add(10*time.Minute)))

	// Another engine with different secrets cannot verify the stored hash.
	other := newTestEnv(t, func(c *Config) { c.OTP.HashKey = []byte("a-completely-different-otp-key-0123") })
	assert.NotEqual(t, env.engine.otpHash("a@b.com", code), other.engine.otpHash("a@b.com", code))
}

func TestRequestOTPCooldown(t *testing.T) {
	env := newTestEnv(t, withMetrics)
	ctx := context.Background()

	ok, err := env.engine.CanResendOTP(ctx, "a@b.com")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, env.engine.RequestOTP(ctx, "a@b.com"))
	first := env.notifier.last("a@b.com")
	assert.Regexp(t, sixDigits, first)

	assert.ErrorIs(t, env.engine.RequestOTP(ctx, "a@b.com"), ErrOTPResendCooldown)
	assert.Equal(t, uint64(1), env.engine.metrics.Value(MetricOTPResendThrottled))

	env.clock.Advance(59 * time.Second)
	ok, err = env.engine.CanResendOTP(ctx, "A@B.com")
	require.NoError(t, err)
	assert.False(t, ok)

	env.clock.Advance(time.Second)
	require.NoError(t, env.engine.RequestOTP(ctx, "a@b.com"))
	second := env.notifier.last("a@b.com")

	res, err := env.engine.VerifyOTP(ctx, "a@b.com", second)
	require.NoError(t, err)
	assert.True(t, res.Verified)
}

func TestRequestOTPDeliveryFailureIsNotFatal(t *testing.T) {
	env := newTestEnv(t, withMetrics)
	env.notifier.fail = true

	require.NoError(t, env.engine.RequestOTP(context.Background(), "a@b.com"))
	assert.Equal(t, uint64(1), env.engine.metrics.Value(MetricOTPDeliveryFailed))
	assert.Equal(t, uint64(1), env.engine.metrics.Value(MetricOTPCreated))
}

func TestOTPBackendUnavailable(t *testing.T) {
	env, flaky := newFlakyEnv(t, func(c *Config) { c.OTP.Lockout = LockoutCache })
	ctx := context.Background()

	code, err := env.engine.CreateOTP(ctx, "a@b.com")
	require.NoError(t, err)

	flaky.down.Store(true)
	_, err = env.engine.VerifyOTP(ctx, "a@b.com", code)
	assert.ErrorIs(t, err, ErrOTPUnavailable)
	assert.Equal(t, KindExternalService, KindOf(err))

	_, err = env.engine.CreateOTP(ctx, "a@b.com")
	assert.ErrorIs(t, err, ErrOTPUnavailable)

	_, err = env.engine.CanResendOTP(ctx, "a@b.com")
	assert.ErrorIs(t, err, ErrOTPUnavailable)
}

func TestOTPLockoutIsAuditedAsSecurityEvent(t *testing.T) {
	sink := NewChannelSink(64)
	base := newTestEnv(t)
	cfg := base.engine.config
	cfg.Audit.Enabled = true
	cfg.OTP.MaxAttempts = 1

	engine, err := New().WithConfig(cfg).WithDurableStore(base.store).WithAuditSink(sink).Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	ctx := context.Background()

	code, err := engine.CreateOTP(ctx, "a@b.com")
	require.NoError(t, err)
	_, err = engine.VerifyOTP(ctx, "a@b.com", wrongCode(code))
	require.ErrorIs(t, err, ErrOTPLocked)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-sink.Events():
			if ev.EventType != auditEventOTPLockout {
				continue
			}
			assert.True(t, ev.Security)
			assert.False(t, strings.Contains(ev.Metadata["email"], "a@b.com"))
			return
		case <-deadline:
			t.Fatal("expected otp_lockout audit event")
		}
	}
}
