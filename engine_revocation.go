package goSession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MrEthical07/goSession/internal/flows"
	"github.com/MrEthical07/goSession/internal/redact"
	"github.com/MrEthical07/goSession/internal/revocation"
	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/record"
	"github.com/google/uuid"
)

// Revoke marks jti as revoked until expiresAt. The cache tier is written
// first with a TTL of the remaining lifetime, then the durable store. An
// error is returned only when no tier accepted the write. A zero expiresAt
// means one refresh lifetime from now; an expiresAt in the past is a no-op.
func (e *Engine) Revoke(ctx context.Context, jti, userID string, expiresAt time.Time, reason string) error {
	if err := e.ready(); err != nil {
		return err
	}
	jti = strings.TrimSpace(jti)
	if jti == "" {
		return fmt.Errorf("%w: empty jti", ErrInvalidArgument)
	}

	now := e.now()
	if expiresAt.IsZero() {
		expiresAt = now.Add(e.config.JWT.RefreshTTL)
	}
	if !expiresAt.After(now) {
		return nil
	}
	at := record.Millis(now)

	cacheErr := e.revCache.Put(ctx, jti, revocation.Entry{At: at, ExpiresAt: expiresAt})
	durableErr := e.durable.InsertRevocation(ctx, record.Revocation{
		ID:        uuid.New(),
		JTI:       jti,
		UserID:    userID,
		Reason:    reason,
		RevokedAt: at,
		ExpiresAt: expiresAt.UTC(),
	})
	if errors.Is(durableErr, record.ErrConflict) {
		durableErr = nil
	}

	if err := e.tierWriteResult(ctx, "revoke", cacheErr, durableErr); err != nil {
		e.metricInc(MetricRevokeFailure)
		e.emitAudit(ctx, auditEventTokenRevoked, false, false, userID, jti, string(auditErrorCode(err)), nil)
		return err
	}

	e.metricInc(MetricRevoked)
	e.emitAudit(ctx, auditEventTokenRevoked, true, false, userID, jti, "", func() map[string]string {
		return map[string]string{"reason": reason}
	})
	return nil
}

// IsRevoked walks the revocation chain for jti. In strict mode an
// unanswerable lookup returns true together with an ErrBackendUnavailable
// error; in permissive mode it returns false and no error.
func (e *Engine) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	jti = strings.TrimSpace(jti)
	if jti == "" {
		return false, fmt.Errorf("%w: empty jti", ErrInvalidArgument)
	}
	return e.isRevoked(ctx, jti)
}

func (e *Engine) isRevoked(ctx context.Context, jti string) (bool, error) {
	start := e.now()
	d := e.revocations.Lookup(ctx, jti)
	e.metrics.Observe(MetricRevocationLookupLatency, e.now().Sub(start))
	return e.resolveDecision(ctx, "jti", d)
}

// InvalidateAllForUser writes one watermark at the current millisecond.
// Every token of the user issued at or before it stops verifying. The call
// returns only once the engine clock has left the watermark's millisecond,
// so tokens issued after it returns stay valid.
func (e *Engine) InvalidateAllForUser(ctx context.Context, userID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: empty user id", ErrInvalidArgument)
	}

	now := e.now()
	at := record.Millis(now)
	cacheErr := e.wmCache.Put(ctx, userID, revocation.Entry{At: at, ExpiresAt: now.Add(e.config.JWT.RefreshTTL)})
	durableErr := e.durable.UpsertWatermark(ctx, record.Watermark{UserID: userID, InvalidatedAt: at})

	if err := e.tierWriteResult(ctx, "invalidate_user", cacheErr, durableErr); err != nil {
		e.metricInc(MetricRevokeFailure)
		e.emitAudit(ctx, auditEventUserInvalidated, false, false, userID, "", string(auditErrorCode(err)), nil)
		return err
	}

	e.metricInc(MetricUserInvalidated)
	e.emitAudit(ctx, auditEventUserInvalidated, true, false, userID, "", "", nil)
	e.waitPastMillis(ctx, at)
	return nil
}

// watermarkSettleLimit bounds waitPastMillis in wall time for clocks that
// never move, such as a frozen clock injected with WithClock.
const watermarkSettleLimit = 5 * time.Millisecond

// waitPastMillis blocks until record.Millis(e.now()) is after at, ctx ends,
// or watermarkSettleLimit of wall time has passed.
func (e *Engine) waitPastMillis(ctx context.Context, at time.Time) {
	deadline := time.Now().Add(watermarkSettleLimit)
	for {
		now := e.now()
		if record.Millis(now).After(at) || !time.Now().Before(deadline) {
			return
		}
		wait := at.Add(time.Millisecond).Sub(now)
		if wait <= 0 || wait > time.Millisecond {
			wait = 100 * time.Microsecond
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// IsUserInvalidated reports whether a token issued at issuedAt predates the
// user's watermark. Comparison is in UTC at millisecond precision; a token
// issued in the watermark's millisecond is invalidated.
func (e *Engine) IsUserInvalidated(ctx context.Context, userID string, issuedAt time.Time) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false, fmt.Errorf("%w: empty user id", ErrInvalidArgument)
	}
	return e.isUserInvalidated(ctx, userID, issuedAt)
}

func (e *Engine) isUserInvalidated(ctx context.Context, userID string, issuedAt time.Time) (bool, error) {
	d := e.watermarks.Lookup(ctx, userID)
	revoked, err := e.resolveDecision(ctx, "watermark", d)
	if err != nil || !d.Found {
		return revoked, err
	}
	return !record.Millis(issuedAt).After(d.Entry.At), nil
}

func (e *Engine) resolveDecision(ctx context.Context, chain string, d revocation.Decision) (bool, error) {
	if d.Found {
		switch d.Tier {
		case revocation.TierCache:
			e.metricInc(MetricRevocationHitCache)
		case revocation.TierMemory:
			e.metricInc(MetricRevocationHitMemory)
		case revocation.TierDurable:
			e.metricInc(MetricRevocationHitDurable)
		}
		return true, nil
	}

	switch {
	case d.FailedClosed:
		e.metricInc(MetricRevocationFailClosed)
		e.emitAudit(ctx, auditEventRevocationDegraded, false, true, "", "", string(auditErrUnavailable), func() map[string]string {
			return map[string]string{"chain": chain, "policy": "fail_closed"}
		})
		return true, fmt.Errorf("%w: %v", ErrBackendUnavailable, d.Err)
	case d.FailedOpen:
		e.metricInc(MetricRevocationFailOpen)
		e.emitAudit(ctx, auditEventRevocationDegraded, false, false, "", "", string(auditErrUnavailable), func() map[string]string {
			return map[string]string{"chain": chain, "policy": "fail_open"}
		})
	}
	return false, nil
}

// tierWriteResult logs a partial write and fails only when every tier failed.
func (e *Engine) tierWriteResult(ctx context.Context, op string, cacheErr, durableErr error) error {
	switch {
	case cacheErr != nil && durableErr != nil:
		err := errors.Join(cacheErr, durableErr)
		e.log(ctx).LogAttrs(ctx, slog.LevelError, "revocation write failed on every tier",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%w: %s: %v", ErrBackendUnavailable, op, err)
	case cacheErr != nil:
		e.log(ctx).LogAttrs(ctx, slog.LevelWarn, "revocation cache write failed; durable store holds the entry",
			slog.String("op", op),
			slog.String("error", cacheErr.Error()),
		)
	case durableErr != nil:
		e.log(ctx).LogAttrs(ctx, slog.LevelWarn, "revocation durable write failed; cache holds the entry until expiry",
			slog.String("op", op),
			slog.String("error", durableErr.Error()),
		)
	}
	return nil
}

// ValidateAccess verifies an access token: signature and expiry, the token
// type, the jti when access revocation checks are enabled, and the user
// watermark. Every rejection returns ErrTokenInvalid.
func (e *Engine) ValidateAccess(ctx context.Context, token string) (*jwt.AccessClaims, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	res := flows.RunValidateAccess(ctx, strings.TrimSpace(token), e.flows.Validate)
	if res.Failure == flows.ValidateFailureNone {
		e.metricInc(MetricAccessValidated)
		return res.Claims, nil
	}

	e.metricInc(MetricAccessRejected)
	security := res.Failure == flows.ValidateFailureSignature
	level := slog.LevelDebug
	if security || res.Failure == flows.ValidateFailureUnavailable {
		level = slog.LevelWarn
	}
	attrs := []slog.Attr{
		slog.String("event", auditEventAccessRejected),
		slog.String("cause", res.Failure.String()),
	}
	if res.Claims != nil {
		attrs = append(attrs, slog.String("user_id", res.Claims.Subject), slog.String("jti", redact.ID(res.Claims.ID)))
	}
	e.log(ctx).LogAttrs(ctx, level, "access token rejected", attrs...)
	if security {
		e.emitAudit(ctx, auditEventAccessRejected, false, true, "", "", res.Failure.String(), nil)
	}
	return nil, ErrTokenInvalid
}

// PurgeExpired removes revocation rows whose tokens have expired and OTP
// records older than the configured retention.
func (e *Engine) PurgeExpired(ctx context.Context) (PurgeResult, error) {
	if err := e.ready(); err != nil {
		return PurgeResult{}, err
	}
	now := e.now()

	var (
		res  PurgeResult
		errs []error
		err  error
	)
	res.Revocations, err = e.durable.DeleteExpiredRevocations(ctx, now)
	if err != nil {
		errs = append(errs, fmt.Errorf("revocations: %w", err))
	}
	res.OTPs, err = e.durable.DeleteOTPsBefore(ctx, now.Add(-e.config.OTP.Retention))
	if err != nil {
		errs = append(errs, fmt.Errorf("otp records: %w", err))
	}
	if e.memory != nil {
		e.memory.Sweep()
	}

	e.metrics.Add(MetricPurgedRevocations, uint64(res.Revocations))
	e.metrics.Add(MetricPurgedOTPs, uint64(res.OTPs))
	e.emitAudit(ctx, auditEventPurge, len(errs) == 0, false, "", "", "", func() map[string]string {
		return map[string]string{
			"revocations": fmt.Sprint(res.Revocations),
			"otps":        fmt.Sprint(res.OTPs),
		}
	})

	if len(errs) > 0 {
		return res, fmt.Errorf("%w: purge: %v", ErrBackendUnavailable, errors.Join(errs...))
	}
	e.log(ctx).Info("purged expired records",
		slog.Int64("revocations", res.Revocations),
		slog.Int64("otps", res.OTPs),
	)
	return res, nil
}

func (e *Engine) durableRevocation(ctx context.Context, jti string) (revocation.Entry, bool, error) {
	rev, err := e.durable.GetRevocation(ctx, jti)
	if errors.Is(err, record.ErrNotFound) {
		return revocation.Entry{}, false, nil
	}
	if err != nil {
		return revocation.Entry{}, false, err
	}
	return revocation.Entry{At: rev.RevokedAt, ExpiresAt: rev.ExpiresAt}, true, nil
}

// durableWatermark backfills with one refresh lifetime, after which every
// token the watermark covers has expired on its own.
func (e *Engine) durableWatermark(ctx context.Context, userID string) (revocation.Entry, bool, error) {
	wm, err := e.durable.GetWatermark(ctx, userID)
	if errors.Is(err, record.ErrNotFound) {
		return revocation.Entry{}, false, nil
	}
	if err != nil {
		return revocation.Entry{}, false, err
	}
	return revocation.Entry{
		At:        record.Millis(wm.InvalidatedAt),
		ExpiresAt: e.now().Add(e.config.JWT.RefreshTTL),
	}, true, nil
}
