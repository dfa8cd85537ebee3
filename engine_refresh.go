package goSession

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MrEthical07/goSession/internal/flows"
	"github.com/MrEthical07/goSession/internal/redact"
	"github.com/MrEthical07/goSession/jwt"
)

// VerifyRefresh checks signature and expiry against the refresh key, the
// token type, jti revocation and the user watermark, then the device
// fingerprint. Every rejection returns ErrRefreshRejected; the cause is
// recorded in the audit stream, the log and the metrics only.
//
// A nil client falls back to the values attached with WithClientIP and
// WithUserAgent; when neither exists binding is skipped.
func (e *Engine) VerifyRefresh(ctx context.Context, token string, client *ClientContext) (*jwt.RefreshClaims, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	start := e.now()
	res := flows.RunVerifyRefresh(ctx, strings.TrimSpace(token), e.clientOrContext(ctx, client), e.flows.Refresh)
	e.metrics.Observe(MetricVerifyLatency, e.now().Sub(start))

	if res.Failure != flows.RefreshFailureNone {
		e.rejectRefresh(ctx, res)
		return nil, ErrRefreshRejected
	}

	e.metricInc(MetricRefreshVerified)
	e.emitAudit(ctx, auditEventRefreshVerified, true, false, res.UserID, res.JTI, "", nil)
	return res.Claims, nil
}

func (e *Engine) rejectRefresh(ctx context.Context, res flows.RefreshResult) {
	e.metricInc(MetricRefreshRejected)
	switch res.Failure {
	case flows.RefreshFailureFingerprintMismatch:
		e.metricInc(MetricRefreshFingerprintMismatch)
	case flows.RefreshFailureSignature:
		e.metricInc(MetricRefreshSignatureInvalid)
	}

	security := res.Failure.Security()
	cause := res.Err
	if security {
		cause = fmt.Errorf("%w: %s: %v", ErrSecurityViolation, res.Failure, res.Err)
	}
	attrs := []slog.Attr{
		slog.String("event", auditEventRefreshRejected),
		slog.String("cause", res.Failure.String()),
	}
	if res.UserID != "" {
		attrs = append(attrs, slog.String("user_id", res.UserID), slog.String("jti", redact.ID(res.JTI)))
	}
	if cause != nil {
		attrs = append(attrs, slog.String("error", cause.Error()))
	}
	level := slog.LevelDebug
	if security {
		level = slog.LevelWarn
		attrs = append(attrs, slog.String("kind", KindOf(cause).String()))
	} else if res.Failure == flows.RefreshFailureRevocationUnavailable {
		level = slog.LevelWarn
	}
	e.log(ctx).LogAttrs(ctx, level, "refresh token rejected", attrs...)

	e.emitAudit(ctx, auditEventRefreshRejected, false, security, res.UserID, res.JTI, res.Failure.String(), nil)
}

// Refresh verifies refreshToken and mints a new access token for its
// subject. Role and permissions come from the GrantResolver, or the
// configured default role when none is set. The refresh token is not rotated.
func (e *Engine) Refresh(ctx context.Context, refreshToken string, client *ClientContext) (string, *jwt.AccessClaims, error) {
	claims, err := e.VerifyRefresh(ctx, refreshToken, client)
	if err != nil {
		return "", nil, err
	}

	grant := Grant{Role: e.config.JWT.DefaultRole}
	if e.grants != nil {
		grant, err = e.grants.ResolveGrant(ctx, claims.Subject)
		if err != nil {
			return "", nil, fmt.Errorf("resolve grant: %w", err)
		}
	}

	access, accessClaims, err := e.jwt.IssueAccess(claims.Subject, grant.Role, grant.Permissions)
	if err != nil {
		return "", nil, err
	}
	e.metricInc(MetricAccessIssued)
	return access, accessClaims, nil
}

// Logout revokes the refresh token's jti for the rest of its lifetime. A
// token that no longer verifies returns ErrTokenInvalid.
func (e *Engine) Logout(ctx context.Context, refreshToken, reason string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if reason == "" {
		reason = "logout"
	}
	res := flows.RunLogoutRefresh(ctx, strings.TrimSpace(refreshToken), reason, e.flows.Logout)
	return e.finishLogout(ctx, res)
}

// RevokeAccess revokes an access token's jti. It only affects validation when
// Config.Revocation.CheckAccessTokens is set.
func (e *Engine) RevokeAccess(ctx context.Context, accessToken, reason string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if reason == "" {
		reason = "revoked"
	}
	res := flows.RunRevokeAccess(ctx, strings.TrimSpace(accessToken), reason, e.flows.Logout)
	return e.finishLogout(ctx, res)
}

func (e *Engine) finishLogout(ctx context.Context, res flows.LogoutResult) error {
	if res.Err == nil {
		return nil
	}
	if res.JTI == "" {
		e.log(ctx).Debug("logout with unverifiable token", slog.String("error", res.Err.Error()))
		return ErrTokenInvalid
	}
	return res.Err
}
