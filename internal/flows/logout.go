package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goSession/jwt"
)

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	ParseRefresh func(string) (*jwt.RefreshClaims, error)
	ParseAccess  func(string) (*jwt.AccessClaims, error)
	Revoke       func(ctx context.Context, jti, userID string, expiresAt time.Time, reason string) error
}

// LogoutResult names what was revoked.
type LogoutResult struct {
	UserID string
	JTI    string
	Err    error
}

var errTokenIdentity = errors.New("token missing jti or sub")

// RunLogoutRefresh revokes a refresh token's jti for its remaining lifetime.
// Only tokens that still verify can be revoked.
func RunLogoutRefresh(ctx context.Context, token, reason string, deps LogoutDeps) LogoutResult {
	claims, err := deps.ParseRefresh(token)
	if err != nil {
		return LogoutResult{Err: err}
	}
	if claims.Type != jwt.TypeRefresh {
		return LogoutResult{Err: errWrongType}
	}
	return revokeClaims(ctx, claims.Subject, claims.ID, claims.ExpiresAt.Time, reason, deps)
}

// RunRevokeAccess revokes an access token's jti for its remaining lifetime.
func RunRevokeAccess(ctx context.Context, token, reason string, deps LogoutDeps) LogoutResult {
	claims, err := deps.ParseAccess(token)
	if err != nil {
		return LogoutResult{Err: err}
	}
	if claims.Type != jwt.TypeAccess {
		return LogoutResult{Err: errNotAccess}
	}
	return revokeClaims(ctx, claims.Subject, claims.ID, claims.ExpiresAt.Time, reason, deps)
}

func revokeClaims(ctx context.Context, userID, jti string, expiresAt time.Time, reason string, deps LogoutDeps) LogoutResult {
	if userID == "" || jti == "" {
		return LogoutResult{Err: errTokenIdentity}
	}
	return LogoutResult{
		UserID: userID,
		JTI:    jti,
		Err:    deps.Revoke(ctx, jti, userID, expiresAt, reason),
	}
}
