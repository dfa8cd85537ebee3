package flows

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/fingerprint"
	"github.com/MrEthical07/goSession/jwt"
	gjwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func refreshClaims(fpt string) *jwt.RefreshClaims {
	now := time.Now()
	return &jwt.RefreshClaims{
		Type:        jwt.TypeRefresh,
		Fingerprint: fpt,
		RegisteredClaims: gjwt.RegisteredClaims{
			Subject:   "user-1",
			ID:        "jti-1",
			IssuedAt:  gjwt.NewNumericDate(now),
			ExpiresAt: gjwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
}

func refreshDeps(claims *jwt.RefreshClaims) RefreshDeps {
	gen := fingerprint.NewGenerator(fingerprint.DefaultConfig())
	return RefreshDeps{
		ParseRefresh:       func(string) (*jwt.RefreshClaims, error) { return claims, nil },
		IsRevoked:          func(context.Context, string) (bool, error) { return false, nil },
		IsUserInvalidated:  func(context.Context, string, time.Time) (bool, error) { return false, nil },
		IssuedAt:           func(_ string, iat time.Time) time.Time { return iat },
		Fingerprint:        gen.Generate,
		FingerprintEnabled: true,
	}
}

func TestRunVerifyRefreshAcceptsMatchingClient(t *testing.T) {
	gen := fingerprint.NewGenerator(fingerprint.DefaultConfig())
	client := &fingerprint.ClientContext{Subnet: "10.0", UserAgent: "Chrome"}
	claims := refreshClaims(gen.Generate(client))

	res := RunVerifyRefresh(context.Background(), "tok", client, refreshDeps(claims))
	require.Equal(t, RefreshFailureNone, res.Failure)
	assert.Equal(t, "user-1", res.UserID)
	assert.Equal(t, "jti-1", res.JTI)
}

func TestRunVerifyRefreshRejectsForeignClient(t *testing.T) {
	gen := fingerprint.NewGenerator(fingerprint.DefaultConfig())
	claims := refreshClaims(gen.Generate(&fingerprint.ClientContext{Subnet: "10.0", UserAgent: "Chrome"}))

	res := RunVerifyRefresh(context.Background(), "tok", &fingerprint.ClientContext{Subnet: "99.9", UserAgent: "curl"}, refreshDeps(claims))
	assert.Equal(t, RefreshFailureFingerprintMismatch, res.Failure)
	assert.True(t, res.Failure.Security())
}

func TestRunVerifyRefreshMissingFingerprintIsPermissive(t *testing.T) {
	claims := refreshClaims("")
	res := RunVerifyRefresh(context.Background(), "tok", &fingerprint.ClientContext{Subnet: "99.9", UserAgent: "curl"}, refreshDeps(claims))
	assert.Equal(t, RefreshFailureNone, res.Failure)

	gen := fingerprint.NewGenerator(fingerprint.DefaultConfig())
	claims = refreshClaims(gen.Generate(&fingerprint.ClientContext{Subnet: "10.0", UserAgent: "Chrome"}))
	res = RunVerifyRefresh(context.Background(), "tok", nil, refreshDeps(claims))
	assert.Equal(t, RefreshFailureNone, res.Failure)
}

func TestRunVerifyRefreshOrder(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*jwt.RefreshClaims, *RefreshDeps)
		want   RefreshFailureKind
	}{
		{
			name: "parse error",
			mutate: func(_ *jwt.RefreshClaims, d *RefreshDeps) {
				d.ParseRefresh = func(string) (*jwt.RefreshClaims, error) { return nil, gjwt.ErrTokenExpired }
			},
			want: RefreshFailureParse,
		},
		{
			name: "tampered signature",
			mutate: func(_ *jwt.RefreshClaims, d *RefreshDeps) {
				d.ParseRefresh = func(string) (*jwt.RefreshClaims, error) {
					return nil, errors.Join(gjwt.ErrTokenSignatureInvalid, errors.New("bad"))
				}
			},
			want: RefreshFailureSignature,
		},
		{
			name:   "wrong type",
			mutate: func(c *jwt.RefreshClaims, _ *RefreshDeps) { c.Type = jwt.TypeAccess },
			want:   RefreshFailureType,
		},
		{
			name: "revoked before watermark",
			mutate: func(_ *jwt.RefreshClaims, d *RefreshDeps) {
				d.IsRevoked = func(context.Context, string) (bool, error) { return true, nil }
				d.IsUserInvalidated = func(context.Context, string, time.Time) (bool, error) {
					t.Fatal("watermark consulted after revocation hit")
					return false, nil
				}
			},
			want: RefreshFailureRevoked,
		},
		{
			name: "revocation backend error",
			mutate: func(_ *jwt.RefreshClaims, d *RefreshDeps) {
				d.IsRevoked = func(context.Context, string) (bool, error) { return true, errors.New("down") }
			},
			want: RefreshFailureRevocationUnavailable,
		},
		{
			name: "user invalidated",
			mutate: func(_ *jwt.RefreshClaims, d *RefreshDeps) {
				d.IsUserInvalidated = func(context.Context, string, time.Time) (bool, error) { return true, nil }
			},
			want: RefreshFailureUserInvalidated,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := refreshClaims("")
			deps := refreshDeps(claims)
			tt.mutate(claims, &deps)
			res := RunVerifyRefresh(context.Background(), "tok", nil, deps)
			assert.Equal(t, tt.want, res.Failure, res.Failure.String())
			assert.Error(t, res.Err)
		})
	}
}

func TestRunValidateAccess(t *testing.T) {
	now := time.Now()
	claims := &jwt.AccessClaims{
		Type: jwt.TypeAccess,
		Role: "member",
		RegisteredClaims: gjwt.RegisteredClaims{
			Subject:   "user-1",
			ID:        "jti-a",
			IssuedAt:  gjwt.NewNumericDate(now),
			ExpiresAt: gjwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	var revokedChecked bool
	deps := ValidateDeps{
		ParseAccess: func(string) (*jwt.AccessClaims, error) { return claims, nil },
		IsRevoked: func(context.Context, string) (bool, error) {
			revokedChecked = true
			return false, nil
		},
		IsUserInvalidated: func(context.Context, string, time.Time) (bool, error) { return false, nil },
		IssuedAt:          func(_ string, iat time.Time) time.Time { return iat },
	}

	res := RunValidateAccess(context.Background(), "tok", deps)
	require.Equal(t, ValidateFailureNone, res.Failure)
	assert.True(t, revokedChecked)

	deps.IsRevoked = nil
	deps.IsUserInvalidated = func(context.Context, string, time.Time) (bool, error) { return true, nil }
	res = RunValidateAccess(context.Background(), "tok", deps)
	assert.Equal(t, ValidateFailureUserInvalidated, res.Failure)

	claims.Type = jwt.TypeRefresh
	res = RunValidateAccess(context.Background(), "tok", deps)
	assert.Equal(t, ValidateFailureType, res.Failure)
}

func TestRunLogoutRefreshRevokesRemainingLifetime(t *testing.T) {
	claims := refreshClaims("")
	var gotJTI, gotUser string
	var gotExp time.Time
	deps := LogoutDeps{
		ParseRefresh: func(string) (*jwt.RefreshClaims, error) { return claims, nil },
		Revoke: func(_ context.Context, jti, userID string, exp time.Time, _ string) error {
			gotJTI, gotUser, gotExp = jti, userID, exp
			return nil
		},
	}

	res := RunLogoutRefresh(context.Background(), "tok", "logout", deps)
	require.NoError(t, res.Err)
	assert.Equal(t, "jti-1", gotJTI)
	assert.Equal(t, "user-1", gotUser)
	assert.True(t, gotExp.Equal(claims.ExpiresAt.Time))
}
