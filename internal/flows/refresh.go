package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goSession/fingerprint"
	"github.com/MrEthical07/goSession/jwt"
	gjwt "github.com/golang-jwt/jwt/v5"
)

// RefreshFailureKind classifies refresh verification failures for root-level
// audit and metrics. Callers surface every kind as the same rejection.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureParse
	RefreshFailureSignature
	RefreshFailureType
	RefreshFailureRevoked
	RefreshFailureRevocationUnavailable
	RefreshFailureUserInvalidated
	RefreshFailureFingerprintMismatch
)

func (k RefreshFailureKind) String() string {
	switch k {
	case RefreshFailureNone:
		return "none"
	case RefreshFailureParse:
		return "invalid_token"
	case RefreshFailureSignature:
		return "signature_invalid"
	case RefreshFailureType:
		return "wrong_type"
	case RefreshFailureRevoked:
		return "revoked"
	case RefreshFailureRevocationUnavailable:
		return "revocation_unavailable"
	case RefreshFailureUserInvalidated:
		return "user_invalidated"
	case RefreshFailureFingerprintMismatch:
		return "fingerprint_mismatch"
	default:
		return "unknown"
	}
}

// Security reports whether the failure is a security violation rather than a
// plain validation failure.
func (k RefreshFailureKind) Security() bool {
	return k == RefreshFailureFingerprintMismatch || k == RefreshFailureSignature
}

// RefreshResult carries either verified claims or failure metadata.
type RefreshResult struct {
	Failure RefreshFailureKind
	Err     error
	Claims  *jwt.RefreshClaims
	UserID  string
	JTI     string
}

// RefreshDeps captures refresh verification dependencies.
type RefreshDeps struct {
	ParseRefresh       func(string) (*jwt.RefreshClaims, error)
	IsRevoked          func(ctx context.Context, jti string) (bool, error)
	IsUserInvalidated  func(ctx context.Context, userID string, issuedAt time.Time) (bool, error)
	IssuedAt           func(jti string, iat time.Time) time.Time
	Fingerprint        func(*fingerprint.ClientContext) string
	FingerprintEnabled bool
}

var (
	errWrongType           = errors.New("token type is not refresh")
	errFingerprintMismatch = errors.New("fingerprint mismatch")
	errRevoked             = errors.New("token revoked")
	errUserInvalidated     = errors.New("user sessions invalidated")
)

// RunVerifyRefresh checks, in order and short-circuiting: signature and expiry
// against the refresh key, the typ claim, jti revocation and the user
// watermark, then the device fingerprint when both sides carry one.
func RunVerifyRefresh(ctx context.Context, token string, client *fingerprint.ClientContext, deps RefreshDeps) RefreshResult {
	claims, err := deps.ParseRefresh(token)
	if err != nil {
		if errors.Is(err, gjwt.ErrTokenSignatureInvalid) {
			return RefreshResult{Failure: RefreshFailureSignature, Err: err}
		}
		return RefreshResult{Failure: RefreshFailureParse, Err: err}
	}
	res := RefreshResult{Claims: claims, UserID: claims.Subject, JTI: claims.ID}

	if claims.Type != jwt.TypeRefresh {
		res.Failure, res.Err = RefreshFailureType, errWrongType
		return res
	}
	if claims.ID == "" || claims.Subject == "" {
		res.Failure, res.Err = RefreshFailureParse, errors.New("token missing jti or sub")
		return res
	}

	revoked, err := deps.IsRevoked(ctx, claims.ID)
	if err != nil {
		res.Failure, res.Err = RefreshFailureRevocationUnavailable, err
		return res
	}
	if revoked {
		res.Failure, res.Err = RefreshFailureRevoked, errRevoked
		return res
	}

	var iat time.Time
	if claims.IssuedAt != nil {
		iat = claims.IssuedAt.Time
	}
	invalidated, err := deps.IsUserInvalidated(ctx, claims.Subject, deps.IssuedAt(claims.ID, iat))
	if err != nil {
		res.Failure, res.Err = RefreshFailureRevocationUnavailable, err
		return res
	}
	if invalidated {
		res.Failure, res.Err = RefreshFailureUserInvalidated, errUserInvalidated
		return res
	}

	if deps.FingerprintEnabled && deps.Fingerprint != nil {
		current := deps.Fingerprint(client)
		if !fingerprint.Matches(claims.Fingerprint, current) {
			res.Failure, res.Err = RefreshFailureFingerprintMismatch, errFingerprintMismatch
			return res
		}
	}

	return res
}
