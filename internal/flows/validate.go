package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goSession/jwt"
	gjwt "github.com/golang-jwt/jwt/v5"
)

// ValidateFailureKind classifies access-token validation failures.
type ValidateFailureKind int

const (
	ValidateFailureNone ValidateFailureKind = iota
	ValidateFailureParse
	ValidateFailureSignature
	ValidateFailureType
	ValidateFailureRevoked
	ValidateFailureUnavailable
	ValidateFailureUserInvalidated
)

func (k ValidateFailureKind) String() string {
	switch k {
	case ValidateFailureNone:
		return "none"
	case ValidateFailureParse:
		return "invalid_token"
	case ValidateFailureSignature:
		return "signature_invalid"
	case ValidateFailureType:
		return "wrong_type"
	case ValidateFailureRevoked:
		return "revoked"
	case ValidateFailureUnavailable:
		return "revocation_unavailable"
	case ValidateFailureUserInvalidated:
		return "user_invalidated"
	default:
		return "unknown"
	}
}

// ValidateResult returns either access claims or a classified failure.
type ValidateResult struct {
	Failure ValidateFailureKind
	Err     error
	Claims  *jwt.AccessClaims
}

// ValidateDeps captures access validation dependencies. IsRevoked is nil when
// per-jti access revocation is disabled.
type ValidateDeps struct {
	ParseAccess       func(string) (*jwt.AccessClaims, error)
	IsRevoked         func(ctx context.Context, jti string) (bool, error)
	IsUserInvalidated func(ctx context.Context, userID string, issuedAt time.Time) (bool, error)
	IssuedAt          func(jti string, iat time.Time) time.Time
}

var errNotAccess = errors.New("token type is not access")

// RunValidateAccess checks signature and expiry, the typ claim, optional jti
// revocation and the user watermark.
func RunValidateAccess(ctx context.Context, token string, deps ValidateDeps) ValidateResult {
	claims, err := deps.ParseAccess(token)
	if err != nil {
		if errors.Is(err, gjwt.ErrTokenSignatureInvalid) {
			return ValidateResult{Failure: ValidateFailureSignature, Err: err}
		}
		return ValidateResult{Failure: ValidateFailureParse, Err: err}
	}
	res := ValidateResult{Claims: claims}
	if claims.Type != jwt.TypeAccess {
		res.Failure, res.Err = ValidateFailureType, errNotAccess
		return res
	}
	if claims.ID == "" || claims.Subject == "" {
		res.Failure, res.Err = ValidateFailureParse, errors.New("token missing jti or sub")
		return res
	}

	if deps.IsRevoked != nil {
		revoked, err := deps.IsRevoked(ctx, claims.ID)
		if err != nil {
			res.Failure, res.Err = ValidateFailureUnavailable, err
			return res
		}
		if revoked {
			res.Failure, res.Err = ValidateFailureRevoked, errRevoked
			return res
		}
	}

	var iat time.Time
	if claims.IssuedAt != nil {
		iat = claims.IssuedAt.Time
	}
	invalidated, err := deps.IsUserInvalidated(ctx, claims.Subject, deps.IssuedAt(claims.ID, iat))
	if err != nil {
		res.Failure, res.Err = ValidateFailureUnavailable, err
		return res
	}
	if invalidated {
		res.Failure, res.Err = ValidateFailureUserInvalidated, errUserInvalidated
		return res
	}
	return res
}
