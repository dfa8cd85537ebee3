package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the algorithm used for both token families.
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

const (
	// TypeAccess is the typ claim carried by access tokens.
	TypeAccess = "access"
	// TypeRefresh is the typ claim carried by refresh tokens.
	TypeRefresh = "refresh"
)

var (
	// ErrMissingSecret is returned by NewManager when a signing key is unset.
	ErrMissingSecret = errors.New("signing secret is not configured")
	// ErrSharedSecret is returned when access and refresh keys are identical.
	ErrSharedSecret = errors.New("access and refresh secrets must differ")
)

// KeyPair holds the signing material for one token family. For hs256 only
// Private is used; for ed25519 Public is required to verify.
type KeyPair struct {
	Private []byte
	Public  []byte
	KeyID   string
}

// Config configures a Manager.
type Config struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod SigningMethod
	Access        KeyPair
	Refresh       KeyPair
	Issuer        string
	Audience      string
	Leeway        time.Duration
	MaxFutureIAT  time.Duration

	// Now and NewID default to time.Now and a ULID generator respectively.
	Now   func() time.Time
	NewID func(time.Time) (string, error)
}

// Manager signs and verifies access and refresh tokens. The two families
// never share a key, so compromising one does not forge the other.
type Manager struct {
	config Config
}

// AccessClaims is the payload of an access token. It never carries a fingerprint.
type AccessClaims struct {
	Type        string   `json:"typ"`
	Role        string   `json:"role,omitempty"`
	Permissions []string `json:"perms,omitempty"`
	jwt.RegisteredClaims
}

// RefreshClaims is the payload of a refresh token.
type RefreshClaims struct {
	Type        string `json:"typ"`
	Fingerprint string `json:"fpt,omitempty"`
	jwt.RegisteredClaims
}

// NewManager validates cfg. A missing secret is a configuration error that
// must stop startup.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		return nil, errors.New("id generator required")
	}
	cfg.Access.KeyID = strings.TrimSpace(cfg.Access.KeyID)
	cfg.Refresh.KeyID = strings.TrimSpace(cfg.Refresh.KeyID)

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.Access.Private) == 0 {
			return nil, fmt.Errorf("access: %w", ErrMissingSecret)
		}
		if len(cfg.Refresh.Private) == 0 {
			return nil, fmt.Errorf("refresh: %w", ErrMissingSecret)
		}
		if string(cfg.Access.Private) == string(cfg.Refresh.Private) {
			return nil, ErrSharedSecret
		}
	case MethodEd25519:
		for name, kp := range map[string]KeyPair{"access": cfg.Access, "refresh": cfg.Refresh} {
			if len(kp.Private) == 0 || len(kp.Public) == 0 {
				return nil, fmt.Errorf("%s: %w", name, ErrMissingSecret)
			}
			if _, err := parseEdPrivateKey(kp.Private); err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			if _, err := parseEdPublicKey(kp.Public); err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
		}
		if string(cfg.Access.Public) == string(cfg.Refresh.Public) {
			return nil, ErrSharedSecret
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	return &Manager{config: cfg}, nil
}

// IssueAccess mints an access token for subject with a fresh jti.
func (j *Manager) IssueAccess(subject, role string, permissions []string) (string, *AccessClaims, error) {
	now := j.config.Now()
	jti, err := j.config.NewID(now)
	if err != nil {
		return "", nil, err
	}

	claims := &AccessClaims{
		Type:             TypeAccess,
		Role:             role,
		Permissions:      append([]string(nil), permissions...),
		RegisteredClaims: j.registered(subject, jti, now, j.config.AccessTTL),
	}
	signed, err := j.sign(claims, j.config.Access)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// IssueRefresh mints a refresh token. fingerprint is embedded only when non-empty.
func (j *Manager) IssueRefresh(subject, fingerprint string) (string, *RefreshClaims, error) {
	now := j.config.Now()
	jti, err := j.config.NewID(now)
	if err != nil {
		return "", nil, err
	}

	claims := &RefreshClaims{
		Type:             TypeRefresh,
		Fingerprint:      fingerprint,
		RegisteredClaims: j.registered(subject, jti, now, j.config.RefreshTTL),
	}
	signed, err := j.sign(claims, j.config.Refresh)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// ParseAccess verifies signature and expiry with the access key.
func (j *Manager) ParseAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := j.parse(tokenStr, claims, j.config.Access); err != nil {
		return nil, err
	}
	return claims, nil
}

// ParseRefresh verifies signature and expiry with the refresh key. The typ
// claim is left for the caller to check.
func (j *Manager) ParseRefresh(tokenStr string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := j.parse(tokenStr, claims, j.config.Refresh); err != nil {
		return nil, err
	}
	return claims, nil
}

// AccessTTL returns the configured access lifetime.
func (j *Manager) AccessTTL() time.Duration { return j.config.AccessTTL }

// RefreshTTL returns the configured refresh lifetime.
func (j *Manager) RefreshTTL() time.Duration { return j.config.RefreshTTL }

// Algorithm returns the JOSE alg name.
func (j *Manager) Algorithm() string { return j.getMethod().Alg() }

func (j *Manager) registered(subject, jti string, now time.Time, ttl time.Duration) jwt.RegisteredClaims {
	rc := jwt.RegisteredClaims{
		Subject:   subject,
		ID:        jti,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		Issuer:    j.config.Issuer,
	}
	if j.config.Audience != "" {
		rc.Audience = jwt.ClaimStrings{j.config.Audience}
	}
	return rc
}

func (j *Manager) sign(claims jwt.Claims, kp KeyPair) (string, error) {
	token := jwt.NewWithClaims(j.getMethod(), claims)
	if kp.KeyID != "" {
		token.Header["kid"] = kp.KeyID
	}
	key, err := j.signKey(kp)
	if err != nil {
		return "", err
	}
	return token.SignedString(key)
}

func (j *Manager) parse(tokenStr string, claims jwt.Claims, kp KeyPair) error {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{j.getMethod().Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(j.config.Now),
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}
	if j.config.Audience != "" {
		options = append(options, jwt.WithAudience(j.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != j.getMethod().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		if kp.KeyID != "" {
			kid, _ := t.Header["kid"].(string)
			if kid == "" {
				return nil, errors.New("missing kid")
			}
			if kid != kp.KeyID {
				return nil, errors.New("unknown kid")
			}
		}
		return j.verifyKey(kp)
	})
	if err != nil {
		return err
	}
	if !token.Valid {
		return jwt.ErrTokenInvalidClaims
	}

	iat, err := claims.GetIssuedAt()
	if err != nil {
		return err
	}
	if iat != nil && j.config.MaxFutureIAT > 0 {
		if iat.Time.After(j.config.Now().Add(j.config.MaxFutureIAT)) {
			return errors.New("token iat too far in the future")
		}
	}
	return nil
}

func (j *Manager) getMethod() jwt.SigningMethod {
	switch j.config.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (j *Manager) signKey(kp KeyPair) (interface{}, error) {
	switch j.config.SigningMethod {
	case MethodHS256:
		return kp.Private, nil
	default:
		return parseEdPrivateKey(kp.Private)
	}
}

func (j *Manager) verifyKey(kp KeyPair) (interface{}, error) {
	switch j.config.SigningMethod {
	case MethodHS256:
		return kp.Private, nil
	default:
		return parseEdPublicKey(kp.Public)
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
