package goSession

import (
	"fmt"
	"strings"
	"time"
)

// Config holds every engine setting. Build it from DefaultConfig and
// override fields; Builder.Build validates it.
type Config struct {
	JWT            JWTConfig
	Fingerprint    FingerprintConfig
	Revocation     RevocationConfig
	OTP            OTPConfig
	Timeouts       TimeoutConfig
	Audit          AuditConfig
	Metrics        MetricsConfig
	Security       SecurityConfig
	ValidationMode ValidationMode
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures both token families. Access and refresh tokens never
// share key material.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"

	// hs256: the HMAC secrets. ed25519: the private keys (raw or PEM).
	AccessSecret  []byte
	RefreshSecret []byte
	// ed25519 only.
	AccessPublicKey  []byte
	RefreshPublicKey []byte

	AccessKeyID  string
	RefreshKeyID string
	Issuer       string
	Audience     string
	Leeway       time.Duration
	MaxFutureIAT time.Duration

	// DefaultRole is minted into access tokens refreshed without a GrantResolver.
	DefaultRole string
}

/*
====================================
FINGERPRINT CONFIG
====================================
*/

// FingerprintConfig controls refresh-token device binding.
type FingerprintConfig struct {
	Enabled          bool
	IPv4PrefixOctets int
	IPv6PrefixGroups int
	// Key, when set, turns the fingerprint into an HMAC.
	Key []byte
}

/*
====================================
REVOCATION CONFIG
====================================
*/

// RevocationConfig controls the revocation chain.
type RevocationConfig struct {
	RedisPrefix string
	// MultiInstance declares that several processes share this deployment.
	// It requires an external cache.
	MultiInstance bool
	// CheckAccessTokens makes ValidateAccess consult the revocation chain.
	CheckAccessTokens bool
	// MemorySweepInterval bounds how long expired fallback entries linger.
	MemorySweepInterval time.Duration
}

/*
====================================
OTP CONFIG
====================================
*/

// LockoutBackend selects where OTP lockout state lives.
type LockoutBackend int

const (
	// LockoutLayered checks the cache first and falls back to the durable column.
	LockoutLayered LockoutBackend = iota
	// LockoutCache keeps lockouts only in the cache tier.
	LockoutCache
	// LockoutDurable keeps lockouts only in the durable store.
	LockoutDurable
)

func (b LockoutBackend) String() string {
	switch b {
	case LockoutLayered:
		return "layered"
	case LockoutCache:
		return "cache"
	case LockoutDurable:
		return "durable"
	default:
		return "unknown"
	}
}

// OTPConfig controls emailed one-time codes.
type OTPConfig struct {
	Digits          int
	TTL             time.Duration
	MaxAttempts     int
	LockoutDuration time.Duration
	ResendCooldown  time.Duration
	// HashKey keys the stored code hash. When empty a key is derived from
	// the refresh secret with HKDF.
	HashKey []byte
	// Retention is how long finished records are kept before PurgeExpired.
	Retention time.Duration
	Lockout   LockoutBackend
}

/*
====================================
RUNTIME CONFIG
====================================
*/

// TimeoutConfig bounds every storage call.
type TimeoutConfig struct {
	Cache   time.Duration
	Durable time.Duration
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters and histograms.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// SecurityConfig holds deployment hardening switches.
type SecurityConfig struct {
	// ProductionMode rejects configurations that are only acceptable in
	// development.
	ProductionMode bool
	// MinSecretBytes applies to hs256 secrets and the OTP hash key.
	MinSecretBytes int
}

// ValidationMode selects how indeterminate revocation checks resolve.
type ValidationMode int

const (
	// ModePermissive fails open when the durable tier cannot answer.
	ModePermissive ValidationMode = iota
	// ModeStrict consults the durable store on every unresolved lookup and
	// fails closed when it cannot answer.
	ModeStrict
)

func (m ValidationMode) String() string {
	switch m {
	case ModePermissive:
		return "permissive"
	case ModeStrict:
		return "strict"
	default:
		return "unknown"
	}
}

// MarshalText renders the mode name in JSON reports.
func (m ValidationMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns development-safe defaults. Signing secrets are
// always left empty.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     time.Hour,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "hs256",
			Leeway:        0,
			MaxFutureIAT:  10 * time.Minute,
			DefaultRole:   "user",
		},
		Fingerprint: FingerprintConfig{
			Enabled:          true,
			IPv4PrefixOctets: 2,
			IPv6PrefixGroups: 3,
		},
		Revocation: RevocationConfig{
			RedisPrefix:         "gs",
			MultiInstance:       false,
			CheckAccessTokens:   false,
			MemorySweepInterval: time.Minute,
		},
		OTP: OTPConfig{
			Digits:          6,
			TTL:             10 * time.Minute,
			MaxAttempts:     5,
			LockoutDuration: 15 * time.Minute,
			ResendCooldown:  60 * time.Second,
			Retention:       24 * time.Hour,
			Lockout:         LockoutLayered,
		},
		Timeouts: TimeoutConfig{
			Cache:   250 * time.Millisecond,
			Durable: 2 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Security: SecurityConfig{
			ProductionMode: false,
			MinSecretBytes: 32,
		},
		ValidationMode: ModePermissive,
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.AccessSecret = cloneBytes(cfg.JWT.AccessSecret)
	out.JWT.RefreshSecret = cloneBytes(cfg.JWT.RefreshSecret)
	out.JWT.AccessPublicKey = cloneBytes(cfg.JWT.AccessPublicKey)
	out.JWT.RefreshPublicKey = cloneBytes(cfg.JWT.RefreshPublicKey)
	out.Fingerprint.Key = cloneBytes(cfg.Fingerprint.Key)
	out.OTP.HashKey = cloneBytes(cfg.OTP.HashKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

func configErr(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrConfiguration}, args...)...)
}

// Validate reports the first invalid setting. Every error wraps
// ErrConfiguration.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return configErr("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return configErr("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RefreshTTL < c.JWT.AccessTTL {
		return configErr("JWT RefreshTTL must be >= AccessTTL")
	}
	switch strings.ToLower(c.JWT.SigningMethod) {
	case "hs256":
		if len(c.JWT.AccessSecret) == 0 {
			return configErr("JWT AccessSecret is required")
		}
		if len(c.JWT.RefreshSecret) == 0 {
			return configErr("JWT RefreshSecret is required")
		}
		if string(c.JWT.AccessSecret) == string(c.JWT.RefreshSecret) {
			return configErr("JWT AccessSecret and RefreshSecret must differ")
		}
	case "ed25519":
		if len(c.JWT.AccessSecret) == 0 || len(c.JWT.AccessPublicKey) == 0 {
			return configErr("ed25519 requires AccessSecret and AccessPublicKey")
		}
		if len(c.JWT.RefreshSecret) == 0 || len(c.JWT.RefreshPublicKey) == 0 {
			return configErr("ed25519 requires RefreshSecret and RefreshPublicKey")
		}
	default:
		return configErr("unsupported JWT signing method %q", c.JWT.SigningMethod)
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return configErr("JWT Leeway must be within [0, 2m]")
	}
	if c.JWT.MaxFutureIAT < 0 {
		return configErr("JWT MaxFutureIAT must be >= 0")
	}

	// Fingerprint
	if c.Fingerprint.IPv4PrefixOctets < 0 || c.Fingerprint.IPv4PrefixOctets > 4 {
		return configErr("Fingerprint IPv4PrefixOctets must be within [0, 4]")
	}
	if c.Fingerprint.IPv6PrefixGroups < 0 || c.Fingerprint.IPv6PrefixGroups > 8 {
		return configErr("Fingerprint IPv6PrefixGroups must be within [0, 8]")
	}

	// Revocation
	if strings.TrimSpace(c.Revocation.RedisPrefix) == "" {
		return configErr("Revocation RedisPrefix is required")
	}
	if c.Revocation.MemorySweepInterval < 0 {
		return configErr("Revocation MemorySweepInterval must be >= 0")
	}

	// OTP
	if c.OTP.Digits < 6 || c.OTP.Digits > 10 {
		return configErr("OTP Digits must be between 6 and 10")
	}
	if c.OTP.TTL <= 0 {
		return configErr("OTP TTL must be > 0")
	}
	if c.OTP.MaxAttempts <= 0 {
		return configErr("OTP MaxAttempts must be > 0")
	}
	if c.OTP.LockoutDuration <= 0 {
		return configErr("OTP LockoutDuration must be > 0")
	}
	if c.OTP.ResendCooldown < 0 {
		return configErr("OTP ResendCooldown must be >= 0")
	}
	if c.OTP.Retention < 0 {
		return configErr("OTP Retention must be >= 0")
	}
	switch c.OTP.Lockout {
	case LockoutLayered, LockoutCache, LockoutDurable:
	default:
		return configErr("invalid OTP Lockout backend")
	}

	// Timeouts
	if c.Timeouts.Cache <= 0 {
		return configErr("Timeouts Cache must be > 0")
	}
	if c.Timeouts.Durable <= 0 {
		return configErr("Timeouts Durable must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return configErr("Audit BufferSize must be > 0 when audit is enabled")
	}

	switch c.ValidationMode {
	case ModePermissive, ModeStrict:
	default:
		return configErr("invalid ValidationMode")
	}

	if c.Security.ProductionMode {
		min := c.Security.MinSecretBytes
		if min < 32 {
			min = 32
		}
		if c.ValidationMode != ModeStrict {
			return configErr("ProductionMode requires ModeStrict")
		}
		if strings.EqualFold(c.JWT.SigningMethod, "hs256") {
			if len(c.JWT.AccessSecret) < min || len(c.JWT.RefreshSecret) < min {
				return configErr("ProductionMode requires hs256 secrets of at least %d bytes", min)
			}
		}
		if len(c.OTP.HashKey) > 0 && len(c.OTP.HashKey) < min {
			return configErr("ProductionMode requires OTP HashKey of at least %d bytes", min)
		}
		if c.JWT.RefreshTTL > 30*24*time.Hour {
			return configErr("ProductionMode requires JWT RefreshTTL <= 30d")
		}
		if c.OTP.MaxAttempts > 10 {
			return configErr("ProductionMode requires OTP MaxAttempts <= 10")
		}
		if c.OTP.TTL > 15*time.Minute {
			return configErr("ProductionMode requires OTP TTL <= 15m")
		}
	}

	return nil
}
