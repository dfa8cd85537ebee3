// Package appconfig loads credctl configuration from YAML and the
// environment with a fixed priority: explicit path, then CONFIG_PATH, then
// environment only. Environment variables always override file values.
package appconfig

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/internal/logx"
	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the root configuration of the operator binary.
type Config struct {
	Env      string         `yaml:"env" env:"ENV" env-default:"dev"`
	Log      LogConfig      `yaml:"log"`
	DB       DBConfig       `yaml:"db"`
	Redis    RedisConfig    `yaml:"redis"`
	JWT      JWTConfig      `yaml:"jwt"`
	Session  SessionConfig  `yaml:"session"`
	OTP      OTPConfig      `yaml:"otp"`
	Timeouts TimeoutConfig  `yaml:"timeouts"`
	Security SecurityConfig `yaml:"security"`
}

// LogConfig selects slog level and format.
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}

// DBConfig points at the Postgres durable store.
type DBConfig struct {
	DatabaseURL string `yaml:"db_url" env:"DATABASE_URL" env-required:"true"`
}

// RedisConfig is optional; an empty URL keeps the cache tier in process.
type RedisConfig struct {
	RedisURL string `yaml:"redis_url" env:"REDIS_URL"`
	Prefix   string `yaml:"prefix" env:"REDIS_PREFIX" env-default:"gs"`
}

// JWTConfig carries key material. For ed25519 the *_file fields point at PEM
// files and the secrets are ignored.
type JWTConfig struct {
	SigningMethod        string        `yaml:"signing_method" env:"JWT_SIGNING_METHOD" env-default:"hs256"`
	AccessSecret         string        `yaml:"access_secret" env:"JWT_ACCESS_SECRET"`
	RefreshSecret        string        `yaml:"refresh_secret" env:"JWT_REFRESH_SECRET"`
	AccessKeyFile        string        `yaml:"access_key_file" env:"JWT_ACCESS_KEY_FILE"`
	AccessPublicKeyFile  string        `yaml:"access_public_key_file" env:"JWT_ACCESS_PUBLIC_KEY_FILE"`
	RefreshKeyFile       string        `yaml:"refresh_key_file" env:"JWT_REFRESH_KEY_FILE"`
	RefreshPublicKeyFile string        `yaml:"refresh_public_key_file" env:"JWT_REFRESH_PUBLIC_KEY_FILE"`
	AccessTTL            time.Duration `yaml:"access_ttl" env:"JWT_ACCESS_TTL" env-default:"1h"`
	RefreshTTL           time.Duration `yaml:"refresh_ttl" env:"JWT_REFRESH_TTL" env-default:"168h"`
	Issuer               string        `yaml:"issuer" env:"JWT_ISSUER"`
	Audience             string        `yaml:"audience" env:"JWT_AUDIENCE"`
}

// SessionConfig maps onto the engine validation and fingerprint settings.
type SessionConfig struct {
	ValidationMode     string `yaml:"validation_mode" env:"VALIDATION_MODE" env-default:"strict"`
	MultiInstance      bool   `yaml:"multi_instance" env:"MULTI_INSTANCE"`
	FingerprintBinding bool   `yaml:"fingerprint_binding" env:"FINGERPRINT_BINDING" env-default:"true"`
	FingerprintKey     string `yaml:"fingerprint_key" env:"FINGERPRINT_KEY"`
	CheckAccessTokens  bool   `yaml:"check_access_tokens" env:"CHECK_ACCESS_TOKENS"`
}

// OTPConfig maps onto goSession.OTPConfig.
type OTPConfig struct {
	Digits          int           `yaml:"digits" env:"OTP_DIGITS" env-default:"6"`
	TTL             time.Duration `yaml:"ttl" env:"OTP_TTL" env-default:"10m"`
	MaxAttempts     int           `yaml:"max_attempts" env:"OTP_MAX_ATTEMPTS" env-default:"5"`
	LockoutDuration time.Duration `yaml:"lockout_duration" env:"OTP_LOCKOUT_DURATION" env-default:"15m"`
	ResendCooldown  time.Duration `yaml:"resend_cooldown" env:"OTP_RESEND_COOLDOWN" env-default:"60s"`
	Retention       time.Duration `yaml:"retention" env:"OTP_RETENTION" env-default:"24h"`
	HashKey         string        `yaml:"hash_key" env:"OTP_HASH_KEY"`
	Lockout         string        `yaml:"lockout" env:"OTP_LOCKOUT" env-default:"layered"`
}

// TimeoutConfig bounds cache, durable and whole-command calls.
type TimeoutConfig struct {
	Cache   time.Duration `yaml:"cache" env:"TIMEOUT_CACHE" env-default:"250ms"`
	Durable time.Duration `yaml:"durable" env:"TIMEOUT_DURABLE" env-default:"2s"`
	Command time.Duration `yaml:"command" env:"TIMEOUT_COMMAND" env-default:"30s"`
}

// SecurityConfig carries production hardening switches.
type SecurityConfig struct {
	ProductionMode bool `yaml:"production_mode" env:"PRODUCTION_MODE"`
}

// MustLoad panics when Load fails.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads path, or CONFIG_PATH when path is empty, and overlays the
// environment. With neither set only the environment is read.
func Load(path string) (*Config, error) {
	var cfg Config

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH or env vars: %w", err)
		}
		return &cfg, nil
	}

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file %q stat failed: %w", path, err)
	}
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to overlay env: %w", err)
	}
	return &cfg, nil
}

// Logger builds the process logger from the log section.
func (c *Config) Logger(service string) *slog.Logger {
	return logx.New(logx.Config{
		Service: service,
		Env:     c.Env,
		Level:   c.Log.Level,
		Format:  c.Log.Format,
	})
}

// Engine maps the file and env settings onto goSession.Config. Key files are
// read here. The result still goes through Builder validation.
func (c *Config) Engine() (goSession.Config, error) {
	out := goSession.DefaultConfig()

	out.JWT.SigningMethod = strings.ToLower(c.JWT.SigningMethod)
	out.JWT.AccessTTL = c.JWT.AccessTTL
	out.JWT.RefreshTTL = c.JWT.RefreshTTL
	out.JWT.Issuer = c.JWT.Issuer
	out.JWT.Audience = c.JWT.Audience

	switch out.JWT.SigningMethod {
	case "ed25519":
		keys := []struct {
			path string
			dst  *[]byte
		}{
			{c.JWT.AccessKeyFile, &out.JWT.AccessSecret},
			{c.JWT.AccessPublicKeyFile, &out.JWT.AccessPublicKey},
			{c.JWT.RefreshKeyFile, &out.JWT.RefreshSecret},
			{c.JWT.RefreshPublicKeyFile, &out.JWT.RefreshPublicKey},
		}
		for _, k := range keys {
			if k.path == "" {
				return goSession.Config{}, errors.New("ed25519 requires all four key files")
			}
			pem, err := os.ReadFile(k.path)
			if err != nil {
				return goSession.Config{}, fmt.Errorf("read key file: %w", err)
			}
			*k.dst = pem
		}
	default:
		out.JWT.AccessSecret = []byte(c.JWT.AccessSecret)
		out.JWT.RefreshSecret = []byte(c.JWT.RefreshSecret)
	}

	switch strings.ToLower(c.Session.ValidationMode) {
	case "strict":
		out.ValidationMode = goSession.ModeStrict
	case "permissive":
		out.ValidationMode = goSession.ModePermissive
	default:
		return goSession.Config{}, fmt.Errorf("unknown validation mode %q", c.Session.ValidationMode)
	}

	out.Revocation.RedisPrefix = c.Redis.Prefix
	out.Revocation.MultiInstance = c.Session.MultiInstance
	out.Revocation.CheckAccessTokens = c.Session.CheckAccessTokens
	out.Fingerprint.Enabled = c.Session.FingerprintBinding
	if c.Session.FingerprintKey != "" {
		out.Fingerprint.Key = []byte(c.Session.FingerprintKey)
	}

	out.OTP.Digits = c.OTP.Digits
	out.OTP.TTL = c.OTP.TTL
	out.OTP.MaxAttempts = c.OTP.MaxAttempts
	out.OTP.LockoutDuration = c.OTP.LockoutDuration
	out.OTP.ResendCooldown = c.OTP.ResendCooldown
	out.OTP.Retention = c.OTP.Retention
	if c.OTP.HashKey != "" {
		out.OTP.HashKey = []byte(c.OTP.HashKey)
	}
	switch strings.ToLower(c.OTP.Lockout) {
	case "layered":
		out.OTP.Lockout = goSession.LockoutLayered
	case "cache":
		out.OTP.Lockout = goSession.LockoutCache
	case "durable":
		out.OTP.Lockout = goSession.LockoutDurable
	default:
		return goSession.Config{}, fmt.Errorf("unknown otp lockout backend %q", c.OTP.Lockout)
	}

	out.Timeouts.Cache = c.Timeouts.Cache
	out.Timeouts.Durable = c.Timeouts.Durable
	out.Security.ProductionMode = c.Security.ProductionMode
	return out, nil
}
