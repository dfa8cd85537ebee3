package goSession

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MrEthical07/goSession/fingerprint"
	"github.com/MrEthical07/goSession/internal"
	"github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/internal/cache"
	"github.com/MrEthical07/goSession/internal/limiters"
	"github.com/MrEthical07/goSession/internal/logx"
	"github.com/MrEthical07/goSession/internal/revocation"
	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/store/memory"
	"github.com/redis/go-redis/v9"
)

const otpKeyInfo = "goSession otp v1"

// Builder assembles an Engine from injected handles. Every handle is owned
// by the caller and must outlive the Engine.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	durable   DurableStore
	notifier  Notifier
	grants    GrantResolver
	auditSink AuditSink
	logger    *slog.Logger
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

// WithConfig replaces the whole configuration. Build validates it.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the external cache tier. A nil client leaves the engine on
// the in-process fallback, which is only valid for a single instance.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithDurableStore sets the authoritative store. Strict mode requires one.
func (b *Builder) WithDurableStore(store DurableStore) *Builder {
	b.durable = store
	return b
}

// WithNotifier sets the OTP delivery channel. The default is a LogNotifier.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithGrantResolver sets how Refresh looks up role and permissions.
func (b *Builder) WithGrantResolver(r GrantResolver) *Builder {
	b.grants = r
	return b
}

// WithAuditSink sets the audit destination used when auditing is enabled.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the engine logger. A logger on the request context wins.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithClock replaces time.Now for issuance, expiry and lockout decisions.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles latency histograms. Counters must be enabled too.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine. Any error wraps
// ErrConfiguration and means the process must not start.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, fmt.Errorf("%w: builder already used", ErrConfiguration)
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.redis == nil && cfg.Revocation.MultiInstance {
		return nil, configErr("MultiInstance deployments require a redis client; the in-process fallback is not shared")
	}
	if b.durable == nil && cfg.ValidationMode == ModeStrict {
		return nil, configErr("ModeStrict requires a durable store")
	}
	if b.durable == nil && cfg.OTP.Lockout == LockoutDurable {
		return nil, configErr("durable OTP lockout requires a durable store")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = logx.Discard()
	}
	strict := cfg.ValidationMode == ModeStrict
	notifier := b.notifier
	if notifier == nil {
		notifier = NewLogNotifier(logger)
	}

	e := &Engine{
		config:   cfg,
		logger:   logger,
		now:      now,
		ids:      internal.NewIDGenerator(),
		notifier: notifier,
		grants:   b.grants,
		metrics:  NewMetrics(cfg.Metrics),
		audit: audit.NewDispatcher(audit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
			Logger:     logger,
		}, b.auditSink),
		fingerprints: fingerprint.NewGenerator(fingerprint.Config{
			IPv4PrefixOctets: cfg.Fingerprint.IPv4PrefixOctets,
			IPv6PrefixGroups: cfg.Fingerprint.IPv6PrefixGroups,
			Key:              cfg.Fingerprint.Key,
		}),
		stop: make(chan struct{}),
	}

	// -------- JWT --------
	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		SigningMethod: jwt.SigningMethod(strings.ToLower(cfg.JWT.SigningMethod)),
		Access: jwt.KeyPair{
			Private: cfg.JWT.AccessSecret,
			Public:  cfg.JWT.AccessPublicKey,
			KeyID:   cfg.JWT.AccessKeyID,
		},
		Refresh: jwt.KeyPair{
			Private: cfg.JWT.RefreshSecret,
			Public:  cfg.JWT.RefreshPublicKey,
			KeyID:   cfg.JWT.RefreshKeyID,
		},
		Issuer:       cfg.JWT.Issuer,
		Audience:     cfg.JWT.Audience,
		Leeway:       cfg.JWT.Leeway,
		MaxFutureIAT: cfg.JWT.MaxFutureIAT,
		Now:          now,
		NewID:        e.ids.NewAt,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	e.jwt = jm

	// -------- OTP HASH KEY --------
	e.otpKey = cloneBytes(cfg.OTP.HashKey)
	if len(e.otpKey) == 0 {
		e.otpKey, err = internal.DeriveKey(cfg.JWT.RefreshSecret, otpKeyInfo)
		if err != nil {
			return nil, fmt.Errorf("%w: derive otp key: %v", ErrConfiguration, err)
		}
	}

	// -------- STORAGE TIERS --------
	var front cache.Cache
	frontTier := revocation.TierMemory
	if b.redis != nil {
		front = cache.Bounded(cache.NewRedisCache(b.redis, cfg.Revocation.RedisPrefix), cfg.Timeouts.Cache)
		frontTier = revocation.TierCache
	} else {
		e.memory = cache.NewMemoryCache(now)
		front = e.memory
		logger.Warn("no redis client configured; revocation state is per-process",
			slog.String("mode", cfg.ValidationMode.String()))
	}

	durable := b.durable
	if durable == nil {
		durable = memory.New()
		e.durableDefaulted = true
	}
	e.durable = withDurableTimeout(durable, cfg.Timeouts.Durable)

	e.revCache = revocation.NewCacheSource(frontTier, front, "rv:", cfg.JWT.RefreshTTL, now)
	e.wmCache = revocation.NewCacheSource(frontTier, front, "wm:", cfg.JWT.RefreshTTL, now)
	e.revocations = revocation.NewChain("jti", strict, logger, e.revCache, revocation.FuncSource{
		T:  revocation.TierDurable,
		Fn: e.durableRevocation,
	})
	e.watermarks = revocation.NewChain("watermark", strict, logger, e.wmCache, revocation.FuncSource{
		T:  revocation.TierDurable,
		Fn: e.durableWatermark,
	})

	// -------- OTP LOCKOUT --------
	fastLock := limiters.NewCacheLockout(front, now)
	durableLock := limiters.NewDurableLockout(e.durable)
	switch cfg.OTP.Lockout {
	case LockoutCache:
		e.lockout = fastLock
	case LockoutDurable:
		e.lockout = durableLock
	default:
		e.lockout = limiters.NewLayeredLockout(fastLock, durableLock, func(tier string, err error) {
			logger.Warn("otp lockout tier failed", slog.String("tier", tier), slog.String("error", err.Error()))
		})
	}

	e.flows = e.buildFlowDeps()

	if e.memory != nil && cfg.Revocation.MemorySweepInterval > 0 {
		e.wg.Add(1)
		go e.sweepMemory(cfg.Revocation.MemorySweepInterval)
	}

	b.built = true
	return e, nil
}
