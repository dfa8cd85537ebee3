package goSession

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/goSession/fingerprint"
	"github.com/MrEthical07/goSession/internal"
	"github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/internal/cache"
	"github.com/MrEthical07/goSession/internal/flows"
	"github.com/MrEthical07/goSession/internal/limiters"
	"github.com/MrEthical07/goSession/internal/logx"
	"github.com/MrEthical07/goSession/internal/revocation"
	"github.com/MrEthical07/goSession/jwt"
)

// Engine issues, verifies and revokes session credentials and runs the
// emailed OTP flow. It is safe for concurrent use once built; every handle it
// holds was injected through the Builder.
type Engine struct {
	config Config
	logger *slog.Logger
	now    func() time.Time

	ids          *internal.IDGenerator
	jwt          *jwt.Manager
	fingerprints *fingerprint.Generator
	otpKey       []byte

	memory           *cache.MemoryCache
	durable          DurableStore
	durableDefaulted bool

	revCache    *revocation.CacheSource
	wmCache     *revocation.CacheSource
	revocations *revocation.Chain
	watermarks  *revocation.Chain
	lockout     limiters.Lockout

	notifier Notifier
	grants   GrantResolver
	flows    flows.Deps

	audit   *audit.Dispatcher
	metrics *Metrics

	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Close stops the memory sweeper and drains the audit dispatcher. Injected
// clients are left open.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		if e.stop != nil {
			close(e.stop)
		}
		e.wg.Wait()
		if e.audit != nil {
			e.audit.Close()
		}
	})
}

// AuditDropped returns how many audit events were discarded on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot copies the current counters and histograms.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return (*Metrics)(nil).Snapshot()
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() error {
	if e == nil || e.jwt == nil || e.durable == nil {
		return ErrEngineNotReady
	}
	return nil
}

func (e *Engine) log(ctx context.Context) *slog.Logger {
	return logx.From(ctx, e.logger)
}

/*
====================================
ISSUANCE
====================================
*/

// IssueAccess mints a stateless access token. It never embeds a fingerprint
// and touches no storage.
func (e *Engine) IssueAccess(ctx context.Context, identity VerifiedIdentity, role string, permissions []string) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}
	userID := strings.TrimSpace(identity.ID)
	if userID == "" {
		return "", fmt.Errorf("%w: empty identity", ErrInvalidArgument)
	}
	token, _, err := e.jwt.IssueAccess(userID, role, permissions)
	if err != nil {
		return "", err
	}
	e.metricInc(MetricAccessIssued)
	return token, nil
}

// IssueRefresh mints a refresh token. The fingerprint of client is embedded
// only when client is non-nil and binding is enabled.
func (e *Engine) IssueRefresh(ctx context.Context, identity VerifiedIdentity, client *ClientContext) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}
	userID := strings.TrimSpace(identity.ID)
	if userID == "" {
		return "", fmt.Errorf("%w: empty identity", ErrInvalidArgument)
	}
	token, _, err := e.jwt.IssueRefresh(userID, e.fingerprintFor(ctx, client))
	if err != nil {
		return "", err
	}
	e.metricInc(MetricRefreshIssued)
	return token, nil
}

// IssueSession mints an access and refresh token pair for a verified
// identity, the login step of the lifecycle.
func (e *Engine) IssueSession(ctx context.Context, identity VerifiedIdentity, role string, permissions []string, client *ClientContext) (TokenPair, error) {
	if err := e.ready(); err != nil {
		return TokenPair{}, err
	}
	userID := strings.TrimSpace(identity.ID)
	if userID == "" {
		return TokenPair{}, fmt.Errorf("%w: empty identity", ErrInvalidArgument)
	}

	access, accessClaims, err := e.jwt.IssueAccess(userID, role, permissions)
	if err != nil {
		return TokenPair{}, err
	}
	fpt := e.fingerprintFor(ctx, client)
	refresh, refreshClaims, err := e.jwt.IssueRefresh(userID, fpt)
	if err != nil {
		return TokenPair{}, err
	}
	e.metricInc(MetricAccessIssued)
	e.metricInc(MetricRefreshIssued)

	e.emitAudit(ctx, auditEventSessionIssued, true, false, userID, refreshClaims.ID, "", func() map[string]string {
		return map[string]string{"bound": fmt.Sprint(fpt != "")}
	})

	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessJTI:        accessClaims.ID,
		RefreshJTI:       refreshClaims.ID,
		AccessExpiresAt:  accessClaims.ExpiresAt.Time,
		RefreshExpiresAt: refreshClaims.ExpiresAt.Time,
	}, nil
}

// fingerprintFor falls back to the client values attached to ctx by the
// caller's transport when no explicit ClientContext is given.
func (e *Engine) fingerprintFor(ctx context.Context, client *ClientContext) string {
	if !e.config.Fingerprint.Enabled {
		return ""
	}
	return e.fingerprints.Generate(e.clientOrContext(ctx, client))
}

func (e *Engine) clientOrContext(ctx context.Context, client *ClientContext) *ClientContext {
	if client != nil {
		return client
	}
	return ClientContextFrom(ctx)
}

// issuedAt prefers the millisecond time embedded in the jti over the
// second-granular iat claim.
func (e *Engine) issuedAt(jti string, iat time.Time) time.Time {
	if t, err := internal.JTITime(jti); err == nil {
		return t
	}
	return iat
}

func (e *Engine) buildFlowDeps() flows.Deps {
	var accessRevoked func(context.Context, string) (bool, error)
	if e.config.Revocation.CheckAccessTokens {
		accessRevoked = e.isRevoked
	}
	return flows.Deps{
		Refresh: flows.RefreshDeps{
			ParseRefresh:       e.jwt.ParseRefresh,
			IsRevoked:          e.isRevoked,
			IsUserInvalidated:  e.isUserInvalidated,
			IssuedAt:           e.issuedAt,
			Fingerprint:        e.fingerprints.Generate,
			FingerprintEnabled: e.config.Fingerprint.Enabled,
		},
		Validate: flows.ValidateDeps{
			ParseAccess:       e.jwt.ParseAccess,
			IsRevoked:         accessRevoked,
			IsUserInvalidated: e.isUserInvalidated,
			IssuedAt:          e.issuedAt,
		},
		Logout: flows.LogoutDeps{
			ParseRefresh: e.jwt.ParseRefresh,
			ParseAccess:  e.jwt.ParseAccess,
			Revoke:       e.Revoke,
		},
		OTP: flows.OTPDeps{
			Store:           e.durable,
			Lockout:         e.lockout,
			Hash:            e.otpHash,
			Equal:           internal.EqualHash,
			Now:             e.now,
			LockoutDuration: e.config.OTP.LockoutDuration,
		},
	}
}

func (e *Engine) sweepMemory(interval time.Duration) {
	defer e.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			if n := e.memory.Sweep(); n > 0 {
				e.logger.Debug("swept expired fallback entries", slog.Int("count", n))
			}
		}
	}
}
