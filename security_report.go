package goSession

import "time"

// SecurityReport is a read-only snapshot of the engine's security posture.
// StrictMode and RevocationTiers describe the revocation chain as built, not
// the requested config.
type SecurityReport struct {
	ProductionMode        bool
	SigningAlgorithm      string
	ValidationMode        ValidationMode
	StrictMode            bool
	AccessTTL             time.Duration
	RefreshTTL            time.Duration
	RefreshRotation       bool
	FingerprintBinding    bool
	FingerprintKeyed      bool
	CacheTier             string
	DurableTier           string
	RevocationTiers       []string
	MultiInstance         bool
	AccessRevocationCheck bool
	OTP                   OTPReport
	AuditEnabled          bool
	MetricsEnabled        bool
}

// OTPReport is the OTP part of SecurityReport.
type OTPReport struct {
	Digits          int
	TTL             time.Duration
	MaxAttempts     int
	LockoutDuration time.Duration
	ResendCooldown  time.Duration
	LockoutBackend  string
	KeyDerived      bool
}

// SecurityReport returns the current posture. It is safe on a nil Engine.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil || e.jwt == nil {
		return SecurityReport{}
	}

	cacheTier := "redis"
	if e.memory != nil {
		cacheTier = "memory"
	}
	durableTier := "external"
	if e.durableDefaulted {
		durableTier = "in-process"
	}
	tiers := e.revocations.Tiers()
	tierNames := make([]string, 0, len(tiers))
	for _, t := range tiers {
		tierNames = append(tierNames, string(t))
	}

	return SecurityReport{
		ProductionMode:        e.config.Security.ProductionMode,
		SigningAlgorithm:      e.jwt.Algorithm(),
		ValidationMode:        e.config.ValidationMode,
		StrictMode:            e.revocations.Strict(),
		AccessTTL:             e.jwt.AccessTTL(),
		RefreshTTL:            e.jwt.RefreshTTL(),
		FingerprintBinding:    e.config.Fingerprint.Enabled,
		FingerprintKeyed:      len(e.config.Fingerprint.Key) > 0,
		CacheTier:             cacheTier,
		DurableTier:           durableTier,
		RevocationTiers:       tierNames,
		MultiInstance:         e.config.Revocation.MultiInstance,
		AccessRevocationCheck: e.config.Revocation.CheckAccessTokens,
		OTP: OTPReport{
			Digits:          e.config.OTP.Digits,
			TTL:             e.config.OTP.TTL,
			MaxAttempts:     e.config.OTP.MaxAttempts,
			LockoutDuration: e.config.OTP.LockoutDuration,
			ResendCooldown:  e.config.OTP.ResendCooldown,
			LockoutBackend:  e.config.OTP.Lockout.String(),
			KeyDerived:      len(e.config.OTP.HashKey) == 0,
		},
		AuditEnabled:   e.audit != nil,
		MetricsEnabled: e.metrics.Enabled(),
	}
}
