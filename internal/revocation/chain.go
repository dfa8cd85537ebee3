package revocation

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Tier names one link of the lookup chain.
type Tier string

const (
	TierNone    Tier = ""
	TierCache   Tier = "cache"
	TierMemory  Tier = "memory"
	TierDurable Tier = "durable"
)

// Entry is what a tier knows about a key. At is the revocation or
// invalidation instant; ExpiresAt bounds how long the entry matters.
type Entry struct {
	At        time.Time
	ExpiresAt time.Time
}

// Source is one tier. Get returns found=false with a nil error on a definite miss.
type Source interface {
	Tier() Tier
	Get(ctx context.Context, key string) (Entry, bool, error)
}

// Filler is implemented by tiers that can be backfilled after a later tier hit.
type Filler interface {
	Fill(ctx context.Context, key string, e Entry) error
}

// Decision is the single auditable outcome of a chain lookup.
type Decision struct {
	Found        bool
	Entry        Entry
	Tier         Tier
	Consulted    []Tier
	FailedClosed bool
	FailedOpen   bool
	Err          error
}

// Revoked folds the fail-closed policy into one answer.
func (d Decision) Revoked() bool {
	return d.Found || d.FailedClosed
}

// Indeterminate reports that no tier could answer definitively.
func (d Decision) Indeterminate() bool {
	return d.FailedClosed || d.FailedOpen
}

// Chain consults its sources in a fixed order.
//
// In strict mode every unresolved lookup reaches the durable tier and an
// unanswerable lookup fails closed. In permissive mode the durable tier is only
// consulted after an earlier tier errored, and an unanswerable lookup fails open.
type Chain struct {
	name    string
	sources []Source
	strict  bool
	logger  *slog.Logger
}

// NewChain orders sources as given. Nil sources are skipped.
func NewChain(name string, strict bool, logger *slog.Logger, sources ...Source) *Chain {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	c := &Chain{name: name, strict: strict, logger: logger}
	for _, s := range sources {
		if s == nil {
			continue
		}
		if cs, ok := s.(*CacheSource); ok && cs == nil {
			continue
		}
		c.sources = append(c.sources, s)
	}
	return c
}

// Strict reports the chain's failure policy.
func (c *Chain) Strict() bool {
	return c != nil && c.strict
}

// Tiers lists the configured tiers in lookup order.
func (c *Chain) Tiers() []Tier {
	out := make([]Tier, 0, len(c.sources))
	for _, s := range c.sources {
		out = append(out, s.Tier())
	}
	return out
}

// Lookup walks the chain for key.
func (c *Chain) Lookup(ctx context.Context, key string) Decision {
	var (
		d       Decision
		lastErr error
	)

	for i, src := range c.sources {
		tier := src.Tier()
		if tier == TierDurable && !c.strict && lastErr == nil {
			break
		}

		e, found, err := src.Get(ctx, key)
		d.Consulted = append(d.Consulted, tier)
		d.Tier = tier
		if err != nil {
			lastErr = err
			c.logger.LogAttrs(ctx, slog.LevelWarn, "revocation tier lookup failed",
				slog.String("chain", c.name),
				slog.String("tier", string(tier)),
				slog.String("error", err.Error()),
			)
			continue
		}
		if found {
			c.backfill(ctx, key, e, c.sources[:i])
			d.Found = true
			d.Entry = e
			return d
		}
		if tier == TierDurable {
			// The authoritative tier answered; earlier tier errors no longer matter.
			lastErr = nil
		}
	}

	if lastErr == nil {
		return d
	}
	d.Err = lastErr
	if c.strict {
		d.FailedClosed = true
	} else {
		d.FailedOpen = true
	}
	c.logger.LogAttrs(ctx, slog.LevelWarn, "revocation lookup indeterminate",
		slog.String("chain", c.name),
		slog.Bool("fail_closed", d.FailedClosed),
	)
	return d
}

func (c *Chain) backfill(ctx context.Context, key string, e Entry, earlier []Source) {
	if len(earlier) == 0 || errors.Is(ctx.Err(), context.Canceled) {
		return
	}
	for _, src := range earlier {
		f, ok := src.(Filler)
		if !ok {
			continue
		}
		if err := f.Fill(ctx, key, e); err != nil {
			c.logger.LogAttrs(ctx, slog.LevelDebug, "revocation backfill failed",
				slog.String("chain", c.name),
				slog.String("tier", string(src.Tier())),
				slog.String("error", err.Error()),
			)
		}
	}
}
