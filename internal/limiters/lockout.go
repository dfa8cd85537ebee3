package limiters

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/goSession/internal/cache"
)

var (
	// ErrLockoutUnavailable indicates no lockout backend could answer.
	ErrLockoutUnavailable = errors.New("lockout backend unavailable")
)

// Lockout tracks per-identity OTP lockouts. Callers never branch on which
// backend sits behind it.
type Lockout interface {
	// Locked reports whether identity is locked at now.
	Locked(ctx context.Context, identity string, now time.Time) (bool, error)
	// Lock locks identity until the given instant.
	Lock(ctx context.Context, identity string, until time.Time) error
	// Clear removes any lock on identity.
	Clear(ctx context.Context, identity string) error
}

// CacheLockout keeps lock markers in the cache tier with TTL = remaining lock.
type CacheLockout struct {
	cache cache.Cache
	now   func() time.Time
}

// NewCacheLockout builds a cache-only lockout.
func NewCacheLockout(c cache.Cache, now func() time.Time) *CacheLockout {
	if now == nil {
		now = time.Now
	}
	return &CacheLockout{cache: c, now: now}
}

func (l *CacheLockout) key(identity string) string {
	return "otl:" + identity
}

func (l *CacheLockout) Locked(ctx context.Context, identity string, now time.Time) (bool, error) {
	raw, ok, err := l.cache.Get(ctx, l.key(identity))
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	if !ok {
		return false, nil
	}
	until, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		// Unreadable marker is still a lock marker.
		return true, nil
	}
	return now.Before(time.UnixMilli(until)), nil
}

func (l *CacheLockout) Lock(ctx context.Context, identity string, until time.Time) error {
	ttl := until.Sub(l.now())
	if ttl <= 0 {
		return nil
	}
	if err := l.cache.SetWithTTL(ctx, l.key(identity), strconv.FormatInt(until.UnixMilli(), 10), ttl); err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return nil
}

func (l *CacheLockout) Clear(ctx context.Context, identity string) error {
	if err := l.cache.Delete(ctx, l.key(identity)); err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return nil
}

// LockStore is the durable locked_until column behind DurableLockout.
type LockStore interface {
	OTPLockedUntil(ctx context.Context, email string) (time.Time, error)
	SetOTPLockedUntil(ctx context.Context, email string, until time.Time) error
	ClearOTPLock(ctx context.Context, email string) error
}

// DurableLockout reads and writes the locked_until column of OTP records.
type DurableLockout struct {
	store LockStore
}

// NewDurableLockout builds a store-backed lockout.
func NewDurableLockout(store LockStore) *DurableLockout {
	return &DurableLockout{store: store}
}

func (l *DurableLockout) Locked(ctx context.Context, identity string, now time.Time) (bool, error) {
	until, err := l.store.OTPLockedUntil(ctx, identity)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return !until.IsZero() && now.Before(until), nil
}

func (l *DurableLockout) Lock(ctx context.Context, identity string, until time.Time) error {
	if err := l.store.SetOTPLockedUntil(ctx, identity, until); err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return nil
}

func (l *DurableLockout) Clear(ctx context.Context, identity string) error {
	if err := l.store.ClearOTPLock(ctx, identity); err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return nil
}

// LayeredLockout checks the fast tier first and falls back to the durable
// column on a miss or a cache error. Writes go to both; the durable write
// decides success.
type LayeredLockout struct {
	fast    Lockout
	durable Lockout
	onError func(tier string, err error)
}

// NewLayeredLockout composes a cache and a durable lockout. onError, when set,
// observes fast-tier failures that were absorbed.
func NewLayeredLockout(fast, durable Lockout, onError func(tier string, err error)) *LayeredLockout {
	if onError == nil {
		onError = func(string, error) {}
	}
	return &LayeredLockout{fast: fast, durable: durable, onError: onError}
}

func (l *LayeredLockout) Locked(ctx context.Context, identity string, now time.Time) (bool, error) {
	locked, err := l.fast.Locked(ctx, identity, now)
	if err == nil && locked {
		return true, nil
	}
	if err != nil {
		l.onError("cache", err)
	}
	return l.durable.Locked(ctx, identity, now)
}

func (l *LayeredLockout) Lock(ctx context.Context, identity string, until time.Time) error {
	if err := l.fast.Lock(ctx, identity, until); err != nil {
		l.onError("cache", err)
	}
	return l.durable.Lock(ctx, identity, until)
}

func (l *LayeredLockout) Clear(ctx context.Context, identity string) error {
	if err := l.fast.Clear(ctx, identity); err != nil {
		l.onError("cache", err)
	}
	return l.durable.Clear(ctx, identity)
}
