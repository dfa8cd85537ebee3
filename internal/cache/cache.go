package cache

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable wraps every backend failure so callers can classify it
// without depending on the driver.
var ErrUnavailable = errors.New("cache backend unavailable")

// Cache is the key-value contract the engine needs from the fast tier.
// Get reports found=false with a nil error on a miss.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// Bounded applies a per-call timeout derived from the caller's context.
// A zero or negative timeout returns c unchanged.
func Bounded(c Cache, timeout time.Duration) Cache {
	if c == nil || timeout <= 0 {
		return c
	}
	return &bounded{inner: c, timeout: timeout}
}

type bounded struct {
	inner   Cache
	timeout time.Duration
}

func (b *bounded) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.inner.Get(ctx, key)
}

func (b *bounded) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.inner.SetWithTTL(ctx, key, value, ttl)
}

func (b *bounded) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.inner.Delete(ctx, key)
}

func (b *bounded) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.inner.Exists(ctx, key)
}
