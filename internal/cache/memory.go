package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryCache is the single-instance fallback tier. It is safe for concurrent
// use but is never shared between processes.
type MemoryCache struct {
	entries sync.Map
	now     func() time.Time
}

// NewMemoryCache builds an empty cache. A nil clock means time.Now.
func NewMemoryCache(now func() time.Time) *MemoryCache {
	if now == nil {
		now = time.Now
	}
	return &MemoryCache{now: now}
}

func (c *MemoryCache) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	raw, ok := c.entries.Load(key)
	if !ok {
		return "", false, nil
	}
	e := raw.(memoryEntry)
	if !c.now().Before(e.expiresAt) {
		c.entries.CompareAndDelete(key, raw)
		return "", false, nil
	}
	return e.value, true, nil
}

func (c *MemoryCache) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ttl <= 0 {
		return nil
	}
	c.entries.Store(key, memoryEntry{value: value, expiresAt: c.now().Add(ttl)})
	return nil
}

func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.entries.Delete(key)
	return nil
}

func (c *MemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := c.Get(ctx, key)
	return ok, err
}

// Sweep drops expired entries and returns how many were removed.
func (c *MemoryCache) Sweep() int {
	now := c.now()
	removed := 0
	c.entries.Range(func(k, v any) bool {
		if !now.Before(v.(memoryEntry).expiresAt) {
			if c.entries.CompareAndDelete(k, v) {
				removed++
			}
		}
		return true
	})
	return removed
}

// Len counts live and not-yet-swept entries.
func (c *MemoryCache) Len() int {
	n := 0
	c.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
