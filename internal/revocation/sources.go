package revocation

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/goSession/internal/cache"
)

var errCorruptEntry = errors.New("corrupt revocation entry")

// CacheSource reads and backfills entries stored in a cache.Cache.
// Entries without an expiry are kept for DefaultTTL.
type CacheSource struct {
	tier       Tier
	cache      cache.Cache
	prefix     string
	defaultTTL time.Duration
	now        func() time.Time
}

// NewCacheSource builds a cache-backed tier. tier is TierCache for Redis and
// TierMemory for the in-process fallback.
func NewCacheSource(tier Tier, c cache.Cache, prefix string, defaultTTL time.Duration, now func() time.Time) *CacheSource {
	if c == nil {
		return nil
	}
	if now == nil {
		now = time.Now
	}
	return &CacheSource{tier: tier, cache: c, prefix: prefix, defaultTTL: defaultTTL, now: now}
}

// Tier reports the tier this source answers for.
func (s *CacheSource) Tier() Tier { return s.tier }

func (s *CacheSource) key(k string) string { return s.prefix + k }

// Get decodes the cached entry for key. A missing key is not an error.
func (s *CacheSource) Get(ctx context.Context, key string) (Entry, bool, error) {
	raw, ok, err := s.cache.Get(ctx, s.key(key))
	if err != nil || !ok {
		return Entry{}, false, err
	}
	e, err := DecodeEntry(raw)
	if err != nil {
		// A present but unreadable key still means the key was revoked.
		return Entry{At: s.now().UTC()}, true, nil
	}
	return e, true, nil
}

// Put writes e with TTL bounded by its expiry.
func (s *CacheSource) Put(ctx context.Context, key string, e Entry) error {
	ttl := s.defaultTTL
	if !e.ExpiresAt.IsZero() {
		ttl = e.ExpiresAt.Sub(s.now())
	}
	if ttl <= 0 {
		return nil
	}
	return s.cache.SetWithTTL(ctx, s.key(key), EncodeEntry(e), ttl)
}

// Fill backfills an entry found in a later tier.
func (s *CacheSource) Fill(ctx context.Context, key string, e Entry) error {
	return s.Put(ctx, key, e)
}

// EncodeEntry renders "<atMillis>:<expiresMillis>"; a zero expiry encodes as 0.
func EncodeEntry(e Entry) string {
	exp := int64(0)
	if !e.ExpiresAt.IsZero() {
		exp = e.ExpiresAt.UnixMilli()
	}
	return strconv.FormatInt(e.At.UnixMilli(), 10) + ":" + strconv.FormatInt(exp, 10)
}

// DecodeEntry parses the EncodeEntry form. Times come back in UTC.
func DecodeEntry(raw string) (Entry, error) {
	atRaw, expRaw, ok := strings.Cut(raw, ":")
	if !ok {
		return Entry{}, errCorruptEntry
	}
	at, err := strconv.ParseInt(atRaw, 10, 64)
	if err != nil {
		return Entry{}, errCorruptEntry
	}
	exp, err := strconv.ParseInt(expRaw, 10, 64)
	if err != nil {
		return Entry{}, errCorruptEntry
	}
	e := Entry{At: time.UnixMilli(at).UTC()}
	if exp > 0 {
		e.ExpiresAt = time.UnixMilli(exp).UTC()
	}
	return e, nil
}

// FuncSource adapts a lookup function, typically a durable store query.
type FuncSource struct {
	T  Tier
	Fn func(ctx context.Context, key string) (Entry, bool, error)
}

// Tier reports T.
func (s FuncSource) Tier() Tier { return s.T }

// Get calls Fn.
func (s FuncSource) Get(ctx context.Context, key string) (Entry, bool, error) {
	return s.Fn(ctx, key)
}
