package goSession

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/store/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.AccessSecret = []byte("access-secret-0123456789abcdef-0123")
	cfg.JWT.RefreshSecret = []byte("refresh-secret-0123456789abcdef-012")
	cfg.Revocation.MemorySweepInterval = 0
	return cfg
}

type recordingNotifier struct {
	mu    sync.Mutex
	codes map[string][]string
	fail  bool
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{codes: map[string][]string{}}
}

func (n *recordingNotifier) SendOTPCode(_ context.Context, email, code string, _ int) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return false
	}
	n.codes[email] = append(n.codes[email], code)
	return true
}

func (n *recordingNotifier) last(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	codes := n.codes[email]
	if len(codes) == 0 {
		return ""
	}
	return codes[len(codes)-1]
}

type testEnv struct {
	engine   *Engine
	clock    *testClock
	redis    *miniredis.Miniredis
	store    *memory.Store
	notifier *recordingNotifier
}

type envOption func(*Config)

func strictMode(c *Config) { c.ValidationMode = ModeStrict }

// newTestEnv builds an engine over miniredis and the in-memory durable store.
func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	return newTestEnvWith(t, nil, opts...)
}

// newTestEnvWith lets wrap decorate the durable store handed to the engine.
func newTestEnvWith(t *testing.T, wrap func(DurableStore) DurableStore, opts ...envOption) *testEnv {
	t.Helper()

	cfg := testConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	env := &testEnv{
		clock:    newTestClock(),
		redis:    mr,
		store:    memory.New(),
		notifier: newRecordingNotifier(),
	}
	var durable DurableStore = env.store
	if wrap != nil {
		durable = wrap(durable)
	}
	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithDurableStore(durable).
		WithNotifier(env.notifier).
		WithClock(env.clock.Now).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	env.engine = engine
	return env
}

func alice() VerifiedIdentity {
	return VerifiedIdentity{ID: "user-alice", Email: "alice@example.com", Name: "Alice"}
}
