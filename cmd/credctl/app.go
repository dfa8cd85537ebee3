package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/internal/appconfig"
	"github.com/MrEthical07/goSession/store/postgres"
	"github.com/redis/go-redis/v9"
)

// sessionOps is the engine surface the commands drive.
type sessionOps interface {
	Revoke(ctx context.Context, jti, userID string, expiresAt time.Time, reason string) error
	InvalidateAllForUser(ctx context.Context, userID string) error
	PurgeExpired(ctx context.Context) (goSession.PurgeResult, error)
	SecurityReport() goSession.SecurityReport
}

type app struct {
	engine  sessionOps
	db      *sql.DB
	logger  *slog.Logger
	timeout time.Duration
	closers []func()
}

func (r *app) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

type opener func(ctx context.Context, configPath string) (*app, error)

// openApp wires config, Postgres, the optional Redis cache and the engine.
func openApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := appconfig.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger("credctl")

	engineCfg, err := cfg.Engine()
	if err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}

	rt := &app{logger: logger, timeout: cfg.Timeouts.Command}

	store, err := postgres.Open(ctx, cfg.DB.DatabaseURL)
	if err != nil {
		return nil, err
	}
	rt.db = store.DB()
	rt.closers = append(rt.closers, func() { _ = store.Close() })

	builder := goSession.New().
		WithConfig(engineCfg).
		WithDurableStore(store).
		WithLogger(logger)

	if cfg.Redis.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.Redis.RedisURL)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("redis url: %w", err)
		}
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			rt.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		rt.closers = append(rt.closers, func() { _ = rdb.Close() })
		builder = builder.WithRedis(rdb)
	}

	engine, err := builder.Build()
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.engine = engine
	rt.closers = append(rt.closers, engine.Close)

	logger.Debug("app_ready", "redis", cfg.Redis.RedisURL != "", "mode", engineCfg.ValidationMode.String())
	return rt, nil
}
