// Package postgres is the durable tier backed by PostgreSQL. Connections go
// through a pgx pool exposed as database/sql so goose migrations and the
// store share one pool.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goSession/record"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// Store implements the engine's DurableStore over revoked_tokens,
// user_invalidations and otp_records.
type Store struct {
	db   *sql.DB
	pool *pgxpool.Pool
}

// Open parses dsn, opens a pgx pool and checks connectivity. It does not
// run migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	const op = "store.postgres.Open"

	conf, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: parse dsn: %w", op, err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, conf)
	if err != nil {
		return nil, fmt.Errorf("%s: open pool: %w", op, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: ping: %w", op, err)
	}

	return &Store{db: stdlib.OpenDBFromPool(pool), pool: pool}, nil
}

// New wraps an existing handle. Close leaves the handle's owner in charge.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle, for migrations.
func (s *Store) DB() *sql.DB { return s.db }

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return errors.New("store.postgres.Ping: database is nil")
	}
	return s.db.PingContext(ctx)
}

// Close releases the pool opened by Open.
func (s *Store) Close() error {
	if s.pool == nil {
		return nil
	}
	err := s.db.Close()
	s.pool.Close()
	return err
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, record.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return fmt.Errorf("%s: %w", op, record.ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func normEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: record.Millis(*t), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	u := t.Time.UTC()
	return &u
}
