package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrEthical07/goSession/internal/logx"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

const migrationsDir = "migrations"

// goose keeps its FS, dialect and logger in package globals.
var gooseMu sync.Mutex

type gooseLogger struct {
	l *slog.Logger
}

func (g gooseLogger) Printf(format string, v ...interface{}) {
	g.l.Info(fmt.Sprintf(format, v...), "component", "migrate")
}

func (g gooseLogger) Fatalf(format string, v ...interface{}) {
	g.l.Error(fmt.Sprintf(format, v...), "component", "migrate")
}

func setupGoose(l *slog.Logger) error {
	if l == nil {
		l = logx.Discard()
	}
	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{l: l})
	return goose.SetDialect("postgres")
}

// Migrate applies every pending migration.
func Migrate(ctx context.Context, db *sql.DB, l *slog.Logger) error {
	const op = "store.postgres.Migrate"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	gooseMu.Lock()
	defer gooseMu.Unlock()

	if err := setupGoose(l); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := goose.Up(db, migrationsDir); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Rollback reverts the most recent migration.
func Rollback(ctx context.Context, db *sql.DB, l *slog.Logger) error {
	const op = "store.postgres.Rollback"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	gooseMu.Lock()
	defer gooseMu.Unlock()

	if err := setupGoose(l); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := goose.Down(db, migrationsDir); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Version reports the applied schema version.
func Version(ctx context.Context, db *sql.DB) (int64, error) {
	const op = "store.postgres.Version"

	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	gooseMu.Lock()
	defer gooseMu.Unlock()

	if err := setupGoose(nil); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	v, err := goose.GetDBVersion(db)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return v, nil
}
