package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/MrEthical07/goSession/record"
	"github.com/google/uuid"
)

const otpColumns = `id, email, code_hash, attempts, max_attempts, created_at, expires_at,
	locked_until, verified_at, superseded_at`

// ReplaceActiveOTP supersedes the pending row for the email and inserts rec
// in one transaction. A concurrent replace surfaces as record.ErrConflict
// through the pending-email unique index.
func (s *Store) ReplaceActiveOTP(ctx context.Context, rec record.OTP) (err error) {
	const op = "store.postgres.ReplaceActiveOTP"

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	email := normEmail(rec.Email)
	created := record.Millis(rec.CreatedAt)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap(op, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `
		UPDATE otp_records SET superseded_at = $2
		WHERE email = $1 AND verified_at IS NULL AND superseded_at IS NULL`,
		email, created,
	); err != nil {
		return wrap(op, err)
	}

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO otp_records (id, email, code_hash, attempts, max_attempts, created_at, expires_at, locked_until)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, email, rec.CodeHash, rec.Attempts, rec.MaxAttempts, created,
		record.Millis(rec.ExpiresAt), nullTime(rec.LockedUntil),
	); err != nil {
		return wrap(op, err)
	}

	if err = tx.Commit(); err != nil {
		return wrap(op, err)
	}
	return nil
}

// ActiveOTP returns the pending row, expired or not.
func (s *Store) ActiveOTP(ctx context.Context, email string) (record.OTP, error) {
	const op = "store.postgres.ActiveOTP"

	row := s.db.QueryRowContext(ctx, `
		SELECT `+otpColumns+`
		FROM otp_records
		WHERE email = $1 AND verified_at IS NULL AND superseded_at IS NULL`,
		normEmail(email),
	)
	rec, err := scanOTP(row)
	if err != nil {
		return record.OTP{}, wrap(op, err)
	}
	return rec, nil
}

// IncrementOTPAttempts bumps the counter in place and returns the new value.
func (s *Store) IncrementOTPAttempts(ctx context.Context, id uuid.UUID) (int, error) {
	const op = "store.postgres.IncrementOTPAttempts"

	var attempts int
	err := s.db.QueryRowContext(ctx,
		`UPDATE otp_records SET attempts = attempts + 1 WHERE id = $1 RETURNING attempts`, id,
	).Scan(&attempts)
	if err != nil {
		return 0, wrap(op, err)
	}
	return attempts, nil
}

// MarkOTPVerified returns record.ErrNotFound when the row is no longer pending.
func (s *Store) MarkOTPVerified(ctx context.Context, id uuid.UUID, at time.Time) error {
	const op = "store.postgres.MarkOTPVerified"

	res, err := s.db.ExecContext(ctx, `
		UPDATE otp_records SET verified_at = $2
		WHERE id = $1 AND verified_at IS NULL AND superseded_at IS NULL`,
		id, record.Millis(at),
	)
	if err != nil {
		return wrap(op, err)
	}
	return requireRow(op, res)
}

// ConsumedOTP reports whether codeHash belongs to a verified or superseded row.
func (s *Store) ConsumedOTP(ctx context.Context, email string, codeHash []byte) (bool, error) {
	const op = "store.postgres.ConsumedOTP"

	var consumed bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM otp_records
			WHERE email = $1 AND code_hash = $2
			  AND (verified_at IS NOT NULL OR superseded_at IS NOT NULL)
		)`,
		normEmail(email), codeHash,
	).Scan(&consumed)
	if err != nil {
		return false, wrap(op, err)
	}
	return consumed, nil
}

// LatestOTPCreatedAt returns the creation time of the newest row for email.
func (s *Store) LatestOTPCreatedAt(ctx context.Context, email string) (time.Time, error) {
	const op = "store.postgres.LatestOTPCreatedAt"

	var created time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT created_at FROM otp_records
		WHERE email = $1
		ORDER BY created_at DESC
		LIMIT 1`,
		normEmail(email),
	).Scan(&created)
	if err != nil {
		return time.Time{}, wrap(op, err)
	}
	return created.UTC(), nil
}

// DeleteOTPsBefore removes rows that expired before the cutoff unless they
// still carry a live lock.
func (s *Store) DeleteOTPsBefore(ctx context.Context, before time.Time) (int64, error) {
	const op = "store.postgres.DeleteOTPsBefore"

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM otp_records
		WHERE expires_at < $1 AND (locked_until IS NULL OR locked_until < $1)`,
		before.UTC(),
	)
	if err != nil {
		return 0, wrap(op, err)
	}
	n, err := res.RowsAffected()
	return n, wrap(op, err)
}

// OTPLockedUntil returns the latest lock across the email's rows, or the
// zero time.
func (s *Store) OTPLockedUntil(ctx context.Context, email string) (time.Time, error) {
	const op = "store.postgres.OTPLockedUntil"

	var until sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(locked_until) FROM otp_records WHERE email = $1`, normEmail(email),
	).Scan(&until)
	if err != nil {
		return time.Time{}, wrap(op, err)
	}
	if !until.Valid {
		return time.Time{}, nil
	}
	return until.Time.UTC(), nil
}

// SetOTPLockedUntil writes the lock onto the newest row for the email.
func (s *Store) SetOTPLockedUntil(ctx context.Context, email string, until time.Time) error {
	const op = "store.postgres.SetOTPLockedUntil"

	res, err := s.db.ExecContext(ctx, `
		UPDATE otp_records SET locked_until = $2
		WHERE id = (
			SELECT id FROM otp_records
			WHERE email = $1
			ORDER BY created_at DESC
			LIMIT 1
		)`,
		normEmail(email), record.Millis(until),
	)
	if err != nil {
		return wrap(op, err)
	}
	return requireRow(op, res)
}

// ClearOTPLock unlocks every row of email.
func (s *Store) ClearOTPLock(ctx context.Context, email string) error {
	const op = "store.postgres.ClearOTPLock"

	_, err := s.db.ExecContext(ctx,
		`UPDATE otp_records SET locked_until = NULL WHERE email = $1 AND locked_until IS NOT NULL`,
		normEmail(email),
	)
	return wrap(op, err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOTP(row rowScanner) (record.OTP, error) {
	var (
		rec                          record.OTP
		locked, verified, superseded sql.NullTime
	)
	if err := row.Scan(
		&rec.ID, &rec.Email, &rec.CodeHash, &rec.Attempts, &rec.MaxAttempts,
		&rec.CreatedAt, &rec.ExpiresAt, &locked, &verified, &superseded,
	); err != nil {
		return record.OTP{}, err
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.ExpiresAt = rec.ExpiresAt.UTC()
	rec.LockedUntil = timePtr(locked)
	rec.VerifiedAt = timePtr(verified)
	rec.SupersededAt = timePtr(superseded)
	return rec, nil
}

func requireRow(op string, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return wrap(op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, record.ErrNotFound)
	}
	return nil
}
