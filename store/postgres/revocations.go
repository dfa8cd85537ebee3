package postgres

import (
	"context"
	"time"

	"github.com/MrEthical07/goSession/record"
	"github.com/google/uuid"
)

// InsertRevocation returns record.ErrConflict when the jti is already revoked.
func (s *Store) InsertRevocation(ctx context.Context, rev record.Revocation) error {
	const op = "store.postgres.InsertRevocation"

	if rev.ID == uuid.Nil {
		rev.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_tokens (id, jti, user_id, reason, revoked_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rev.ID, rev.JTI, rev.UserID, rev.Reason, record.Millis(rev.RevokedAt), record.Millis(rev.ExpiresAt),
	)
	return wrap(op, err)
}

// GetRevocation returns record.ErrNotFound for an unknown jti.
func (s *Store) GetRevocation(ctx context.Context, jti string) (record.Revocation, error) {
	const op = "store.postgres.GetRevocation"

	var rev record.Revocation
	err := s.db.QueryRowContext(ctx, `
		SELECT id, jti, user_id, reason, revoked_at, expires_at
		FROM revoked_tokens
		WHERE jti = $1`, jti,
	).Scan(&rev.ID, &rev.JTI, &rev.UserID, &rev.Reason, &rev.RevokedAt, &rev.ExpiresAt)
	if err != nil {
		return record.Revocation{}, wrap(op, err)
	}
	rev.RevokedAt = rev.RevokedAt.UTC()
	rev.ExpiresAt = rev.ExpiresAt.UTC()
	return rev, nil
}

// DeleteExpiredRevocations removes rows that expired before before.
func (s *Store) DeleteExpiredRevocations(ctx context.Context, before time.Time) (int64, error) {
	const op = "store.postgres.DeleteExpiredRevocations"

	res, err := s.db.ExecContext(ctx, `DELETE FROM revoked_tokens WHERE expires_at < $1`, before.UTC())
	if err != nil {
		return 0, wrap(op, err)
	}
	n, err := res.RowsAffected()
	return n, wrap(op, err)
}

// UpsertWatermark keeps the later of the stored and the new instant.
func (s *Store) UpsertWatermark(ctx context.Context, wm record.Watermark) error {
	const op = "store.postgres.UpsertWatermark"

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_invalidations (user_id, invalidated_at)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET invalidated_at = GREATEST(user_invalidations.invalidated_at, EXCLUDED.invalidated_at)`,
		wm.UserID, record.Millis(wm.InvalidatedAt),
	)
	return wrap(op, err)
}

// GetWatermark returns record.ErrNotFound when the user was never invalidated.
func (s *Store) GetWatermark(ctx context.Context, userID string) (record.Watermark, error) {
	const op = "store.postgres.GetWatermark"

	wm := record.Watermark{UserID: userID}
	err := s.db.QueryRowContext(ctx,
		`SELECT invalidated_at FROM user_invalidations WHERE user_id = $1`, userID,
	).Scan(&wm.InvalidatedAt)
	if err != nil {
		return record.Watermark{}, wrap(op, err)
	}
	wm.InvalidatedAt = wm.InvalidatedAt.UTC()
	return wm, nil
}
