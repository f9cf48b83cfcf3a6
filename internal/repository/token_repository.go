package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// TokenRepo stores refresh tokens by their SHA-256 hash. Times are unix
// seconds so the same statements run on MySQL and SQLite.
type TokenRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewTokenRepo returns a TokenRepo bound to db.
func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{db: db, now: time.Now} }

// Store records a freshly issued refresh token.
func (r *TokenRepo) Store(ctx context.Context, userID uint64, hash string, exp time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (user_id, token_hash, expires_at) VALUES (?, ?, ?)`,
		userID, hash, exp.Unix())
	return err
}

// Consume revokes a live token and returns its owner. A token can be
// consumed once; unknown, expired and already revoked tokens yield
// ErrNotFound.
func (r *TokenRepo) Consume(ctx context.Context, hash string) (uint64, error) {
	var owner uint64
	err := WithTx(ctx, r.db, func(tx *sql.Tx) error {
		now := r.now().Unix()
		err := tx.QueryRowContext(ctx,
			`SELECT user_id FROM refresh_tokens
			 WHERE token_hash = ? AND revoked_at IS NULL AND expires_at >= ? LIMIT 1`,
			hash, now).Scan(&owner)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE refresh_tokens SET revoked_at = ? WHERE token_hash = ? AND revoked_at IS NULL`,
			now, hash)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
	return owner, err
}

// Revoke marks one token as revoked. Unknown tokens are ignored.
func (r *TokenRepo) Revoke(ctx context.Context, hash string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = ? WHERE token_hash = ? AND revoked_at IS NULL`,
		r.now().Unix(), hash)
	return err
}

// RevokeUser revokes every live token of a user and reports how many were
// affected.
func (r *TokenRepo) RevokeUser(ctx context.Context, userID uint64) (int64, error) {
	now := r.now().Unix()
	res, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = ?
		 WHERE user_id = ? AND revoked_at IS NULL AND expires_at >= ?`,
		now, userID, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Purge deletes tokens that expired or were revoked before cutoff.
func (r *TokenRepo) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at < ? OR revoked_at < ?`,
		cutoff.Unix(), cutoff.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
