package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// TokenRepo persists refresh tokens.  Only the SHA-256 hash of a token is
// stored; the raw value lives with the client.
type TokenRepo struct{ q DBTX }

func NewTokenRepo(q DBTX) *TokenRepo { return &TokenRepo{q: q} }

// Store inserts a refresh token hash row.
func (r *TokenRepo) Store(ctx context.Context, userID uint64, tokenHash string, exp, at time.Time) error {
	_, err := r.q.ExecContext(ctx,
		"INSERT INTO refresh_tokens (user_id, token_hash, expires_at, created_at) VALUES (?,?,?,?)",
		userID, tokenHash, exp, at)
	if isDuplicateKey(err) {
		return ErrDuplicate
	}
	return err
}

// Validate returns the owner of a token that exists, is not revoked and
// has not expired at now.  Anything else is ErrNotFound.
func (r *TokenRepo) Validate(ctx context.Context, tokenHash string, now time.Time) (uint64, error) {
	var (
		userID    uint64
		expiresAt time.Time
		revokedAt sql.NullTime
	)
	err := r.q.QueryRowContext(ctx,
		"SELECT user_id, expires_at, revoked_at FROM refresh_tokens WHERE token_hash=? LIMIT 1",
		tokenHash).Scan(&userID, &expiresAt, &revokedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	if revokedAt.Valid || !now.Before(expiresAt) {
		return 0, ErrNotFound
	}
	return userID, nil
}

// RevokeByHash marks a live token as revoked.  Revoking an unknown or
// already revoked token is ErrNotFound.
func (r *TokenRepo) RevokeByHash(ctx context.Context, tokenHash string, at time.Time) error {
	res, err := r.q.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=? WHERE token_hash=? AND revoked_at IS NULL",
		at, tokenHash)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RevokeAllForUser revokes every live token of a user.
func (r *TokenRepo) RevokeAllForUser(ctx context.Context, userID uint64, at time.Time) error {
	_, err := r.q.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=? WHERE user_id=? AND revoked_at IS NULL",
		at, userID)
	return err
}
