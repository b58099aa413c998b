package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"absence-api/internal/model"
)

// TokenRepository persists revoked access tokens. Expiry bookkeeping lives in
// the blacklist service; this layer is plain row access.
type TokenRepository struct {
	pool *pgxpool.Pool
}

func NewTokenRepository(pool *pgxpool.Pool) *TokenRepository {
	return &TokenRepository{pool: pool}
}

func (r *TokenRepository) Find(ctx context.Context, token string) (model.RevokedToken, error) {
	var entry model.RevokedToken
	err := r.pool.QueryRow(ctx,
		`SELECT token, expires_at FROM revoked_tokens WHERE token = $1`, token).
		Scan(&entry.Token, &entry.ExpiresAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return model.RevokedToken{}, model.ErrTokenNotFound
	}
	if err != nil {
		return model.RevokedToken{}, fmt.Errorf("find revoked token: %w", err)
	}
	return entry, nil
}

func (r *TokenRepository) Insert(ctx context.Context, entry model.RevokedToken) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO revoked_tokens (token, expires_at)
		 VALUES ($1, $2)
		 ON CONFLICT (token) DO NOTHING`,
		entry.Token, entry.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert revoked token: %w", err)
	}
	return nil
}

func (r *TokenRepository) Delete(ctx context.Context, token string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM revoked_tokens WHERE token = $1`, token)
	if err != nil {
		return fmt.Errorf("delete revoked token: %w", err)
	}
	return nil
}
