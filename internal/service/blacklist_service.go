package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"absence-api/internal/model"
)

type tokenStore interface {
	Find(ctx context.Context, token string) (model.RevokedToken, error)
	Insert(ctx context.Context, entry model.RevokedToken) error
	Delete(ctx context.Context, token string) error
}

// BlacklistService is the token revocation ledger. A revoked token stays
// listed until its own expiry, after which the entry is purged lazily on
// the next lookup; there is no background sweeper.
type BlacklistService struct {
	tokens tokenStore
	logger *slog.Logger
	now    func() time.Time
}

func NewBlacklistService(tokens tokenStore, logger *slog.Logger) *BlacklistService {
	return &BlacklistService{
		tokens: tokens,
		logger: logger,
		now:    time.Now,
	}
}

// Revoke lists the token until expiresAt. Revoking an already listed token
// is a no-op, not an error.
func (s *BlacklistService) Revoke(ctx context.Context, token string, expiresAt time.Time) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return model.ErrInvalidInput
	}
	if !expiresAt.After(s.now().UTC()) {
		// Already expired, nothing to defend against.
		return nil
	}
	if err := s.tokens.Insert(ctx, model.RevokedToken{Token: token, ExpiresAt: expiresAt.UTC()}); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// IsRevoked reports whether the token is on the ledger. An entry whose
// expiry has passed is dropped on the way out.
func (s *BlacklistService) IsRevoked(ctx context.Context, token string) (bool, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return false, nil
	}

	entry, err := s.tokens.Find(ctx, token)
	if errors.Is(err, model.ErrTokenNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("look up token: %w", err)
	}

	if !entry.ExpiresAt.After(s.now().UTC()) {
		if err := s.tokens.Delete(ctx, token); err != nil {
			s.logger.Warn("failed to purge expired ledger entry", "error", err)
		}
		return false, nil
	}
	return true, nil
}
