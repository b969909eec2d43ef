package local

import (
	"context"
	"time"

	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/repository"
	apperrors "github.com/spec-kit/service-desk/pkg/util/errorutil"
)

type resetRecord struct {
	Token     string    `cbor:"token"`
	UserID    string    `cbor:"userId"`
	ExpiresAt time.Time `cbor:"expiresAt"`
}

type resetCollection struct {
	Tokens []resetRecord `cbor:"tokens"`
}

// PasswordResetRepository keeps outstanding reset tokens in one blob.
// Consumed and expired tokens are dropped from it.
type PasswordResetRepository struct {
	store *Store
}

var _ repository.PasswordResetRepository = (*PasswordResetRepository)(nil)

func (r *PasswordResetRepository) Create(ctx context.Context, token *domain.PasswordResetToken) error {
	var coll resetCollection
	now := r.store.clock.Now()
	return r.store.modify(ctx, keyResets, &coll, func() error {
		coll.prune(now)
		coll.Tokens = append(coll.Tokens, resetRecord{Token: token.Token, UserID: token.UserID, ExpiresAt: token.ExpiresAt})
		return nil
	})
}

func (r *PasswordResetRepository) Consume(ctx context.Context, token string) (*domain.PasswordResetToken, error) {
	var (
		coll  resetCollection
		found *domain.PasswordResetToken
	)
	now := r.store.clock.Now()
	err := r.store.modify(ctx, keyResets, &coll, func() error {
		coll.prune(now)
		for i, rec := range coll.Tokens {
			if rec.Token == token {
				found = &domain.PasswordResetToken{Token: rec.Token, UserID: rec.UserID, ExpiresAt: rec.ExpiresAt.UTC()}
				coll.Tokens = append(coll.Tokens[:i], coll.Tokens[i+1:]...)
				return nil
			}
		}
		return apperrors.NewNotFound("password reset token", nil)
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

func (c *resetCollection) prune(now time.Time) {
	kept := c.Tokens[:0]
	for _, rec := range c.Tokens {
		if rec.ExpiresAt.After(now) {
			kept = append(kept, rec)
		}
	}
	c.Tokens = kept
}
