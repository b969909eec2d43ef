package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/repository"
	apperrors "github.com/spec-kit/service-desk/pkg/util/errorutil"
)

// PasswordResetRepository keeps reset tokens in password_reset_tokens. It is
// used when Redis is not configured.
type PasswordResetRepository struct {
	pool *pgxpool.Pool
}

var _ repository.PasswordResetRepository = (*PasswordResetRepository)(nil)

// NewPasswordResetRepository returns repository instance.
func NewPasswordResetRepository(pool *pgxpool.Pool) *PasswordResetRepository {
	return &PasswordResetRepository{pool: pool}
}

func (r *PasswordResetRepository) Create(ctx context.Context, token *domain.PasswordResetToken) error {
	const query = `
        INSERT INTO password_reset_tokens (token, user_id, expires_at)
        VALUES ($1,$2,$3)`
	if _, err := r.pool.Exec(ctx, query, token.Token, token.UserID, token.ExpiresAt); err != nil {
		return storeFailure("insert password reset token", err)
	}
	return nil
}

// Consume marks the token used in the same statement that reads it, so a
// token can be redeemed once.
func (r *PasswordResetRepository) Consume(ctx context.Context, token string) (*domain.PasswordResetToken, error) {
	const query = `
        UPDATE password_reset_tokens SET used_at=NOW()
        WHERE token=$1 AND used_at IS NULL AND expires_at > NOW()
        RETURNING token, user_id, expires_at`

	var out domain.PasswordResetToken
	if err := r.pool.QueryRow(ctx, query, token).Scan(&out.Token, &out.UserID, &out.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("password reset token", nil)
		}
		return nil, storeFailure("consume password reset token", err)
	}
	out.ExpiresAt = out.ExpiresAt.UTC()
	return &out, nil
}
