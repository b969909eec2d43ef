// Package redisstore keeps short-lived records in Redis.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/service-desk/internal/clock"
	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/repository"
	apperrors "github.com/spec-kit/service-desk/pkg/util/errorutil"
)

const resetKeyPrefix = "service-desk:password-reset:"

// PasswordResetRepository stores reset tokens as keys expiring with the token.
type PasswordResetRepository struct {
	client redis.Cmdable
	clock  clock.Clock
}

var _ repository.PasswordResetRepository = (*PasswordResetRepository)(nil)

// NewPasswordResetRepository builds the Redis token store.
func NewPasswordResetRepository(client redis.Cmdable, clk clock.Clock) *PasswordResetRepository {
	if clk == nil {
		clk = clock.Real()
	}
	return &PasswordResetRepository{client: client, clock: clk}
}

func (r *PasswordResetRepository) Create(ctx context.Context, token *domain.PasswordResetToken) error {
	ttl := token.ExpiresAt.Sub(r.clock.Now())
	if ttl <= 0 {
		return apperrors.NewValidationError("password reset token already expired", nil)
	}
	if err := r.client.Set(ctx, resetKeyPrefix+token.Token, token.UserID, ttl).Err(); err != nil {
		return apperrors.NewStoreFailure(fmt.Errorf("redis: store reset token: %w", err))
	}
	return nil
}

// Consume reads the remaining TTL and deletes the key in one MULTI block.
func (r *PasswordResetRepository) Consume(ctx context.Context, token string) (*domain.PasswordResetToken, error) {
	key := resetKeyPrefix + token

	var (
		ttlCmd *redis.DurationCmd
		getCmd *redis.StringCmd
	)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		ttlCmd = pipe.PTTL(ctx, key)
		getCmd = pipe.GetDel(ctx, key)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, apperrors.NewStoreFailure(fmt.Errorf("redis: consume reset token: %w", err))
	}

	userID, err := getCmd.Result()
	if errors.Is(err, redis.Nil) || userID == "" {
		return nil, apperrors.NewNotFound("password reset token", nil)
	}
	if err != nil {
		return nil, apperrors.NewStoreFailure(fmt.Errorf("redis: consume reset token: %w", err))
	}

	expiresAt := r.clock.Now()
	if ttl := ttlCmd.Val(); ttl > 0 {
		expiresAt = expiresAt.Add(ttl).Truncate(time.Millisecond)
	}
	return &domain.PasswordResetToken{Token: token, UserID: userID, ExpiresAt: expiresAt}, nil
}
