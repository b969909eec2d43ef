package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/persistence"
	"github.com/spec-kit/service-desk/internal/repository/repotest"
)

// newTestPool connects to POSTGRES_TEST_DSN and applies migrations. Tests
// are skipped when it is unset.
func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, persistence.RunMigrations(ctx, pool, zap.NewNop()))
	return pool
}

func TestTicketRepository(t *testing.T) {
	repotest.RunTicketRepository(t, NewTicketRepository(newTestPool(t)))
}

func TestUserRepository(t *testing.T) {
	repotest.RunUserRepository(t, NewUserRepository(newTestPool(t)))
}

func TestPasswordResetRepository(t *testing.T) {
	pool := newTestPool(t)
	now := time.Now().UTC()
	user := &domain.User{
		ID:          uuid.NewString(),
		Name:        "Reset",
		Email:       uuid.NewString() + "@example.com",
		Role:        domain.RoleMember,
		Provider:    domain.ProviderPassword,
		CreatedAt:   now,
		LastLoginAt: now,
	}
	require.NoError(t, NewUserRepository(pool).Create(context.Background(), user))

	repotest.RunPasswordResetRepository(t, NewPasswordResetRepository(pool), user.ID, now)
}

func TestLikeEscaperQuotesWildcards(t *testing.T) {
	cases := map[string]string{
		"printer": "printer",
		"50%":     `50\%`,
		"a_b":     `a\_b`,
		`c:\tmp`:  `c:\\tmp`,
	}
	for in, want := range cases {
		assert.Equal(t, want, likeEscaper.Replace(in), in)
	}
}
