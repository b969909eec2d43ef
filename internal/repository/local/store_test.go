package local

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/service-desk/internal/clock"
	"github.com/spec-kit/service-desk/internal/config"
	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/persistence"
	"github.com/spec-kit/service-desk/internal/repository/repotest"
)

var now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := persistence.OpenSQLite(config.LocalConfig{Path: ":memory:"}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := New(context.Background(), db, clock.Fake(now))
	require.NoError(t, err)
	return store
}

func TestTicketRepository(t *testing.T) {
	repotest.RunTicketRepository(t, newTestStore(t).Tickets())
}

func TestUserRepository(t *testing.T) {
	repotest.RunUserRepository(t, newTestStore(t).Users())
}

func TestPasswordResetRepository(t *testing.T) {
	repotest.RunPasswordResetRepository(t, newTestStore(t).Resets(), "user-1", now)
}

func TestExpiredResetTokenIsRejected(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Resets().Create(ctx, &domain.PasswordResetToken{Token: "stale", UserID: "user-1", ExpiresAt: now.Add(-time.Minute)}))

	_, err := store.Resets().Consume(ctx, "stale")
	require.Error(t, err)
}

func TestBlobSurvivesReopen(t *testing.T) {
	path := t.TempDir() + "/desk.db"
	ctx := context.Background()
	ticket := repotest.NewTicket("alice", "VPN down", 0)

	db, err := persistence.OpenSQLite(config.LocalConfig{Path: path}, zap.NewNop())
	require.NoError(t, err)
	store, err := New(ctx, db, nil)
	require.NoError(t, err)
	require.NoError(t, store.Tickets().Create(ctx, ticket))
	require.NoError(t, store.Close())

	db, err = persistence.OpenSQLite(config.LocalConfig{Path: path}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store, err = New(ctx, db, nil)
	require.NoError(t, err)

	got, err := store.Tickets().GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	require.Equal(t, ticket, got)
}
