package mongo

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/xid"
	"github.com/stretchr/testify/require"
	driver "go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/spec-kit/service-desk/internal/config"
	"github.com/spec-kit/service-desk/internal/persistence"
	"github.com/spec-kit/service-desk/internal/repository/repotest"
)

// newTestDatabase connects to MONGO_TEST_URI and returns a throwaway
// database. Tests are skipped when it is unset.
func newTestDatabase(t *testing.T) *driver.Database {
	t.Helper()
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}
	ctx := context.Background()
	conn, err := persistence.NewMongo(ctx, config.MongoConfig{URI: uri, Database: "desk_test_" + xid.New().String()}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Database.Drop(context.Background())
		conn.Close()
	})
	return conn.Database
}

func TestTicketRepository(t *testing.T) {
	repo, err := NewTicketRepository(context.Background(), newTestDatabase(t))
	require.NoError(t, err)
	repotest.RunTicketRepository(t, repo)
}

func TestUserRepository(t *testing.T) {
	repo, err := NewUserRepository(context.Background(), newTestDatabase(t))
	require.NoError(t, err)
	repotest.RunUserRepository(t, repo)
}

func TestPasswordResetRepository(t *testing.T) {
	now := time.Now().UTC()
	repo, err := NewPasswordResetRepository(context.Background(), newTestDatabase(t), nil)
	require.NoError(t, err)
	repotest.RunPasswordResetRepository(t, repo, "user-1", now)
}
