package sample

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/service-desk/internal/clock"
	"github.com/spec-kit/service-desk/internal/config"
	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/persistence"
	"github.com/spec-kit/service-desk/internal/repository"
	"github.com/spec-kit/service-desk/internal/repository/local"
)

var now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestDefaultDataset(t *testing.T) {
	ds, err := Default()
	require.NoError(t, err)
	assert.NotEmpty(t, ds.Tickets)
	assert.NotEmpty(t, ds.Comments)
	for _, tpl := range ds.Tickets {
		assert.True(t, tpl.Category.Valid(), tpl.Title)
	}
}

func TestParseRejectsBadDatasets(t *testing.T) {
	_, err := Parse([]byte("users: [oops"))
	assert.ErrorContains(t, err, "decode dataset")

	_, err = Parse([]byte(`
users:
  - {name: A, email: a@example.com, role: member}
tickets:
  - {category: Network, title: T, description: D}
`))
	assert.ErrorContains(t, err, "at least one member and one admin")

	_, err = Parse([]byte(`
users:
  - {name: A, email: a@example.com, role: member}
  - {name: B, email: b@example.com, role: admin}
tickets:
  - {category: Plumbing, title: T, description: D}
`))
	assert.Error(t, err)
}

func sampleUsers() []domain.User {
	return []domain.User{
		{ID: "m1", Role: domain.RoleMember},
		{ID: "m2", Role: domain.RoleMember},
		{ID: "a1", Role: domain.RoleAdmin},
	}
}

func TestGeneratedTicketsKeepInvariants(t *testing.T) {
	ds, err := Default()
	require.NoError(t, err)
	gen := NewGenerator(ds, sampleUsers(), 7)

	for i := 0; i < 200; i++ {
		ticket := gen.Ticket(now)

		assert.True(t, ticket.Status.Valid())
		assert.True(t, ticket.Priority.Valid())
		assert.True(t, ticket.Category.Valid())
		assert.Contains(t, []string{"m1", "m2"}, ticket.CreatedBy)

		require.NotEmpty(t, ticket.Comments)
		first := ticket.Comments[0]
		assert.Equal(t, domain.SystemCommentCreated, first.Text)
		assert.Equal(t, ticket.CreatedBy, first.Author)
		assert.Equal(t, ticket.CreatedAt, first.Timestamp)

		prev := ticket.CreatedAt
		for _, c := range ticket.Comments {
			assert.False(t, c.Timestamp.Before(prev))
			prev = c.Timestamp
		}
		assert.Equal(t, prev, ticket.UpdatedAt)
		assert.False(t, ticket.UpdatedAt.After(now))

		if ticket.Status == domain.TicketStatusOpen {
			assert.Nil(t, ticket.AssignedTo)
		} else {
			require.NotNil(t, ticket.AssignedTo)
			assert.Equal(t, "a1", *ticket.AssignedTo)
		}
	}
}

func TestGeneratorIsDeterministic(t *testing.T) {
	ds, err := Default()
	require.NoError(t, err)
	a := NewGenerator(ds, sampleUsers(), 42)
	b := NewGenerator(ds, sampleUsers(), 42)

	for i := 0; i < 20; i++ {
		x, y := a.Ticket(now), b.Ticket(now)
		assert.Equal(t, x.Title, y.Title)
		assert.Equal(t, x.Status, y.Status)
		assert.Equal(t, x.CreatedAt, y.CreatedAt)
		assert.Len(t, y.Comments, len(x.Comments))
	}
}

func TestSeedLocalStore(t *testing.T) {
	db, err := persistence.OpenSQLite(config.LocalConfig{Path: ":memory:"}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()
	store, err := local.New(ctx, db, clock.Fake(now))
	require.NoError(t, err)

	ds, err := Default()
	require.NoError(t, err)
	opts := Options{Count: 15, Seed: 1, Now: now, PasswordHash: "hash"}

	first, err := Seed(ctx, ds, store.Tickets(), store.Users(), opts)
	require.NoError(t, err)
	assert.Equal(t, 15, first.Tickets)
	assert.Len(t, first.Users, len(ds.Users))

	tickets, err := store.Tickets().List(ctx, repository.TicketFilter{})
	require.NoError(t, err)
	assert.Len(t, tickets, 15)

	second, err := Seed(ctx, ds, store.Tickets(), store.Users(), opts)
	require.NoError(t, err)
	for i := range first.Users {
		assert.Equal(t, first.Users[i].ID, second.Users[i].ID)
	}

	admin, err := store.Users().GetByEmail(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.True(t, admin.IsAdmin())
	assert.Equal(t, "hash", admin.PasswordHash)
}
