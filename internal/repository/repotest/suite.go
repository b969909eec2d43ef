// Package repotest holds the behavior every repository backend must share.
// Backend tests call the Run functions with a freshly built repository.
package repotest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/xid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/repository"
	apperrors "github.com/spec-kit/service-desk/pkg/util/errorutil"
)

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// NewTicket builds a valid ticket created by creator at base+offset.
func NewTicket(creator, title string, offset time.Duration) *domain.Ticket {
	at := base.Add(offset)
	return &domain.Ticket{
		ID:          uuid.NewString(),
		Title:       title,
		Description: title + " description",
		Category:    domain.CategoryNetwork,
		Priority:    domain.TicketPriorityMedium,
		Status:      domain.TicketStatusOpen,
		CreatedBy:   creator,
		CreatedAt:   at,
		UpdatedAt:   at,
		Comments: []domain.Comment{{
			ID:        xid.New().String(),
			Text:      domain.SystemCommentCreated,
			Author:    creator,
			Timestamp: at,
		}},
	}
}

// RunTicketRepository exercises the ticket repository contract.
func RunTicketRepository(t *testing.T, repo repository.TicketRepository) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		ticket := NewTicket(xid.New().String(), "VPN down", 0)
		assignee := "tech-1"
		ticket.AssignedTo = &assignee
		require.NoError(t, repo.Create(ctx, ticket))

		got, err := repo.GetByID(ctx, ticket.ID)
		require.NoError(t, err)
		assert.Equal(t, ticket, got)
	})

	t.Run("get missing", func(t *testing.T) {
		_, err := repo.GetByID(ctx, uuid.NewString())
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("list newest first with filters", func(t *testing.T) {
		creator := xid.New().String()
		older := NewTicket(creator, "Printer jam", time.Minute)
		newer := NewTicket(creator, "VPN flaps", 2*time.Minute)
		newer.Status = domain.TicketStatusResolved
		other := NewTicket(xid.New().String(), "Unrelated", 3*time.Minute)
		for _, ticket := range []*domain.Ticket{older, newer, other} {
			require.NoError(t, repo.Create(ctx, ticket))
		}

		list, err := repo.List(ctx, repository.TicketFilter{CreatedBy: &creator})
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, newer.ID, list[0].ID)
		assert.Equal(t, older.ID, list[1].ID)
		assert.Len(t, list[0].Comments, 1)

		list, err = repo.List(ctx, repository.TicketFilter{CreatedBy: &creator, Statuses: []domain.TicketStatus{domain.TicketStatusOpen}})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, older.ID, list[0].ID)

		term := "PRINTER"
		list, err = repo.List(ctx, repository.TicketFilter{CreatedBy: &creator, SearchTerm: &term})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, older.ID, list[0].ID)

		list, err = repo.List(ctx, repository.TicketFilter{CreatedBy: &creator, Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, older.ID, list[0].ID)
	})

	t.Run("search matches wildcard characters literally", func(t *testing.T) {
		creator := xid.New().String()
		errors500 := NewTicket(creator, "500 errors", time.Minute)
		axb := NewTicket(creator, "axb gateway", 2*time.Minute)
		percent := NewTicket(creator, "Quota at 50% used", 3*time.Minute)
		underscore := NewTicket(creator, "Share a_b offline", 4*time.Minute)
		for _, ticket := range []*domain.Ticket{errors500, axb, percent, underscore} {
			require.NoError(t, repo.Create(ctx, ticket))
		}

		cases := map[string]string{
			"50%":    percent.ID,
			"a_b":    underscore.ID,
			`50%\`:  "",
			"quota%": "",
		}
		for term, wantID := range cases {
			term := term
			list, err := repo.List(ctx, repository.TicketFilter{CreatedBy: &creator, SearchTerm: &term})
			require.NoError(t, err, term)
			if wantID == "" {
				assert.Empty(t, list, term)
				continue
			}
			require.Len(t, list, 1, term)
			assert.Equal(t, wantID, list[0].ID, term)
		}
	})

	t.Run("update applies mutation", func(t *testing.T) {
		ticket := NewTicket(xid.New().String(), "Laptop slow", 0)
		require.NoError(t, repo.Create(ctx, ticket))

		updated, err := repo.Update(ctx, ticket.ID, func(tk *domain.Ticket) error {
			tk.Status = domain.TicketStatusInProgress
			tk.UpdatedAt = tk.UpdatedAt.Add(time.Minute)
			tk.Comments = append(tk.Comments, domain.Comment{ID: xid.New().String(), Text: "looking", Author: "bob", Timestamp: tk.UpdatedAt})
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, domain.TicketStatusInProgress, updated.Status)

		got, err := repo.GetByID(ctx, ticket.ID)
		require.NoError(t, err)
		assert.Equal(t, updated, got)
		assert.Len(t, got.Comments, 2)
	})

	t.Run("update aborted by mutate error", func(t *testing.T) {
		ticket := NewTicket(xid.New().String(), "Badge broken", 0)
		require.NoError(t, repo.Create(ctx, ticket))

		_, err := repo.Update(ctx, ticket.ID, func(tk *domain.Ticket) error {
			tk.Status = domain.TicketStatusResolved
			return apperrors.NewForbidden("nope")
		})
		assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

		got, err := repo.GetByID(ctx, ticket.ID)
		require.NoError(t, err)
		assert.Equal(t, ticket, got)
	})

	t.Run("update refuses to rewrite history", func(t *testing.T) {
		ticket := NewTicket(xid.New().String(), "Mail bounce", 0)
		require.NoError(t, repo.Create(ctx, ticket))

		_, err := repo.Update(ctx, ticket.ID, func(tk *domain.Ticket) error {
			tk.Comments = nil
			return nil
		})
		assert.ErrorIs(t, err, apperrors.ErrValidation)

		_, err = repo.Update(ctx, ticket.ID, func(tk *domain.Ticket) error {
			tk.CreatedBy = "mallory"
			return nil
		})
		assert.ErrorIs(t, err, apperrors.ErrValidation)

		got, err := repo.GetByID(ctx, ticket.ID)
		require.NoError(t, err)
		assert.Equal(t, ticket, got)
	})

	t.Run("update missing", func(t *testing.T) {
		_, err := repo.Update(ctx, uuid.NewString(), func(*domain.Ticket) error { return nil })
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("concurrent appends are not lost", func(t *testing.T) {
		ticket := NewTicket(xid.New().String(), "Shared drive", 0)
		require.NoError(t, repo.Create(ctx, ticket))

		const writers = 8
		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := repo.Update(ctx, ticket.ID, func(tk *domain.Ticket) error {
					tk.Comments = append(tk.Comments, domain.Comment{
						ID:        xid.New().String(),
						Text:      fmt.Sprintf("note %d", i),
						Author:    "bob",
						Timestamp: tk.UpdatedAt,
					})
					return nil
				})
				errs <- err
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		got, err := repo.GetByID(ctx, ticket.ID)
		require.NoError(t, err)
		assert.Len(t, got.Comments, writers+1)
		assert.Equal(t, domain.SystemCommentCreated, got.Comments[0].Text)
	})

	t.Run("delete", func(t *testing.T) {
		ticket := NewTicket(xid.New().String(), "Old request", 0)
		require.NoError(t, repo.Create(ctx, ticket))

		require.NoError(t, repo.Delete(ctx, ticket.ID))
		_, err := repo.GetByID(ctx, ticket.ID)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
		assert.ErrorIs(t, repo.Delete(ctx, ticket.ID), apperrors.ErrNotFound)
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, repo.Ping(ctx))
	})
}

// RunUserRepository exercises the user repository contract.
func RunUserRepository(t *testing.T, repo repository.UserRepository) {
	ctx := context.Background()

	newUser := func() *domain.User {
		id := xid.New().String()
		return &domain.User{
			ID:          uuid.NewString(),
			Name:        "Alice " + id,
			Email:       "Alice." + id + "@Example.com",
			Role:        domain.RoleMember,
			Provider:    domain.ProviderPassword,
			CreatedAt:   base,
			LastLoginAt: base,
		}
	}

	t.Run("create and lookup", func(t *testing.T) {
		user := newUser()
		require.NoError(t, repo.Create(ctx, user))
		assert.Equal(t, repository.NormalizeEmail(user.Email), user.Email)

		byID, err := repo.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, user, byID)

		byEmail, err := repo.GetByEmail(ctx, "  "+user.Email+" ")
		require.NoError(t, err)
		assert.Equal(t, user.ID, byEmail.ID)
	})

	t.Run("duplicate email", func(t *testing.T) {
		user := newUser()
		require.NoError(t, repo.Create(ctx, user))

		dup := newUser()
		dup.Email = user.Email
		assert.ErrorIs(t, repo.Create(ctx, dup), apperrors.ErrConflict)
	})

	t.Run("update", func(t *testing.T) {
		user := newUser()
		require.NoError(t, repo.Create(ctx, user))

		user.Role = domain.RoleAdmin
		user.LastLoginAt = base.Add(time.Hour)
		require.NoError(t, repo.Update(ctx, user))

		got, err := repo.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.RoleAdmin, got.Role)
		assert.Equal(t, base.Add(time.Hour), got.LastLoginAt)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := repo.GetByID(ctx, uuid.NewString())
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
		_, err = repo.GetByEmail(ctx, "nobody-"+xid.New().String()+"@example.com")
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
		assert.ErrorIs(t, repo.Update(ctx, newUser()), apperrors.ErrNotFound)
	})
}

// RunPasswordResetRepository exercises one-time reset tokens. userID must
// reference an existing user for backends with foreign keys.
func RunPasswordResetRepository(t *testing.T, repo repository.PasswordResetRepository, userID string, now time.Time) {
	ctx := context.Background()

	t.Run("consume once", func(t *testing.T) {
		token := &domain.PasswordResetToken{Token: xid.New().String(), UserID: userID, ExpiresAt: now.Add(time.Hour)}
		require.NoError(t, repo.Create(ctx, token))

		got, err := repo.Consume(ctx, token.Token)
		require.NoError(t, err)
		assert.Equal(t, userID, got.UserID)

		_, err = repo.Consume(ctx, token.Token)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("unknown token", func(t *testing.T) {
		_, err := repo.Consume(ctx, xid.New().String())
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})
}
