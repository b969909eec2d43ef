// Package repository defines the persistence boundary. Backends live in the
// postgres, mongo, local and redisstore subpackages and must all honor the
// same contract.
package repository

import (
	"context"
	"strings"

	"github.com/spec-kit/service-desk/internal/domain"
	apperrors "github.com/spec-kit/service-desk/pkg/util/errorutil"
)

// TicketFilter narrows a ticket listing. Zero values match everything.
type TicketFilter struct {
	CreatedBy  *string
	AssignedTo *string
	Statuses   []domain.TicketStatus
	Priorities []domain.TicketPriority
	Categories []domain.TicketCategory
	SearchTerm *string
	Limit      int
	Offset     int
}

// MutateFunc edits a ticket in place during Update. Returning an error
// aborts the update without writing anything.
type MutateFunc func(ticket *domain.Ticket) error

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	// List returns matching tickets newest first by CreatedAt. A Limit of
	// zero or less returns every match.
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	// Update performs a read-modify-write of one ticket. Concurrent updates
	// of the same ticket are serialized so appended comments are never
	// lost, and writes that drop or rewrite existing comments are refused.
	Update(ctx context.Context, id string, mutate MutateFunc) (*domain.Ticket, error)
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

// UserRepository defines persistence access for users.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	Update(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

// PasswordResetRepository manages one-time password reset tokens.
type PasswordResetRepository interface {
	Create(ctx context.Context, token *domain.PasswordResetToken) error
	// Consume returns the token and makes it unusable. Unknown, used or
	// expired tokens yield a NOT_FOUND error.
	Consume(ctx context.Context, token string) (*domain.PasswordResetToken, error)
}

// Backend bundles the repositories of one storage engine.
type Backend struct {
	Name    string
	Tickets TicketRepository
	Users   UserRepository
	Resets  PasswordResetRepository
	Close   func()
}

// NormalizeEmail is the canonical form used for lookups and uniqueness.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Matches reports whether ticket satisfies filter, ignoring paging. Backends
// that filter in memory use it; query-based backends mirror its rules.
func (f TicketFilter) Matches(ticket *domain.Ticket) bool {
	if f.CreatedBy != nil && ticket.CreatedBy != *f.CreatedBy {
		return false
	}
	if f.AssignedTo != nil && (ticket.AssignedTo == nil || *ticket.AssignedTo != *f.AssignedTo) {
		return false
	}
	if len(f.Statuses) > 0 && !contains(f.Statuses, ticket.Status) {
		return false
	}
	if len(f.Priorities) > 0 && !contains(f.Priorities, ticket.Priority) {
		return false
	}
	if len(f.Categories) > 0 && !contains(f.Categories, ticket.Category) {
		return false
	}
	if term := f.Search(); term != "" {
		if !strings.Contains(strings.ToLower(ticket.Title), term) &&
			!strings.Contains(strings.ToLower(ticket.Description), term) &&
			!strings.Contains(strings.ToLower(ticket.CreatedBy), term) {
			return false
		}
	}
	return true
}

// Search returns the lower-cased, trimmed search term or "".
func (f TicketFilter) Search() string {
	if f.SearchTerm == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(*f.SearchTerm))
}

// Page applies Offset and Limit to an already ordered slice.
func (f TicketFilter) Page(tickets []domain.Ticket) []domain.Ticket {
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(tickets) {
		return []domain.Ticket{}
	}
	tickets = tickets[offset:]
	if f.Limit > 0 && f.Limit < len(tickets) {
		tickets = tickets[:f.Limit]
	}
	return tickets
}

// CheckAppendOnly verifies that after keeps before's comments as a prefix.
func CheckAppendOnly(before, after []domain.Comment) bool {
	if len(after) < len(before) {
		return false
	}
	for i := range before {
		if before[i] != after[i] {
			return false
		}
	}
	return true
}

// CheckMutation validates the result of a MutateFunc against the stored
// ticket: identity fields are immutable and comments are append-only.
func CheckMutation(before, after *domain.Ticket) error {
	if after.ID != before.ID || after.CreatedBy != before.CreatedBy || !after.CreatedAt.Equal(before.CreatedAt) {
		return apperrors.NewValidationError("ticket identity fields are immutable", map[string]any{"id": before.ID})
	}
	if after.UpdatedAt.Before(before.UpdatedAt) {
		return apperrors.NewValidationError("updated_at cannot move backwards", map[string]any{"id": before.ID})
	}
	if !CheckAppendOnly(before.Comments, after.Comments) {
		return apperrors.NewValidationError("comments are append-only", map[string]any{"id": before.ID})
	}
	return nil
}

// TicketNotFound is the error every backend returns for a missing ticket.
func TicketNotFound(id string) error {
	return apperrors.NewNotFound("ticket", map[string]any{"id": id})
}

// UserNotFound is the error every backend returns for a missing user.
func UserNotFound(key string) error {
	return apperrors.NewNotFound("user", map[string]any{"key": key})
}

// DuplicateEmail is returned when a user's email is already taken.
func DuplicateEmail(email string) error {
	return apperrors.NewConflict("email already registered", map[string]any{"email": email})
}

func contains[T comparable](values []T, v T) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
