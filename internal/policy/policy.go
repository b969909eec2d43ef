// Package policy decides who may view, edit, comment on, and delete tickets.
// Every function is a pure predicate over the user and ticket.
package policy

import (
	"github.com/spec-kit/service-desk/internal/domain"
	apperrors "github.com/spec-kit/service-desk/pkg/util/errorutil"
)

// Operation names an action gated by the policy.
type Operation string

const (
	OpView    Operation = "view"
	OpEdit    Operation = "edit"
	OpComment Operation = "comment"
	OpDelete  Operation = "delete"
)

// CanView is true for admins and for the ticket's creator.
func CanView(user *domain.User, ticket *domain.Ticket) bool {
	if user == nil || ticket == nil {
		return false
	}
	return user.IsAdmin() || ticket.CreatedBy == user.ID
}

// CanEdit covers status, priority and assignee changes. Admins only.
func CanEdit(user *domain.User, ticket *domain.Ticket) bool {
	return ticket != nil && user.IsAdmin()
}

// CanComment is true for anyone who can view the ticket.
func CanComment(user *domain.User, ticket *domain.Ticket) bool {
	return CanView(user, ticket)
}

// CanDelete is admin-only.
func CanDelete(user *domain.User, ticket *domain.Ticket) bool {
	return ticket != nil && user.IsAdmin()
}

// CanListAll is true when the user may see every ticket.
func CanListAll(user *domain.User) bool {
	return user.IsAdmin()
}

// ListScope returns the creator filter a user's listings and subscriptions
// are restricted to. all is true for admins, in which case creatorID is empty.
func ListScope(user *domain.User) (creatorID string, all bool) {
	if user.IsAdmin() {
		return "", true
	}
	if user == nil {
		return "", false
	}
	return user.ID, false
}

// Allowed evaluates op for user on ticket.
func Allowed(op Operation, user *domain.User, ticket *domain.Ticket) bool {
	switch op {
	case OpView:
		return CanView(user, ticket)
	case OpEdit:
		return CanEdit(user, ticket)
	case OpComment:
		return CanComment(user, ticket)
	case OpDelete:
		return CanDelete(user, ticket)
	default:
		return false
	}
}

// Authorize returns a FORBIDDEN error when op is not allowed.
func Authorize(op Operation, user *domain.User, ticket *domain.Ticket) error {
	if Allowed(op, user, ticket) {
		return nil
	}
	return apperrors.NewForbidden("not allowed to " + string(op) + " this ticket")
}
