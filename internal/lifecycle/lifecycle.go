// Package lifecycle opens tickets, applies admin edits and appends comments,
// keeping the timestamp bookkeeping in one place.
package lifecycle

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/xid"

	"github.com/spec-kit/service-desk/internal/clock"
	"github.com/spec-kit/service-desk/internal/domain"
	apperrors "github.com/spec-kit/service-desk/pkg/util/errorutil"
)

// Lifecycle applies state changes to tickets. It never persists anything.
type Lifecycle struct {
	clock        clock.Clock
	newTicketID  func() string
	newCommentID func() string
}

// Option customizes a Lifecycle.
type Option func(*Lifecycle)

// WithIDs overrides identifier generation.
func WithIDs(ticketID, commentID func() string) Option {
	return func(l *Lifecycle) {
		if ticketID != nil {
			l.newTicketID = ticketID
		}
		if commentID != nil {
			l.newCommentID = commentID
		}
	}
}

// New builds a Lifecycle reading time from clk.
func New(clk clock.Clock, opts ...Option) *Lifecycle {
	if clk == nil {
		clk = clock.Real()
	}
	l := &Lifecycle{
		clock:        clk,
		newTicketID:  uuid.NewString,
		newCommentID: func() string { return xid.New().String() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Now returns the lifecycle clock's current time.
func (l *Lifecycle) Now() time.Time {
	return l.clock.Now()
}

// Open validates input and returns a new ticket in the Open state, seeded
// with the "Ticket created" comment authored by the creator.
func (l *Lifecycle) Open(input domain.NewTicket, creatorID string) (*domain.Ticket, error) {
	if strings.TrimSpace(creatorID) == "" {
		return nil, apperrors.NewFieldError("created_by", "creator is required")
	}
	input = input.Normalize()
	if err := input.Validate(); err != nil {
		return nil, err
	}

	now := l.clock.Now()
	return &domain.Ticket{
		ID:          l.newTicketID(),
		Title:       input.Title,
		Description: input.Description,
		Category:    input.Category,
		Priority:    input.Priority,
		Status:      domain.TicketStatusOpen,
		CreatedBy:   creatorID,
		CreatedAt:   now,
		UpdatedAt:   now,
		Comments: []domain.Comment{{
			ID:        l.newCommentID(),
			Text:      domain.SystemCommentCreated,
			Author:    creatorID,
			Timestamp: now,
		}},
	}, nil
}

// ValidateUpdates checks a command list without touching any ticket.
func ValidateUpdates(updates []domain.TicketUpdate) error {
	if len(updates) == 0 {
		return apperrors.NewValidationError("no changes requested", nil)
	}
	for _, update := range updates {
		if update == nil {
			return apperrors.NewValidationError("empty update command", nil)
		}
		if err := update.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Apply runs every command against ticket. All commands are validated before
// any is applied, so a failure leaves the ticket untouched. Any status may
// follow any other; Resolved tickets can be reopened.
func (l *Lifecycle) Apply(ticket *domain.Ticket, updates ...domain.TicketUpdate) ([]domain.Change, error) {
	if err := ValidateUpdates(updates); err != nil {
		return nil, err
	}
	changes := make([]domain.Change, 0, len(updates))
	for _, update := range updates {
		changes = append(changes, update.Apply(ticket))
	}
	l.stamp(ticket)
	return changes, nil
}

// Comment appends a comment by author. Status is left alone.
func (l *Lifecycle) Comment(ticket *domain.Ticket, text, author string) (domain.Comment, error) {
	comment, err := l.NewComment(text, author)
	if err != nil {
		return domain.Comment{}, err
	}
	l.Append(ticket, comment)
	return comment, nil
}

// NewComment validates text and builds a comment without attaching it.
func (l *Lifecycle) NewComment(text, author string) (domain.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Comment{}, apperrors.NewFieldError("text", "comment text is required")
	}
	if strings.TrimSpace(author) == "" {
		return domain.Comment{}, apperrors.NewFieldError("author", "comment author is required")
	}
	return domain.Comment{
		ID:        l.newCommentID(),
		Text:      text,
		Author:    author,
		Timestamp: l.clock.Now(),
	}, nil
}

// Append attaches an already validated comment and re-stamps the ticket.
func (l *Lifecycle) Append(ticket *domain.Ticket, comment domain.Comment) {
	if comment.Timestamp.Before(ticket.UpdatedAt) {
		comment.Timestamp = ticket.UpdatedAt
	}
	ticket.Comments = append(ticket.Comments, comment)
	l.stamp(ticket)
}

// stamp moves UpdatedAt to now. Every change advances it by at least one
// millisecond, the precision every backend keeps, even when the clock has
// not moved or runs behind.
func (l *Lifecycle) stamp(ticket *domain.Ticket) {
	prev := ticket.UpdatedAt
	if prev.Before(ticket.CreatedAt) {
		prev = ticket.CreatedAt
	}
	now := l.clock.Now()
	if !now.After(prev) {
		now = prev.Add(time.Millisecond)
	}
	ticket.UpdatedAt = now
}
