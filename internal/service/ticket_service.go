package service

import (
	"context"
	"strings"

	"github.com/rs/xid"
	"go.uber.org/zap"

	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/events"
	"github.com/spec-kit/service-desk/internal/lifecycle"
	"github.com/spec-kit/service-desk/internal/policy"
	"github.com/spec-kit/service-desk/internal/repository"
	apperrors "github.com/spec-kit/service-desk/pkg/util/errorutil"
)

const commentPreviewLength = 120

// TicketService coordinates ticket workflows: policy checks, lifecycle rules,
// persistence and event publication.
type TicketService struct {
	tickets    repository.TicketRepository
	lifecycle  *lifecycle.Lifecycle
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo repository.TicketRepository
	Lifecycle  *lifecycle.Lifecycle
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// TicketListFilter narrows listings. Scope (creator) is decided by the
// service, never by the caller.
type TicketListFilter struct {
	Statuses   []domain.TicketStatus
	Priorities []domain.TicketPriority
	Categories []domain.TicketCategory
	SearchTerm *string
	Limit      int
	Offset     int
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	lc := deps.Lifecycle
	if lc == nil {
		lc = lifecycle.New(nil)
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		tickets:    deps.TicketRepo,
		lifecycle:  lc,
		dispatcher: deps.Dispatcher,
		logger:     logger,
	}
}

// Create opens a ticket on behalf of actor.
func (s *TicketService) Create(ctx context.Context, actor *domain.User, input domain.NewTicket) (*domain.Ticket, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	ticket, err := s.lifecycle.Open(input, actor.ID)
	if err != nil {
		return nil, err
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.publishEvent(ctx, actor, ticket, events.EventTicketCreated, events.TicketCreatedPayload{
		Title:    ticket.Title,
		Category: ticket.Category,
		Priority: ticket.Priority,
	})
	return ticket, nil
}

// Get returns a ticket the actor may view.
func (s *TicketService) Get(ctx context.Context, actor *domain.User, id string) (*domain.Ticket, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if err := policy.Authorize(policy.OpView, actor, ticket); err != nil {
		return nil, err
	}
	return ticket, nil
}

// ListAll returns every ticket, newest first. Admins only.
func (s *TicketService) ListAll(ctx context.Context, actor *domain.User, filter TicketListFilter) ([]domain.Ticket, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	if !policy.CanListAll(actor) {
		return nil, apperrors.NewForbidden("only admins can list all tickets")
	}
	return s.list(ctx, filter.repoFilter(nil))
}

// ListByCreator returns tickets opened by userID, newest first. Members may
// only ask for their own.
func (s *TicketService) ListByCreator(ctx context.Context, actor *domain.User, userID string, filter TicketListFilter) ([]domain.Ticket, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	if !actor.IsAdmin() && actor.ID != userID {
		return nil, apperrors.NewForbidden("cannot list another user's tickets")
	}
	return s.list(ctx, filter.repoFilter(&userID))
}

// ListVisible returns the collection actor is entitled to see.
func (s *TicketService) ListVisible(ctx context.Context, actor *domain.User, filter TicketListFilter) ([]domain.Ticket, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	creatorID, all := policy.ListScope(actor)
	if all {
		return s.list(ctx, filter.repoFilter(nil))
	}
	return s.list(ctx, filter.repoFilter(&creatorID))
}

// Update applies admin edits. Policy and validation run against the locked
// current state, so a rejected update writes nothing.
func (s *TicketService) Update(ctx context.Context, actor *domain.User, id string, updates ...domain.TicketUpdate) (*domain.Ticket, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	if err := lifecycle.ValidateUpdates(updates); err != nil {
		return nil, err
	}

	var changes []domain.Change
	ticket, err := s.tickets.Update(ctx, id, func(t *domain.Ticket) error {
		if err := policy.Authorize(policy.OpEdit, actor, t); err != nil {
			return err
		}
		applied, err := s.lifecycle.Apply(t, updates...)
		if err != nil {
			return err
		}
		changes = applied
		return nil
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	s.publishEvent(ctx, actor, ticket, events.EventTicketUpdated, events.TicketUpdatedPayload{Changes: changes})
	return ticket, nil
}

// AddComment appends a comment authored by actor and returns it as stored.
func (s *TicketService) AddComment(ctx context.Context, actor *domain.User, id, text string) (*domain.Comment, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	comment, err := s.lifecycle.NewComment(text, actor.ID)
	if err != nil {
		return nil, err
	}

	ticket, err := s.tickets.Update(ctx, id, func(t *domain.Ticket) error {
		if err := policy.Authorize(policy.OpComment, actor, t); err != nil {
			return err
		}
		s.lifecycle.Append(t, comment)
		return nil
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	stored := ticket.Comments[len(ticket.Comments)-1]
	s.publishEvent(ctx, actor, ticket, events.EventTicketCommentAdded, events.TicketCommentAddedPayload{
		CommentID:   stored.ID,
		Author:      stored.Author,
		BodyPreview: stringPreview(stored.Text, commentPreviewLength),
	})
	return &stored, nil
}

// Delete removes a ticket. Admins only.
func (s *TicketService) Delete(ctx context.Context, actor *domain.User, id string) error {
	if actor == nil {
		return apperrors.NewUnauthorized("authentication required")
	}
	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		return apperrors.MapError(err)
	}
	if err := policy.Authorize(policy.OpDelete, actor, ticket); err != nil {
		return err
	}
	if err := s.tickets.Delete(ctx, id); err != nil {
		return apperrors.MapError(err)
	}

	s.publishEvent(ctx, actor, ticket, events.EventTicketDeleted, events.TicketDeletedPayload{Title: ticket.Title})
	return nil
}

// Stats counts the actor's visible tickets by status.
func (s *TicketService) Stats(ctx context.Context, actor *domain.User) (domain.TicketStats, error) {
	tickets, err := s.ListVisible(ctx, actor, TicketListFilter{})
	if err != nil {
		return domain.TicketStats{}, err
	}
	return domain.CountTickets(tickets), nil
}

// Ping reports whether the ticket store is reachable.
func (s *TicketService) Ping(ctx context.Context) error {
	return s.tickets.Ping(ctx)
}

func (s *TicketService) list(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	tickets, err := s.tickets.List(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

func (f TicketListFilter) repoFilter(createdBy *string) repository.TicketFilter {
	return repository.TicketFilter{
		CreatedBy:  createdBy,
		Statuses:   f.Statuses,
		Priorities: f.Priorities,
		Categories: f.Categories,
		SearchTerm: f.SearchTerm,
		Limit:      f.Limit,
		Offset:     f.Offset,
	}
}

func (s *TicketService) publishEvent(ctx context.Context, actor *domain.User, ticket *domain.Ticket, eventType events.EventType, payload any) {
	if s.dispatcher == nil {
		return
	}
	event := events.Event{
		ID:        xid.New().String(),
		Type:      eventType,
		TicketID:  ticket.ID,
		CreatedBy: ticket.CreatedBy,
		Actor:     events.Actor{UserID: actor.ID, Role: actor.Role},
		Timestamp: s.lifecycle.Now(),
		Payload:   payload,
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("publish event failed",
			zap.String("event_type", string(eventType)),
			zap.String("ticket_id", ticket.ID),
			zap.Error(err))
	}
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	runes := []rune(body)
	if len(runes) <= max {
		return body
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
