package local

import (
	"context"
	"sort"
	"time"

	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/repository"
	apperrors "github.com/spec-kit/service-desk/pkg/util/errorutil"
)

type commentRecord struct {
	ID        string    `cbor:"id"`
	Text      string    `cbor:"text"`
	Author    string    `cbor:"author"`
	Timestamp time.Time `cbor:"timestamp"`
}

type ticketRecord struct {
	ID          string          `cbor:"id"`
	Title       string          `cbor:"title"`
	Description string          `cbor:"description"`
	Category    string          `cbor:"category"`
	Priority    string          `cbor:"priority"`
	Status      string          `cbor:"status"`
	CreatedBy   string          `cbor:"createdBy"`
	AssignedTo  *string         `cbor:"assignedTo"`
	CreatedAt   time.Time       `cbor:"createdAt"`
	UpdatedAt   time.Time       `cbor:"updatedAt"`
	Comments    []commentRecord `cbor:"comments"`
}

type ticketCollection struct {
	Tickets []ticketRecord `cbor:"tickets"`
}

func (c *ticketCollection) index(id string) int {
	for i := range c.Tickets {
		if c.Tickets[i].ID == id {
			return i
		}
	}
	return -1
}

// TicketRepository reads and rewrites the whole ticket blob on every call.
type TicketRepository struct {
	store *Store
}

var _ repository.TicketRepository = (*TicketRepository)(nil)

func (r *TicketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	var coll ticketCollection
	return r.store.modify(ctx, keyTickets, &coll, func() error {
		if coll.index(ticket.ID) >= 0 {
			return apperrors.NewConflict("ticket already exists", map[string]any{"id": ticket.ID})
		}
		coll.Tickets = append(coll.Tickets, toTicketRecord(ticket))
		return nil
	})
}

func (r *TicketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	var coll ticketCollection
	if err := r.store.read(ctx, keyTickets, &coll); err != nil {
		return nil, err
	}
	i := coll.index(id)
	if i < 0 {
		return nil, repository.TicketNotFound(id)
	}
	return coll.Tickets[i].toDomain(), nil
}

func (r *TicketRepository) List(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	var coll ticketCollection
	if err := r.store.read(ctx, keyTickets, &coll); err != nil {
		return nil, err
	}

	matched := make([]domain.Ticket, 0, len(coll.Tickets))
	for i := range coll.Tickets {
		ticket := coll.Tickets[i].toDomain()
		if filter.Matches(ticket) {
			matched = append(matched, *ticket)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})
	return filter.Page(matched), nil
}

func (r *TicketRepository) Update(ctx context.Context, id string, mutate repository.MutateFunc) (*domain.Ticket, error) {
	var (
		coll ticketCollection
		next *domain.Ticket
	)
	err := r.store.modify(ctx, keyTickets, &coll, func() error {
		i := coll.index(id)
		if i < 0 {
			return repository.TicketNotFound(id)
		}
		current := coll.Tickets[i].toDomain()
		next = current.Clone()
		if err := mutate(next); err != nil {
			return err
		}
		if err := repository.CheckMutation(current, next); err != nil {
			return err
		}
		coll.Tickets[i] = toTicketRecord(next)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

func (r *TicketRepository) Delete(ctx context.Context, id string) error {
	var coll ticketCollection
	return r.store.modify(ctx, keyTickets, &coll, func() error {
		i := coll.index(id)
		if i < 0 {
			return repository.TicketNotFound(id)
		}
		coll.Tickets = append(coll.Tickets[:i], coll.Tickets[i+1:]...)
		return nil
	})
}

func (r *TicketRepository) Ping(ctx context.Context) error {
	return r.store.ping(ctx)
}

func toTicketRecord(t *domain.Ticket) ticketRecord {
	comments := make([]commentRecord, 0, len(t.Comments))
	for _, c := range t.Comments {
		comments = append(comments, commentRecord{ID: c.ID, Text: c.Text, Author: c.Author, Timestamp: c.Timestamp})
	}
	return ticketRecord{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Category:    string(t.Category),
		Priority:    string(t.Priority),
		Status:      string(t.Status),
		CreatedBy:   t.CreatedBy,
		AssignedTo:  t.AssignedTo,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		Comments:    comments,
	}
}

func (rec *ticketRecord) toDomain() *domain.Ticket {
	comments := make([]domain.Comment, 0, len(rec.Comments))
	for _, c := range rec.Comments {
		comments = append(comments, domain.Comment{ID: c.ID, Text: c.Text, Author: c.Author, Timestamp: c.Timestamp.UTC()})
	}
	var assignee *string
	if rec.AssignedTo != nil {
		v := *rec.AssignedTo
		assignee = &v
	}
	return &domain.Ticket{
		ID:          rec.ID,
		Title:       rec.Title,
		Description: rec.Description,
		Category:    domain.TicketCategory(rec.Category),
		Priority:    domain.TicketPriority(rec.Priority),
		Status:      domain.TicketStatus(rec.Status),
		CreatedBy:   rec.CreatedBy,
		AssignedTo:  assignee,
		CreatedAt:   rec.CreatedAt.UTC(),
		UpdatedAt:   rec.UpdatedAt.UTC(),
		Comments:    comments,
	}
}
