// Package mongo implements the repository contracts on a MongoDB database.
// Comments are embedded in the ticket document.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/repository"
	apperrors "github.com/spec-kit/service-desk/pkg/util/errorutil"
)

const (
	ticketsCollection = "tickets"
	maxUpdateAttempts = 8
)

type commentDoc struct {
	ID        string    `bson:"id"`
	Text      string    `bson:"text"`
	Author    string    `bson:"author"`
	Timestamp time.Time `bson:"timestamp"`
}

type ticketDoc struct {
	ID          string       `bson:"_id"`
	Title       string       `bson:"title"`
	Description string       `bson:"description"`
	Category    string       `bson:"category"`
	Priority    string       `bson:"priority"`
	Status      string       `bson:"status"`
	CreatedBy   string       `bson:"created_by"`
	AssignedTo  *string      `bson:"assigned_to,omitempty"`
	CreatedAt   time.Time    `bson:"created_at"`
	UpdatedAt   time.Time    `bson:"updated_at"`
	Comments    []commentDoc `bson:"comments"`
	Revision    int64        `bson:"revision"`
}

// TicketRepository stores one document per ticket. Updates are
// compare-and-swap on the revision field.
type TicketRepository struct {
	coll *mongo.Collection
}

var _ repository.TicketRepository = (*TicketRepository)(nil)

// NewTicketRepository builds the repository and ensures its indexes.
func NewTicketRepository(ctx context.Context, db *mongo.Database) (*TicketRepository, error) {
	coll := db.Collection(ticketsCollection)
	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "created_by", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return nil, storeFailure("create ticket indexes", err)
	}
	return &TicketRepository{coll: coll}, nil
}

func (r *TicketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	if _, err := r.coll.InsertOne(ctx, toTicketDoc(ticket, 1)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperrors.NewConflict("ticket already exists", map[string]any{"id": ticket.ID})
		}
		return storeFailure("insert ticket", err)
	}
	return nil
}

func (r *TicketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	doc, err := r.find(ctx, id)
	if err != nil {
		return nil, err
	}
	return doc.toDomain(), nil
}

func (r *TicketRepository) List(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	query := bson.M{}
	if filter.CreatedBy != nil {
		query["created_by"] = *filter.CreatedBy
	}
	if filter.AssignedTo != nil {
		query["assigned_to"] = *filter.AssignedTo
	}
	if len(filter.Statuses) > 0 {
		query["status"] = bson.M{"$in": stringValues(filter.Statuses)}
	}
	if len(filter.Priorities) > 0 {
		query["priority"] = bson.M{"$in": stringValues(filter.Priorities)}
	}
	if len(filter.Categories) > 0 {
		query["category"] = bson.M{"$in": stringValues(filter.Categories)}
	}
	if term := filter.Search(); term != "" {
		pattern := searchPattern(term)
		query["$or"] = bson.A{
			bson.M{"title": pattern},
			bson.M{"description": pattern},
			bson.M{"created_by": pattern},
		}
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})
	if filter.Offset > 0 {
		opts.SetSkip(int64(filter.Offset))
	}
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cursor, err := r.coll.Find(ctx, query, opts)
	if err != nil {
		return nil, storeFailure("list tickets", err)
	}
	var docs []ticketDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, storeFailure("decode tickets", err)
	}

	tickets := make([]domain.Ticket, 0, len(docs))
	for i := range docs {
		tickets = append(tickets, *docs[i].toDomain())
	}
	return tickets, nil
}

// Update retries the read-modify-write when another writer bumped the
// revision in between.
func (r *TicketRepository) Update(ctx context.Context, id string, mutate repository.MutateFunc) (*domain.Ticket, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		doc, err := r.find(ctx, id)
		if err != nil {
			return nil, err
		}
		current := doc.toDomain()
		next := current.Clone()
		if err := mutate(next); err != nil {
			return nil, err
		}
		if err := repository.CheckMutation(current, next); err != nil {
			return nil, err
		}

		res, err := r.coll.ReplaceOne(ctx,
			bson.M{"_id": id, "revision": doc.Revision},
			toTicketDoc(next, doc.Revision+1),
		)
		if err != nil {
			return nil, storeFailure("replace ticket", err)
		}
		if res.MatchedCount == 1 {
			return next, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, storeFailure("update ticket", err)
		}
	}
	return nil, storeFailure("update ticket", fmt.Errorf("ticket %s still contended after %d attempts", id, maxUpdateAttempts))
}

func (r *TicketRepository) Delete(ctx context.Context, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return storeFailure("delete ticket", err)
	}
	if res.DeletedCount == 0 {
		return repository.TicketNotFound(id)
	}
	return nil
}

func (r *TicketRepository) Ping(ctx context.Context) error {
	if err := r.coll.Database().Client().Ping(ctx, nil); err != nil {
		return storeFailure("ping", err)
	}
	return nil
}

func (r *TicketRepository) find(ctx context.Context, id string) (*ticketDoc, error) {
	var doc ticketDoc
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.TicketNotFound(id)
		}
		return nil, storeFailure("get ticket", err)
	}
	return &doc, nil
}

func toTicketDoc(t *domain.Ticket, revision int64) ticketDoc {
	comments := make([]commentDoc, 0, len(t.Comments))
	for _, c := range t.Comments {
		comments = append(comments, commentDoc{ID: c.ID, Text: c.Text, Author: c.Author, Timestamp: c.Timestamp})
	}
	return ticketDoc{
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
		Revision:    revision,
	}
}

func (d *ticketDoc) toDomain() *domain.Ticket {
	comments := make([]domain.Comment, 0, len(d.Comments))
	for _, c := range d.Comments {
		comments = append(comments, domain.Comment{ID: c.ID, Text: c.Text, Author: c.Author, Timestamp: c.Timestamp.UTC()})
	}
	return &domain.Ticket{
		ID:          d.ID,
		Title:       d.Title,
		Description: d.Description,
		Category:    domain.TicketCategory(d.Category),
		Priority:    domain.TicketPriority(d.Priority),
		Status:      domain.TicketStatus(d.Status),
		CreatedBy:   d.CreatedBy,
		AssignedTo:  d.AssignedTo,
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
		Comments:    comments,
	}
}

func searchPattern(term string) bson.M {
	return bson.M{"$regex": regexp.QuoteMeta(term), "$options": "i"}
}

func stringValues[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}

func storeFailure(op string, err error) error {
	return apperrors.NewStoreFailure(fmt.Errorf("mongo: %s: %w", op, err))
}
