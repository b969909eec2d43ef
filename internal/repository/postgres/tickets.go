// Package postgres implements the repository contracts on PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/repository"
	apperrors "github.com/spec-kit/service-desk/pkg/util/errorutil"
)

const ticketColumns = `id, title, description, category, priority, status, created_by, assigned_to, created_at, updated_at`

// queryer is satisfied by both the pool and a transaction.
type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TicketRepository stores tickets in the tickets table and their threads in
// ticket_comments, one row per comment keyed by position.
type TicketRepository struct {
	pool *pgxpool.Pool
}

var _ repository.TicketRepository = (*TicketRepository)(nil)

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) *TicketRepository {
	return &TicketRepository{pool: pool}
}

func (r *TicketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (` + ticketColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return storeFailure("begin create ticket", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, query,
		ticket.ID,
		ticket.Title,
		ticket.Description,
		string(ticket.Category),
		string(ticket.Priority),
		string(ticket.Status),
		ticket.CreatedBy,
		ticket.AssignedTo,
		ticket.CreatedAt,
		ticket.UpdatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return apperrors.NewConflict("ticket already exists", map[string]any{"id": ticket.ID})
		}
		return storeFailure("insert ticket", err)
	}
	if err := insertComments(ctx, tx, ticket.ID, 0, ticket.Comments); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return storeFailure("commit create ticket", err)
	}
	return nil
}

func (r *TicketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	ticket, err := fetchTicket(ctx, r.pool, id, false)
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

func (r *TicketRepository) List(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.CreatedBy != nil {
		args = append(args, *filter.CreatedBy)
		clauses = append(clauses, fmt.Sprintf("created_by=$%d", len(args)))
	}
	if filter.AssignedTo != nil {
		args = append(args, *filter.AssignedTo)
		clauses = append(clauses, fmt.Sprintf("assigned_to=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		clauses = append(clauses, inClause("status", filter.Statuses, &args))
	}
	if len(filter.Priorities) > 0 {
		clauses = append(clauses, inClause("priority", filter.Priorities, &args))
	}
	if len(filter.Categories) > 0 {
		clauses = append(clauses, inClause("category", filter.Categories, &args))
	}
	if term := filter.Search(); term != "" {
		args = append(args, "%"+likeEscaper.Replace(term)+"%")
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf(`(LOWER(title) LIKE %[1]s ESCAPE '\' OR LOWER(description) LIKE %[1]s ESCAPE '\' OR LOWER(created_by) LIKE %[1]s ESCAPE '\')`,
			placeholder))
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY created_at DESC, id`,
		ticketColumns, strings.Join(clauses, " AND "))
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storeFailure("list tickets", err)
	}
	tickets, err := scanTickets(rows)
	if err != nil {
		return nil, storeFailure("scan tickets", err)
	}
	if err := attachComments(ctx, r.pool, tickets); err != nil {
		return nil, err
	}
	return tickets, nil
}

// Update locks the ticket row for the duration of the transaction, so
// concurrent updates of one ticket queue behind each other.
func (r *TicketRepository) Update(ctx context.Context, id string, mutate repository.MutateFunc) (*domain.Ticket, error) {
	const query = `
        UPDATE tickets SET title=$1, description=$2, category=$3, priority=$4, status=$5,
            assigned_to=$6, updated_at=$7
        WHERE id=$8`

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, storeFailure("begin update ticket", err)
	}
	defer tx.Rollback(ctx)

	current, err := fetchTicket(ctx, tx, id, true)
	if err != nil {
		return nil, err
	}
	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	if err := repository.CheckMutation(current, next); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, query,
		next.Title,
		next.Description,
		string(next.Category),
		string(next.Priority),
		string(next.Status),
		next.AssignedTo,
		next.UpdatedAt,
		id,
	); err != nil {
		return nil, storeFailure("update ticket", err)
	}
	if err := insertComments(ctx, tx, id, len(current.Comments), next.Comments[len(current.Comments):]); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, storeFailure("commit update ticket", err)
	}
	return next, nil
}

func (r *TicketRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM tickets WHERE id=$1`, id)
	if err != nil {
		return storeFailure("delete ticket", err)
	}
	if cmd.RowsAffected() == 0 {
		return repository.TicketNotFound(id)
	}
	return nil
}

func (r *TicketRepository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return storeFailure("ping", err)
	}
	return nil
}

func fetchTicket(ctx context.Context, q queryer, id string, forUpdate bool) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	ticket, err := scanTicket(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.TicketNotFound(id)
		}
		return nil, storeFailure("get ticket", err)
	}

	tickets := []domain.Ticket{*ticket}
	if err := attachComments(ctx, q, tickets); err != nil {
		return nil, err
	}
	return &tickets[0], nil
}

func attachComments(ctx context.Context, q queryer, tickets []domain.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	ids := make([]string, len(tickets))
	index := make(map[string]int, len(tickets))
	for i := range tickets {
		ids[i] = tickets[i].ID
		index[tickets[i].ID] = i
		tickets[i].Comments = []domain.Comment{}
	}

	rows, err := q.Query(ctx, `
        SELECT ticket_id, id, body, author, created_at
        FROM ticket_comments WHERE ticket_id = ANY($1)
        ORDER BY ticket_id, position`, ids)
	if err != nil {
		return storeFailure("list comments", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ticketID string
			comment  domain.Comment
		)
		if err := rows.Scan(&ticketID, &comment.ID, &comment.Text, &comment.Author, &comment.Timestamp); err != nil {
			return storeFailure("scan comment", err)
		}
		comment.Timestamp = comment.Timestamp.UTC()
		i := index[ticketID]
		tickets[i].Comments = append(tickets[i].Comments, comment)
	}
	if err := rows.Err(); err != nil {
		return storeFailure("list comments", err)
	}
	return nil
}

func insertComments(ctx context.Context, tx pgx.Tx, ticketID string, start int, comments []domain.Comment) error {
	if len(comments) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for i, comment := range comments {
		batch.Queue(`
            INSERT INTO ticket_comments (ticket_id, position, id, body, author, created_at)
            VALUES ($1,$2,$3,$4,$5,$6)`,
			ticketID, start+i, comment.ID, comment.Text, comment.Author, comment.Timestamp)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return storeFailure("insert comments", err)
	}
	return nil
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.Title,
		&ticket.Description,
		&ticket.Category,
		&ticket.Priority,
		&ticket.Status,
		&ticket.CreatedBy,
		&ticket.AssignedTo,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	ticket.CreatedAt = ticket.CreatedAt.UTC()
	ticket.UpdatedAt = ticket.UpdatedAt.UTC()
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	defer rows.Close()
	result := []domain.Ticket{}
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

// likeEscaper makes a search term match literally inside a LIKE pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

func inClause[T ~string](column string, values []T, args *[]any) string {
	placeholders := make([]string, len(values))
	for i, v := range values {
		*args = append(*args, string(v))
		placeholders[i] = fmt.Sprintf("$%d", len(*args))
	}
	return fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ","))
}
