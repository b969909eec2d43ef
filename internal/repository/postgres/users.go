package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/repository"
	apperrors "github.com/spec-kit/service-desk/pkg/util/errorutil"
)

const userColumns = `id, name, email, role, password_hash, provider, created_at, last_login_at`

// UserRepository is the Postgres-backed user store.
type UserRepository struct {
	pool *pgxpool.Pool
}

var _ repository.UserRepository = (*UserRepository)(nil)

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	const query = `
        INSERT INTO users (` + userColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	user.Email = repository.NormalizeEmail(user.Email)
	if _, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Name,
		user.Email,
		string(user.Role),
		user.PasswordHash,
		string(user.Provider),
		user.CreatedAt,
		user.LastLoginAt,
	); err != nil {
		if isUniqueViolation(err) {
			return repository.DuplicateEmail(user.Email)
		}
		return storeFailure("insert user", err)
	}
	return nil
}

func (r *UserRepository) Update(ctx context.Context, user *domain.User) error {
	const query = `
        UPDATE users SET name=$1, email=$2, role=$3, password_hash=$4, provider=$5, last_login_at=$6
        WHERE id=$7`

	user.Email = repository.NormalizeEmail(user.Email)
	cmd, err := r.pool.Exec(ctx, query,
		user.Name,
		user.Email,
		string(user.Role),
		user.PasswordHash,
		string(user.Provider),
		user.LastLoginAt,
		user.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.DuplicateEmail(user.Email)
		}
		return storeFailure("update user", err)
	}
	if cmd.RowsAffected() == 0 {
		return repository.UserNotFound(user.ID)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.fetch(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.fetch(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, repository.NormalizeEmail(email))
}

func (r *UserRepository) fetch(ctx context.Context, query, key string) (*domain.User, error) {
	var user domain.User
	if err := r.pool.QueryRow(ctx, query, key).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Role,
		&user.PasswordHash,
		&user.Provider,
		&user.CreatedAt,
		&user.LastLoginAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.UserNotFound(key)
		}
		return nil, storeFailure("get user", err)
	}
	user.CreatedAt = user.CreatedAt.UTC()
	user.LastLoginAt = user.LastLoginAt.UTC()
	return &user, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func storeFailure(op string, err error) error {
	return apperrors.NewStoreFailure(fmt.Errorf("postgres: %s: %w", op, err))
}
