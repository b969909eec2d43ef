package local

import (
	"context"
	"time"

	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/repository"
)

type userRecord struct {
	ID           string    `cbor:"id"`
	Name         string    `cbor:"name"`
	Email        string    `cbor:"email"`
	Role         string    `cbor:"role"`
	PasswordHash string    `cbor:"passwordHash"`
	Provider     string    `cbor:"provider"`
	CreatedAt    time.Time `cbor:"createdAt"`
	LastLoginAt  time.Time `cbor:"lastLogin"`
}

type userCollection struct {
	Users []userRecord `cbor:"users"`
}

func (c *userCollection) find(match func(*userRecord) bool) int {
	for i := range c.Users {
		if match(&c.Users[i]) {
			return i
		}
	}
	return -1
}

// UserRepository keeps users in the users blob.
type UserRepository struct {
	store *Store
}

var _ repository.UserRepository = (*UserRepository)(nil)

func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	user.Email = repository.NormalizeEmail(user.Email)
	var coll userCollection
	return r.store.modify(ctx, keyUsers, &coll, func() error {
		if coll.find(func(u *userRecord) bool { return u.Email == user.Email }) >= 0 {
			return repository.DuplicateEmail(user.Email)
		}
		coll.Users = append(coll.Users, toUserRecord(user))
		return nil
	})
}

func (r *UserRepository) Update(ctx context.Context, user *domain.User) error {
	user.Email = repository.NormalizeEmail(user.Email)
	var coll userCollection
	return r.store.modify(ctx, keyUsers, &coll, func() error {
		i := coll.find(func(u *userRecord) bool { return u.ID == user.ID })
		if i < 0 {
			return repository.UserNotFound(user.ID)
		}
		if j := coll.find(func(u *userRecord) bool { return u.Email == user.Email }); j >= 0 && j != i {
			return repository.DuplicateEmail(user.Email)
		}
		coll.Users[i] = toUserRecord(user)
		return nil
	})
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.get(ctx, id, func(u *userRecord) bool { return u.ID == id })
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	email = repository.NormalizeEmail(email)
	return r.get(ctx, email, func(u *userRecord) bool { return u.Email == email })
}

func (r *UserRepository) get(ctx context.Context, key string, match func(*userRecord) bool) (*domain.User, error) {
	var coll userCollection
	if err := r.store.read(ctx, keyUsers, &coll); err != nil {
		return nil, err
	}
	i := coll.find(match)
	if i < 0 {
		return nil, repository.UserNotFound(key)
	}
	rec := coll.Users[i]
	return &domain.User{
		ID:           rec.ID,
		Name:         rec.Name,
		Email:        rec.Email,
		Role:         domain.Role(rec.Role),
		PasswordHash: rec.PasswordHash,
		Provider:     domain.AuthProvider(rec.Provider),
		CreatedAt:    rec.CreatedAt.UTC(),
		LastLoginAt:  rec.LastLoginAt.UTC(),
	}, nil
}

func toUserRecord(u *domain.User) userRecord {
	return userRecord{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		Role:         string(u.Role),
		PasswordHash: u.PasswordHash,
		Provider:     string(u.Provider),
		CreatedAt:    u.CreatedAt,
		LastLoginAt:  u.LastLoginAt,
	}
}
