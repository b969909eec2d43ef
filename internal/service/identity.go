package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/spec-kit/service-desk/internal/clock"
	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/repository"
	apperrors "github.com/spec-kit/service-desk/pkg/util/errorutil"
)

const fallbackDisplayName = "User"

// IdentityResolver maps identities returned by authentication providers to
// local users, creating the user on first sign-in.
type IdentityResolver struct {
	users       repository.UserRepository
	clock       clock.Clock
	adminEmails map[string]struct{}
}

// NewIdentityResolver builds a resolver. Emails in adminEmails are given the
// admin role when their user is first created.
func NewIdentityResolver(users repository.UserRepository, clk clock.Clock, adminEmails []string) *IdentityResolver {
	if clk == nil {
		clk = clock.Real()
	}
	admins := make(map[string]struct{}, len(adminEmails))
	for _, email := range adminEmails {
		if email = repository.NormalizeEmail(email); email != "" {
			admins[email] = struct{}{}
		}
	}
	return &IdentityResolver{users: users, clock: clk, adminEmails: admins}
}

// Resolve returns the user for identity, recording the sign-in time.
func (r *IdentityResolver) Resolve(ctx context.Context, identity domain.ExternalIdentity) (*domain.User, error) {
	email := repository.NormalizeEmail(identity.Email)
	if email == "" {
		return nil, apperrors.NewFieldError("email", "identity has no email address")
	}

	user, err := r.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return r.touch(ctx, user)
	case !errors.Is(err, apperrors.ErrNotFound):
		return nil, apperrors.MapError(err)
	}

	now := r.clock.Now()
	user = &domain.User{
		ID:          uuid.NewString(),
		Name:        displayName(identity.DisplayName, email),
		Email:       email,
		Role:        r.defaultRole(email),
		Provider:    identity.Provider,
		CreatedAt:   now,
		LastLoginAt: now,
	}
	if err := r.users.Create(ctx, user); err != nil {
		if !errors.Is(err, apperrors.ErrConflict) {
			return nil, apperrors.MapError(err)
		}
		// Another sign-in created the user first.
		existing, getErr := r.users.GetByEmail(ctx, email)
		if getErr != nil {
			return nil, apperrors.MapError(getErr)
		}
		return r.touch(ctx, existing)
	}
	return user, nil
}

// SetRole changes the role of the user with the given email.
func (r *IdentityResolver) SetRole(ctx context.Context, email string, role domain.Role) (*domain.User, error) {
	if !role.Valid() {
		return nil, apperrors.NewFieldError("role", "unknown role")
	}
	user, err := r.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	user.Role = role
	if err := r.users.Update(ctx, user); err != nil {
		return nil, apperrors.MapError(err)
	}
	return user, nil
}

func (r *IdentityResolver) touch(ctx context.Context, user *domain.User) (*domain.User, error) {
	user.LastLoginAt = r.clock.Now()
	if err := r.users.Update(ctx, user); err != nil {
		return nil, apperrors.MapError(err)
	}
	return user, nil
}

func (r *IdentityResolver) defaultRole(email string) domain.Role {
	if _, ok := r.adminEmails[email]; ok {
		return domain.RoleAdmin
	}
	return domain.RoleMember
}

// displayName picks the provider's name, else the email local part.
func displayName(name, email string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	if local, _, ok := strings.Cut(email, "@"); ok && local != "" {
		return local
	}
	return fallbackDisplayName
}
