package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/service-desk/internal/clock"
	"github.com/spec-kit/service-desk/internal/domain"
	apperrors "github.com/spec-kit/service-desk/pkg/util/errorutil"
)

func TestResolveCreatesThenReuses(t *testing.T) {
	clk := clock.Fake(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	users := newFakeUserRepo()
	resolver := NewIdentityResolver(users, clk, []string{" Admin@Example.com "})
	ctx := context.Background()

	member, err := resolver.Resolve(ctx, domain.ExternalIdentity{
		Provider: domain.ProviderGitHub, Subject: "1", Email: "Eve@Example.com", DisplayName: " Eve ",
	})
	require.NoError(t, err)
	assert.Equal(t, "Eve", member.Name)
	assert.Equal(t, "eve@example.com", member.Email)
	assert.Equal(t, domain.RoleMember, member.Role)
	assert.Equal(t, clk.Now(), member.CreatedAt)

	clk.Advance(time.Hour)
	again, err := resolver.Resolve(ctx, domain.ExternalIdentity{Email: "eve@example.com"})
	require.NoError(t, err)
	assert.Equal(t, member.ID, again.ID)
	assert.Equal(t, member.CreatedAt, again.CreatedAt)
	assert.Equal(t, clk.Now(), again.LastLoginAt)

	admin, err := resolver.Resolve(ctx, domain.ExternalIdentity{Email: "admin@example.com"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, admin.Role)
}

func TestResolveRequiresEmail(t *testing.T) {
	resolver := NewIdentityResolver(newFakeUserRepo(), nil, nil)

	_, err := resolver.Resolve(context.Background(), domain.ExternalIdentity{Email: "  "})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestDisplayName(t *testing.T) {
	cases := map[string]struct {
		name, email, want string
	}{
		"provider name": {"Grace Hopper", "grace@example.com", "Grace Hopper"},
		"local part":    {"  ", "grace@example.com", "grace"},
		"no local part": {"", "@example.com", fallbackDisplayName},
		"no at sign":    {"", "grace", fallbackDisplayName},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, displayName(tc.name, tc.email))
		})
	}
}

func TestSetRole(t *testing.T) {
	users := newFakeUserRepo(&domain.User{ID: "u1", Email: "carol@example.com", Role: domain.RoleMember})
	resolver := NewIdentityResolver(users, nil, nil)
	ctx := context.Background()

	user, err := resolver.SetRole(ctx, "CAROL@example.com", domain.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, user.Role)

	stored, err := users.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, stored.IsAdmin())

	_, err = resolver.SetRole(ctx, "carol@example.com", "owner")
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	_, err = resolver.SetRole(ctx, "nobody@example.com", domain.RoleAdmin)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
