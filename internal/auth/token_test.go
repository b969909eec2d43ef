package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/service-desk/internal/domain"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour)
	user := &domain.User{ID: "bob", Role: domain.RoleAdmin}

	token, err := tm.GenerateToken(user)
	require.NoError(t, err)
	assert.Equal(t, "bob", token.SubjectID)
	assert.Equal(t, domain.RoleAdmin, token.Role)

	claims, err := tm.ParseToken(token.Value)
	require.NoError(t, err)
	assert.Equal(t, "bob", claims.Subject)
	assert.Equal(t, domain.RoleAdmin, claims.Role)
}

func TestParseTokenRejectsExpired(t *testing.T) {
	tm := NewTokenManager("secret", time.Minute)
	issued := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tm.now = func() time.Time { return issued }

	token, err := tm.GenerateToken(&domain.User{ID: "alice", Role: domain.RoleMember})
	require.NoError(t, err)

	tm.now = func() time.Time { return issued.Add(2 * time.Minute) }
	_, err = tm.ParseToken(token.Value)
	assert.Error(t, err)
}

func TestParseTokenRejectsForeignSignature(t *testing.T) {
	token, err := NewTokenManager("one", time.Hour).GenerateToken(&domain.User{ID: "alice"})
	require.NoError(t, err)

	_, err = NewTokenManager("two", time.Hour).ParseToken(token.Value)
	assert.Error(t, err)

	_, err = NewTokenManager("one", time.Hour).ParseToken("not-a-jwt")
	assert.Error(t, err)
}
