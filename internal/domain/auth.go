package domain

import "time"

// AuthProvider names where a user's credentials live.
type AuthProvider string

const (
	ProviderPassword AuthProvider = "password"
	ProviderGitHub   AuthProvider = "github"
)

// ExternalIdentity is what an authentication provider returns after a
// successful sign-in, before it is mapped to a local User.
type ExternalIdentity struct {
	Provider    AuthProvider
	Subject     string
	Email       string
	DisplayName string
}

// Token represents issued access token metadata.
type Token struct {
	Value     string
	SubjectID string
	Role      Role
	ExpiresAt time.Time
}

// PasswordResetToken is a one-time token allowing a password change.
type PasswordResetToken struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
}
