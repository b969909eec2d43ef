package dto

import (
	"time"

	"github.com/spec-kit/service-desk/internal/domain"
)

// UserRegisterRequest payload for new users.
type UserRegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserLoginRequest payload for login.
type UserLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// PasswordResetRequest starts a reset.
type PasswordResetRequest struct {
	Email string `json:"email"`
}

// PasswordResetConfirmRequest completes a reset.
type PasswordResetConfirmRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// UserResponse is the public view of a user.
type UserResponse struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Email       string              `json:"email"`
	Role        domain.Role         `json:"role"`
	Provider    domain.AuthProvider `json:"provider"`
	CreatedAt   time.Time           `json:"created_at"`
	LastLoginAt time.Time           `json:"last_login_at"`
}

// SessionResponse pairs the signed-in user with their token.
type SessionResponse struct {
	User UserResponse `json:"user"`
	Auth AuthResponse `json:"auth"`
}

// NewUserResponse maps a user for output. The password hash never leaves
// the service.
func NewUserResponse(user *domain.User) UserResponse {
	return UserResponse{
		ID:          user.ID,
		Name:        user.Name,
		Email:       user.Email,
		Role:        user.Role,
		Provider:    user.Provider,
		CreatedAt:   user.CreatedAt,
		LastLoginAt: user.LastLoginAt,
	}
}

// NewSessionResponse maps a sign-in result.
func NewSessionResponse(user *domain.User, token domain.Token) SessionResponse {
	return SessionResponse{
		User: NewUserResponse(user),
		Auth: AuthResponse{Token: token.Value, ExpiresAt: token.ExpiresAt},
	}
}
