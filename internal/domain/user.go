package domain

import "time"

// Role is the coarse permission level of a user.
type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleMember || r == RoleAdmin
}

// User is the local record for an authenticated principal.
type User struct {
	ID           string
	Name         string
	Email        string
	Role         Role
	PasswordHash string
	Provider     AuthProvider
	CreatedAt    time.Time
	LastLoginAt  time.Time
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}
