package models

import "time"

// Role is the access level of a user.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User is the public profile stored at users/{id}.
type User struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	DisplayName string     `json:"displayName"`
	Role        Role       `json:"role"`
	Currency    string     `json:"currency"`
	CreatedAt   time.Time  `json:"createdAt"`
	LastLogin   *time.Time `json:"lastLogin,omitempty"`
}

// IsAdmin reports whether the user has the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Credentials holds the secrets of a user, stored apart from the profile at
// credentials/{id} and never serialized to clients.
type Credentials struct {
	PasswordHash        string     `json:"passwordHash"`
	RefreshTokenHash    string     `json:"refreshTokenHash,omitempty"`
	FailedLoginAttempts int        `json:"failedLoginAttempts,omitempty"`
	LastFailedLogin     *time.Time `json:"lastFailedLogin,omitempty"`
	LockedUntil         *time.Time `json:"lockedUntil,omitempty"`
}
