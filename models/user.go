package models

import (
	"time"

	"github.com/google/uuid"
)

// User is an internal account, independent of any external identity provider.
type User struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email,omitempty" db:"email"`
	Role      Role      `json:"role" db:"role"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// NewUser holds the fields needed to create a User. Role defaults to RoleUser.
type NewUser struct {
	Name  string
	Email string
	Role  Role
}

// TableName returns the table name for the User model
func (User) TableName() string {
	return "users"
}

// Build creates a User with a fresh ID and server-assigned timestamps.
func (n NewUser) Build() *User {
	role := n.Role
	if !role.IsUserRole() {
		role = RoleUser
	}
	now := time.Now().UTC()
	return &User{
		ID:        uuid.New(),
		Name:      n.Name,
		Email:     n.Email,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsAdmin returns true if the user has admin role
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
