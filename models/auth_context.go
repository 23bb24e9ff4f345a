package models

import "github.com/google/uuid"

// AuthContext is the per-request authorization input. It is built once per
// request and not modified afterwards.
type AuthContext struct {
	UserID          *uuid.UUID `json:"user_id,omitempty"`
	Sub             string     `json:"sub,omitempty"`
	Email           string     `json:"email,omitempty"`
	Roles           []Role     `json:"roles"`
	Groups          []string   `json:"groups,omitempty"`
	IsAuthenticated bool       `json:"is_authenticated"`
}

// GuestContext returns the context used when no token was presented.
func GuestContext() *AuthContext {
	return &AuthContext{
		Roles:           []Role{RoleGuest},
		IsAuthenticated: false,
	}
}

// NewAuthenticatedContext builds an authenticated context.
func NewAuthenticatedContext(userID uuid.UUID, sub, email string, roles []Role, groups []string) *AuthContext {
	return &AuthContext{
		UserID:          &userID,
		Sub:             sub,
		Email:           email,
		Roles:           roles,
		Groups:          groups,
		IsAuthenticated: true,
	}
}

// HasRole checks if the context holds a role that satisfies role.
func (c *AuthContext) HasRole(role Role) bool {
	for _, r := range c.Roles {
		if r.Satisfies(role) {
			return true
		}
	}
	return false
}

// HasAnyRole checks if the context satisfies any of roles.
func (c *AuthContext) HasAnyRole(roles ...Role) bool {
	for _, role := range roles {
		if c.HasRole(role) {
			return true
		}
	}
	return false
}

// IsAdmin checks if the context has the admin role
func (c *AuthContext) IsAdmin() bool {
	return c.HasRole(RoleAdmin)
}
