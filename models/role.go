package models

import (
	"fmt"
	"strings"
)

// Role is a coarse authorization tag.
// Users persist either RoleUser or RoleAdmin; RoleGuest only ever appears on
// unauthenticated request contexts.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
	RoleGuest Role = "guest"
)

// ParseUserRole parses a persisted user role. Only "user" and "admin" are accepted.
func ParseUserRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleUser:
		return RoleUser, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", fmt.Errorf("unknown user role %q", s)
	}
}

// RoleFromGroup maps a provider group name onto a Role.
// Unknown groups map to nothing.
func RoleFromGroup(group string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(group)) {
	case "admin", "admins", "administrators":
		return RoleAdmin, true
	case "user", "users":
		return RoleUser, true
	default:
		return "", false
	}
}

// IsUserRole reports whether r can be stored on a User.
func (r Role) IsUserRole() bool {
	return r == RoleUser || r == RoleAdmin
}

// Satisfies reports whether holding r meets a requirement for required.
// Admin is a strict superset of User.
func (r Role) Satisfies(required Role) bool {
	if r == required {
		return true
	}
	return r == RoleAdmin && required == RoleUser
}

func (r Role) String() string {
	return string(r)
}
