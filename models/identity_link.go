package models

import (
	"time"

	"github.com/google/uuid"
)

// IdentityLink binds an external subject at a provider to an internal user.
// The pair (Provider, Sub) is unique.
type IdentityLink struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Provider  string    `json:"provider" db:"provider"`
	Sub       string    `json:"sub" db:"sub"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// NewIdentityLink holds the fields needed to create an IdentityLink.
type NewIdentityLink struct {
	Provider string
	Sub      string
	UserID   uuid.UUID
}

// TableName returns the table name for the IdentityLink model
func (IdentityLink) TableName() string {
	return "identity_links"
}

// Build creates an IdentityLink with a fresh ID and timestamps.
func (n NewIdentityLink) Build() *IdentityLink {
	now := time.Now().UTC()
	return &IdentityLink{
		ID:        uuid.New(),
		Provider:  n.Provider,
		Sub:       n.Sub,
		UserID:    n.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Key returns "provider:sub", used for caching and logging.
func (l *IdentityLink) Key() string {
	return LinkKey(l.Provider, l.Sub)
}

// LinkKey formats a provider/subject pair.
func LinkKey(provider, sub string) string {
	return provider + ":" + sub
}
