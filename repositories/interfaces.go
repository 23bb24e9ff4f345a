package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/upb/identity-core/models"
)

var (
	// ErrNotFound is returned when a lookup matches no row
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when a uniqueness constraint is violated
	ErrDuplicate = errors.New("duplicate record")
)

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction.
	// Repositories called with the ctx passed to fn join the transaction.
	// Commits if fn succeeds, rolls back on error.
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// UserRepository handles user data operations
type UserRepository interface {
	// Create persists a new user and returns it with server-assigned fields
	Create(ctx context.Context, user models.NewUser) (*models.User, error)

	// GetByID retrieves a user by ID. Returns ErrNotFound when absent.
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	// List retrieves all users, newest first
	List(ctx context.Context) ([]*models.User, error)

	// Update updates name, email and role; UpdatedAt is refreshed
	Update(ctx context.Context, user *models.User) (*models.User, error)

	// Delete deletes a user; identity links cascade
	Delete(ctx context.Context, id uuid.UUID) error
}

// IdentityLinkRepository handles identity link data operations
type IdentityLinkRepository interface {
	// Create persists a new link. Returns ErrDuplicate if (provider, sub) exists.
	Create(ctx context.Context, link models.NewIdentityLink) (*models.IdentityLink, error)

	// FindBySub retrieves the link for a subject at a provider.
	// Returns ErrNotFound when absent.
	FindBySub(ctx context.Context, provider, sub string) (*models.IdentityLink, error)

	// ListByUserID retrieves all links owned by a user
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.IdentityLink, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Users         UserRepository
	IdentityLinks IdentityLinkRepository
	TxManager     TransactionManager
}
