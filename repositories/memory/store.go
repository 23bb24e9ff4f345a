// Package memory provides thread-safe in-memory repositories with the same
// invariants as the postgres implementation. Used by tests and local development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/upb/identity-core/models"
	"github.com/upb/identity-core/repositories"
)

// Store holds users and identity links behind a single lock so that
// uniqueness and cascade rules are checked atomically.
type Store struct {
	mu    sync.RWMutex
	users map[uuid.UUID]models.User
	links map[string]models.IdentityLink
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		users: make(map[uuid.UUID]models.User),
		links: make(map[string]models.IdentityLink),
	}
}

// Repositories returns repository views backed by this store
func (s *Store) Repositories() *repositories.Repositories {
	return &repositories.Repositories{
		Users:         &UserRepository{store: s},
		IdentityLinks: &IdentityLinkRepository{store: s},
		TxManager:     &TransactionManager{store: s},
	}
}

// UserRepository implements repositories.UserRepository
type UserRepository struct {
	store *Store
}

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, newUser models.NewUser) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	user := newUser.Build()

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[user.ID]; exists {
		return nil, fmt.Errorf("user %s: %w", user.ID, repositories.ErrDuplicate)
	}
	s.users[user.ID] = *user
	s.journal(ctx, func() { delete(s.users, user.ID) })

	out := *user
	return &out, nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, repositories.ErrNotFound)
	}
	return &user, nil
}

// List retrieves all users, newest first
func (r *UserRepository) List(ctx context.Context) ([]*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := r.store
	s.mu.RLock()
	users := make([]*models.User, 0, len(s.users))
	for _, u := range s.users {
		u := u
		users = append(users, &u)
	}
	s.mu.RUnlock()

	sort.Slice(users, func(i, j int) bool {
		return users[i].CreatedAt.After(users[j].CreatedAt)
	})
	return users, nil
}

// Update updates name, email and role
func (r *UserRepository) Update(ctx context.Context, user *models.User) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !user.Role.IsUserRole() {
		return nil, fmt.Errorf("invalid role %q for user %s", user.Role, user.ID)
	}

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.users[user.ID]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", user.ID, repositories.ErrNotFound)
	}
	updated := prev
	updated.Name = user.Name
	updated.Email = user.Email
	updated.Role = user.Role
	updated.UpdatedAt = time.Now().UTC()
	s.users[user.ID] = updated
	s.journal(ctx, func() { s.users[user.ID] = prev })

	return &updated, nil
}

// Delete deletes a user and cascades its identity links
func (r *UserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.users[id]
	if !ok {
		return fmt.Errorf("user %s: %w", id, repositories.ErrNotFound)
	}
	delete(s.users, id)

	removed := make([]models.IdentityLink, 0)
	for key, link := range s.links {
		if link.UserID == id {
			removed = append(removed, link)
			delete(s.links, key)
		}
	}
	s.journal(ctx, func() {
		s.users[id] = prev
		for _, link := range removed {
			s.links[link.Key()] = link
		}
	})
	return nil
}

// IdentityLinkRepository implements repositories.IdentityLinkRepository
type IdentityLinkRepository struct {
	store *Store
}

// Create creates a new identity link. The owning user must exist.
func (r *IdentityLinkRepository) Create(ctx context.Context, newLink models.NewIdentityLink) (*models.IdentityLink, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	link := newLink.Build()
	key := link.Key()

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.links[key]; exists {
		return nil, fmt.Errorf("identity %s already linked: %w", key, repositories.ErrDuplicate)
	}
	if _, ok := s.users[link.UserID]; !ok {
		return nil, fmt.Errorf("identity link owner %s: %w", link.UserID, repositories.ErrNotFound)
	}
	s.links[key] = *link
	s.journal(ctx, func() { delete(s.links, key) })

	out := *link
	return &out, nil
}

// FindBySub retrieves the link for a subject at a provider
func (r *IdentityLinkRepository) FindBySub(ctx context.Context, provider, sub string) (*models.IdentityLink, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := models.LinkKey(provider, sub)

	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	link, ok := s.links[key]
	if !ok {
		return nil, fmt.Errorf("identity link %s: %w", key, repositories.ErrNotFound)
	}
	return &link, nil
}

// ListByUserID retrieves all links owned by a user
func (r *IdentityLinkRepository) ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.IdentityLink, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := r.store
	s.mu.RLock()
	links := make([]*models.IdentityLink, 0)
	for _, link := range s.links {
		if link.UserID == userID {
			link := link
			links = append(links, &link)
		}
	}
	s.mu.RUnlock()

	sort.Slice(links, func(i, j int) bool {
		return links[i].CreatedAt.Before(links[j].CreatedAt)
	})
	return links, nil
}
