// Package users implements user administration.
package users

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/upb/identity-core/models"
	"github.com/upb/identity-core/repositories"
	"github.com/upb/identity-core/services"
	"go.uber.org/zap"
)

// UpdateRoleRequest is the body of a role change.
type UpdateRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=user admin"`
}

// UpdateNameRequest is the body of a profile update.
type UpdateNameRequest struct {
	Name string `json:"name" validate:"required,max=255"`
}

// Statistics summarizes the user base for administrators.
type Statistics struct {
	TotalUsers    int       `json:"total_users"`
	AdminUsers    int       `json:"admin_users"`
	NewUsersToday int       `json:"new_users_today"`
	GeneratedAt   time.Time `json:"generated_at"`
}

// UserWithLinks is a user together with its identity links.
type UserWithLinks struct {
	*models.User
	Links []*models.IdentityLink `json:"identity_links"`
}

// Service handles user administration
type Service struct {
	users  repositories.UserRepository
	links  repositories.IdentityLinkRepository
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a new users Service
func NewService(repos *repositories.Repositories, logger *zap.Logger) *Service {
	return &Service{users: repos.Users, links: repos.IdentityLinks, logger: logger, now: time.Now}
}

// List returns all users, newest first
func (s *Service) List(ctx context.Context) ([]*models.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, services.WrapPersistence("failed to list users", err)
	}
	return users, nil
}

// Get returns a user with its identity links
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*UserWithLinks, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, storeError(err)
	}
	links, err := s.links.ListByUserID(ctx, id)
	if err != nil {
		return nil, services.WrapPersistence("failed to list identity links", err)
	}
	return &UserWithLinks{User: user, Links: links}, nil
}

// UpdateName changes a user's display name. Surrounding whitespace is dropped.
func (s *Service) UpdateName(ctx context.Context, id uuid.UUID, name string) (*models.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, services.NewDomainError(services.ErrorTypeValidation, "name is required", nil).
			WithDetail("name", "is required")
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, storeError(err)
	}
	if user.Name == name {
		return user, nil
	}

	user.Name = name
	updated, err := s.users.Update(ctx, user)
	if err != nil {
		return nil, storeError(err)
	}
	s.logger.Info("user name changed", zap.String("user_id", id.String()))
	return updated, nil
}

// Statistics counts users by role and those created since midnight UTC.
func (s *Service) Statistics(ctx context.Context) (*Statistics, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	stats := &Statistics{TotalUsers: len(all), GeneratedAt: now}
	for _, u := range all {
		if u.Role == models.RoleAdmin {
			stats.AdminUsers++
		}
		if !u.CreatedAt.Before(midnight) {
			stats.NewUsersToday++
		}
	}
	return stats, nil
}

// UpdateRole sets a user's persisted role. Only user and admin are accepted.
func (s *Service) UpdateRole(ctx context.Context, id uuid.UUID, role string) (*models.User, error) {
	parsed, err := models.ParseUserRole(role)
	if err != nil {
		return nil, services.NewDomainError(services.ErrorTypeValidation, "role must be one of: user admin", err)
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, storeError(err)
	}
	if user.Role == parsed {
		return user, nil
	}

	previous := user.Role
	user.Role = parsed
	updated, err := s.users.Update(ctx, user)
	if err != nil {
		return nil, storeError(err)
	}

	s.logger.Info("user role changed",
		zap.String("user_id", id.String()),
		zap.String("from", string(previous)),
		zap.String("to", string(parsed)),
	)
	return updated, nil
}

// Delete removes a user. Its identity links are removed with it.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.users.Delete(ctx, id); err != nil {
		return storeError(err)
	}
	s.logger.Info("user deleted", zap.String("user_id", id.String()))
	return nil
}

func storeError(err error) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return services.NewDomainError(services.ErrorTypeNotFound, services.ErrUserNotFound.Message, err)
	}
	return services.WrapPersistence("user store failure", err)
}
