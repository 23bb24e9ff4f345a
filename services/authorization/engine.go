// Package authorization turns bearer tokens into AuthContexts and enforces
// role requirements.
package authorization

import (
	"context"
	"errors"

	"github.com/upb/identity-core/internal/observability"
	"github.com/upb/identity-core/models"
	"github.com/upb/identity-core/repositories"
	"github.com/upb/identity-core/services"
	"github.com/upb/identity-core/services/providers"
	"go.uber.org/zap"
)

// Engine builds per-request AuthContexts. It never downgrades a rejected
// token to guest; that policy belongs to the caller.
type Engine struct {
	provider providers.AuthenticationProvider
	users    repositories.UserRepository
	links    repositories.IdentityLinkRepository
	cache    *LinkCache
	metrics  observability.Metrics
	logger   *zap.Logger
}

// NewEngine creates an Engine. cache may be nil to disable link caching.
func NewEngine(
	provider providers.AuthenticationProvider,
	repos *repositories.Repositories,
	cache *LinkCache,
	metrics observability.Metrics,
	logger *zap.Logger,
) *Engine {
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return &Engine{
		provider: provider,
		users:    repos.Users,
		links:    repos.IdentityLinks,
		cache:    cache,
		metrics:  metrics,
		logger:   logger,
	}
}

// ContextFromToken verifies token and resolves it to a local user. An empty
// token yields the guest context.
func (e *Engine) ContextFromToken(ctx context.Context, token string) (*models.AuthContext, error) {
	if token == "" {
		e.metrics.RecordAuthContext(observability.OutcomeGuest)
		return models.GuestContext(), nil
	}

	authCtx, err := e.resolve(ctx, token)
	if err != nil {
		e.metrics.RecordAuthContext(observability.OutcomeRejected)
		return nil, err
	}
	e.metrics.RecordAuthContext(observability.OutcomeAuthenticated)
	return authCtx, nil
}

func (e *Engine) resolve(ctx context.Context, token string) (*models.AuthContext, error) {
	claims, err := e.provider.VerifyToken(ctx, token)
	if err != nil {
		return nil, services.FromTokenError(err)
	}

	link, err := e.findLink(ctx, claims.Sub)
	if err != nil {
		return nil, err
	}

	user, err := e.users.GetByID(ctx, link.UserID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			if e.cache != nil {
				e.cache.Invalidate(link.Provider, link.Sub)
			}
			return nil, services.NewDomainError(services.ErrorTypeNotFound, services.ErrUserNotFound.Message, err)
		}
		return nil, services.WrapPersistence("failed to load user", err)
	}

	roles := e.deriveRoles(user, claims.Groups)
	// Access tokens usually omit email; the stored address fills the gap
	email := claims.Email
	if email == "" {
		email = user.Email
	}
	return models.NewAuthenticatedContext(user.ID, claims.Sub, email, roles, claims.Groups), nil
}

func (e *Engine) findLink(ctx context.Context, sub string) (*models.IdentityLink, error) {
	provider := e.provider.ProviderName()
	if e.cache != nil {
		if link := e.cache.Get(provider, sub); link != nil {
			return link, nil
		}
	}

	link, err := e.links.FindBySub(ctx, provider, sub)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.NewDomainError(services.ErrorTypeNotFound, services.ErrIdentityLinkNotFound.Message, err)
		}
		return nil, services.WrapPersistence("failed to resolve identity link", err)
	}

	if e.cache != nil {
		e.cache.Set(link)
	}
	return link, nil
}

// deriveRoles starts from the persisted role. Groups are advisory: they can
// restate a role the user already holds but never grant a higher one.
func (e *Engine) deriveRoles(user *models.User, groups []string) []models.Role {
	roles := []models.Role{models.RoleUser}
	if user.Role == models.RoleAdmin {
		roles = []models.Role{models.RoleAdmin, models.RoleUser}
	}

	for _, group := range groups {
		role, ok := models.RoleFromGroup(group)
		if !ok {
			continue
		}
		if !user.Role.Satisfies(role) {
			e.logger.Warn("ignoring provider group above persisted role",
				zap.String("user_id", user.ID.String()),
				zap.String("group", group),
				zap.String("role", string(user.Role)),
			)
		}
	}
	return roles
}

// RequireAuthenticated fails with unauthorized for guest contexts.
func RequireAuthenticated(authCtx *models.AuthContext) error {
	if authCtx == nil || !authCtx.IsAuthenticated {
		return services.ErrUnauthorized
	}
	return nil
}

// RequireAnyRole fails with unauthorized for guests and forbidden when the
// context satisfies none of roles. Admin satisfies user.
func RequireAnyRole(authCtx *models.AuthContext, roles ...models.Role) error {
	if err := RequireAuthenticated(authCtx); err != nil {
		return err
	}
	if !authCtx.HasAnyRole(roles...) {
		return services.ErrForbidden
	}
	return nil
}
