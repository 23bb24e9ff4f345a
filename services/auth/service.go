// Package auth implements the sign-up, sign-in and sign-out use cases on top of
// an AuthenticationProvider and the local user and identity-link stores.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/upb/identity-core/models"
	"github.com/upb/identity-core/repositories"
	"github.com/upb/identity-core/services"
	"github.com/upb/identity-core/services/providers"
	"github.com/upb/identity-core/utils"
	"go.uber.org/zap"
)

var errSubjectLinked = errors.New("provider subject already linked")

// SignUpRequest is the input of the sign-up use case.
type SignUpRequest struct {
	Name     string `json:"name" validate:"required,max=255"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// SignInRequest is the input of the sign-in use case.
type SignInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// SignUpResult is the joined view returned after a successful sign-up.
type SignUpResult struct {
	Link      *models.IdentityLink `json:"identity_link"`
	User      *models.User         `json:"user"`
	Confirmed bool                 `json:"confirmed"`
}

// Service runs the authentication use cases.
type Service struct {
	provider providers.AuthenticationProvider
	repos    *repositories.Repositories
	logger   *zap.Logger
}

// NewService creates a new auth Service
func NewService(provider providers.AuthenticationProvider, repos *repositories.Repositories, logger *zap.Logger) *Service {
	return &Service{
		provider: provider,
		repos:    repos,
		logger:   logger.With(zap.String("provider", provider.ProviderName())),
	}
}

// SignUp registers the identity at the provider, then creates the user and
// its identity link in one transaction. When the transaction fails the
// external identity is deleted if the provider supports it; otherwise the
// orphan is logged for reconciliation. A subject already linked to another
// user is never deleted.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (*SignUpResult, error) {
	req.Email = strings.TrimSpace(req.Email)
	if err := validate(req); err != nil {
		return nil, err
	}

	external, err := s.provider.SignUp(ctx, req.Email, req.Password)
	if err != nil {
		return nil, providerError("sign-up failed", err)
	}
	if external.Subject == "" {
		return nil, services.WrapProvider("provider returned no subject", nil)
	}

	result, err := services.WithTransactionResult(ctx, s.repos.TxManager, func(ctx context.Context, tx repositories.Transaction) (*SignUpResult, error) {
		user, err := s.repos.Users.Create(ctx, models.NewUser{Name: req.Name, Email: req.Email})
		if err != nil {
			return nil, err
		}
		link, err := s.repos.IdentityLinks.Create(ctx, models.NewIdentityLink{
			Provider: s.provider.ProviderName(),
			Sub:      external.Subject,
			UserID:   user.ID,
		})
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, fmt.Errorf("%w: %w", errSubjectLinked, err)
		}
		if err != nil {
			return nil, err
		}
		return &SignUpResult{Link: link, User: user, Confirmed: external.Confirmed}, nil
	})
	if err != nil {
		return nil, s.failSignUp(ctx, external.Subject, err)
	}

	s.logger.Info("user signed up",
		zap.String("user_id", result.User.ID.String()),
		zap.String("sub", result.Link.Sub),
		zap.Bool("confirmed", result.Confirmed),
	)
	return result, nil
}

// failSignUp converts a failed sign-up transaction into a DomainError,
// compensating at the provider unless the subject belongs to another user.
func (s *Service) failSignUp(ctx context.Context, subject string, err error) error {
	if errors.Is(err, errSubjectLinked) {
		s.logger.Warn("sign-up returned an already linked subject",
			zap.String("sub", subject),
			zap.Error(err),
		)
		return services.NewDomainError(services.ErrorTypeConflict, services.ErrIdentityAlreadyLinked.Message, err)
	}

	s.compensate(ctx, subject, err)
	if errors.Is(err, repositories.ErrDuplicate) {
		return services.NewDomainError(services.ErrorTypeConflict, services.ErrAccountExists.Message, err)
	}
	return services.WrapPersistence("failed to create account", err)
}

// compensate undoes the provider registration after local persistence failed.
func (s *Service) compensate(ctx context.Context, subject string, cause error) {
	deleter, ok := s.provider.(providers.IdentityDeleter)
	if !ok {
		s.logger.Error("orphaned external identity after sign-up",
			zap.String("sub", subject),
			zap.Error(cause),
		)
		return
	}
	if err := deleter.DeleteIdentity(context.WithoutCancel(ctx), subject); err != nil {
		s.logger.Error("failed to delete external identity after sign-up",
			zap.String("sub", subject),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
		return
	}
	s.logger.Warn("rolled back external identity after sign-up", zap.String("sub", subject), zap.Error(cause))
}

// SignIn exchanges credentials for the provider's token set. The access token
// must verify and resolve to a linked local user; the token set is returned
// as issued.
func (s *Service) SignIn(ctx context.Context, req SignInRequest) (*models.TokenSet, error) {
	req.Email = strings.TrimSpace(req.Email)
	if err := validate(req); err != nil {
		return nil, err
	}

	tokens, err := s.provider.SignIn(ctx, req.Email, req.Password)
	if err != nil {
		return nil, providerError("sign-in failed", err)
	}

	claims, err := s.provider.VerifyToken(ctx, tokens.AccessToken)
	if err != nil {
		var tokenErr *models.TokenError
		if errors.As(err, &tokenErr) && tokenErr.IsTransport() {
			return nil, services.FromTokenError(err)
		}
		s.logger.Error("provider issued a token it cannot verify", zap.Error(err))
		return nil, services.WrapInternal("issued token failed verification", err)
	}

	link, err := s.repos.IdentityLinks.FindBySub(ctx, s.provider.ProviderName(), claims.Sub)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.NewDomainError(services.ErrorTypeNotFound, services.ErrIdentityLinkNotFound.Message, err)
		}
		return nil, services.WrapPersistence("failed to resolve identity link", err)
	}

	if _, err := s.repos.Users.GetByID(ctx, link.UserID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			s.logger.Error("identity link points at a missing user",
				zap.String("link_id", link.ID.String()),
				zap.String("user_id", link.UserID.String()),
			)
			return nil, services.NewDomainError(services.ErrorTypeNotFound, services.ErrUserNotFound.Message, err)
		}
		return nil, services.WrapPersistence("failed to load user", err)
	}

	s.logger.Debug("user signed in", zap.String("user_id", link.UserID.String()))
	return tokens, nil
}

// SignOut invalidates the identity's sessions at the provider. No local state
// changes.
func (s *Service) SignOut(ctx context.Context, identifier string) error {
	if identifier == "" {
		return services.NewDomainError(services.ErrorTypeValidation, "identifier is required", nil)
	}
	return s.provider.SignOut(ctx, identifier)
}

func validate(req interface{}) error {
	if err := utils.ValidateStruct(req); err != nil {
		return services.NewValidationError(err)
	}
	return nil
}

// providerError keeps typed provider failures and wraps anything else.
func providerError(message string, err error) error {
	var domainErr *services.DomainError
	if errors.As(err, &domainErr) {
		return err
	}
	return services.WrapProvider(message, err)
}
