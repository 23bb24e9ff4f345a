package providers

import (
	"context"

	"github.com/upb/identity-core/models"
)

// AuthenticationProvider abstracts the external identity system.
// Implementations return *services.DomainError for provider-side failures and
// *models.TokenError from VerifyToken.
type AuthenticationProvider interface {
	// ProviderName returns the stable tag recorded on identity links
	ProviderName() string

	// SignUp registers a new external identity. No local records are created.
	SignUp(ctx context.Context, email, password string) (*models.SignUpResult, error)

	// SignIn exchanges credentials for a token set
	SignIn(ctx context.Context, email, password string) (*models.TokenSet, error)

	// SignOut invalidates all active sessions of the identity
	SignOut(ctx context.Context, identifier string) error

	// VerifyToken verifies an access token issued by this provider
	VerifyToken(ctx context.Context, token string) (*models.TokenClaims, error)
}

// IdentityDeleter is implemented by providers that can remove an identity.
// Sign-up uses it to compensate when local persistence fails.
type IdentityDeleter interface {
	DeleteIdentity(ctx context.Context, subject string) error
}
