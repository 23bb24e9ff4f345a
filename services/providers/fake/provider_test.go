package fake

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/identity-core/models"
	"github.com/upb/identity-core/services"
	"github.com/upb/identity-core/services/providers"
	"golang.org/x/crypto/bcrypt"
)

var (
	_ providers.AuthenticationProvider = (*Provider)(nil)
	_ providers.IdentityDeleter        = (*Provider)(nil)
)

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	p, err := New(Config{BcryptCost: bcrypt.MinCost, Groups: []string{"users"}})
	require.NoError(t, err)
	return p
}

func TestProvider_SignUpSignIn(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)

	result, err := p.SignUp(ctx, "Ann@Example.com", "longenough1")
	require.NoError(t, err)
	assert.True(t, result.Confirmed)
	assert.NotEmpty(t, result.Subject)

	t.Run("duplicate email", func(t *testing.T) {
		_, err := p.SignUp(ctx, "ann@example.com", "longenough1")
		assert.True(t, services.IsConflictError(err))
	})

	t.Run("short password", func(t *testing.T) {
		_, err := p.SignUp(ctx, "bob@example.com", "short")
		assert.True(t, services.IsValidationError(err))
	})

	t.Run("sign in and verify", func(t *testing.T) {
		tokens, err := p.SignIn(ctx, "ann@example.com", "longenough1")
		require.NoError(t, err)
		assert.Equal(t, "Bearer", tokens.TokenType)
		assert.Equal(t, 3600, tokens.ExpiresIn)

		claims, err := p.VerifyToken(ctx, tokens.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, result.Subject, claims.Sub)
		assert.Equal(t, "ann@example.com", claims.Email)
		assert.Equal(t, []string{"users"}, claims.Groups)

		_, err = p.VerifyToken(ctx, tokens.IDToken)
		assert.Equal(t, models.TokenUse, models.TokenErrorReasonOf(err))
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := p.SignIn(ctx, "ann@example.com", "wrong-password")
		assert.True(t, services.IsInvalidCredentialsError(err))
	})

	t.Run("unknown email", func(t *testing.T) {
		_, err := p.SignIn(ctx, "nobody@example.com", "longenough1")
		assert.True(t, services.IsInvalidCredentialsError(err))
	})
}

func TestProvider_VerifyToken(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)
	_, err := p.SignUp(ctx, "ann@example.com", "longenough1")
	require.NoError(t, err)
	tokens, err := p.SignIn(ctx, "ann@example.com", "longenough1")
	require.NoError(t, err)

	t.Run("expired", func(t *testing.T) {
		p.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		defer func() { p.now = time.Now }()
		_, err := p.VerifyToken(ctx, tokens.AccessToken)
		assert.Equal(t, models.TokenExpired, models.TokenErrorReasonOf(err))
	})

	t.Run("other provider instance", func(t *testing.T) {
		other := newTestProvider(t)
		_, err := other.VerifyToken(ctx, tokens.AccessToken)
		assert.Equal(t, models.TokenSignature, models.TokenErrorReasonOf(err))
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := p.VerifyToken(ctx, "garbage")
		assert.Equal(t, models.TokenMalformed, models.TokenErrorReasonOf(err))
	})
}

func TestProvider_SignOut(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)
	_, err := p.SignUp(ctx, "ann@example.com", "longenough1")
	require.NoError(t, err)

	first, err := p.SignIn(ctx, "ann@example.com", "longenough1")
	require.NoError(t, err)
	second, err := p.SignIn(ctx, "ann@example.com", "longenough1")
	require.NoError(t, err)

	require.NoError(t, p.SignOut(ctx, first.AccessToken))

	_, err = p.VerifyToken(ctx, first.AccessToken)
	assert.Equal(t, models.TokenRevoked, models.TokenErrorReasonOf(err))
	_, err = p.VerifyToken(ctx, second.AccessToken)
	assert.Equal(t, models.TokenRevoked, models.TokenErrorReasonOf(err), "global sign out voids every session")

	assert.True(t, services.IsUnauthorizedError(p.SignOut(ctx, first.AccessToken)))

	fresh, err := p.SignIn(ctx, "ann@example.com", "longenough1")
	require.NoError(t, err)
	_, err = p.VerifyToken(ctx, fresh.AccessToken)
	assert.NoError(t, err)
}

func TestProvider_DeleteIdentity(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)
	result, err := p.SignUp(ctx, "ann@example.com", "longenough1")
	require.NoError(t, err)

	require.NoError(t, p.DeleteIdentity(ctx, result.Subject))
	_, err = p.SignIn(ctx, "ann@example.com", "longenough1")
	assert.True(t, services.IsInvalidCredentialsError(err))

	assert.True(t, services.IsNotFoundError(p.DeleteIdentity(ctx, result.Subject)))

	_, err = p.SignUp(ctx, "ann@example.com", "longenough1")
	assert.NoError(t, err, "email is free again after deletion")
}
