// Package fake implements an in-memory AuthenticationProvider for tests and
// local development. Tokens are HS256 JWTs signed with a per-process secret.
package fake

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/upb/identity-core/models"
	"github.com/upb/identity-core/services"
	"golang.org/x/crypto/bcrypt"
)

// Name is the provider tag
const Name = "fake"

const issuer = "urn:identity-core:fake"

// Config holds configuration for Provider
type Config struct {
	// TokenTTL is the access token lifetime
	TokenTTL time.Duration
	// BcryptCost defaults to bcrypt.DefaultCost
	BcryptCost int
	// Groups assigned to every new account
	Groups []string
}

type account struct {
	sub          string
	email        string
	passwordHash []byte
	groups       []string
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Email    string   `json:"email"`
	Groups   []string `json:"groups,omitempty"`
	TokenUse string   `json:"token_use"`
}

// Provider is an in-memory identity provider
type Provider struct {
	cfg    Config
	secret []byte
	now    func() time.Time

	mu       sync.RWMutex
	accounts map[string]*account        // by email
	issued   map[string]map[string]bool // sub -> jti
	voided   map[string]bool            // jti
}

// New creates a provider with a random signing secret
func New(cfg Config) (*Provider, error) {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = time.Hour
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate signing secret: %w", err)
	}

	return &Provider{
		cfg:      cfg,
		secret:   secret,
		now:      time.Now,
		accounts: make(map[string]*account),
		issued:   make(map[string]map[string]bool),
		voided:   make(map[string]bool),
	}, nil
}

// ProviderName returns the provider tag
func (p *Provider) ProviderName() string {
	return Name
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SignUp registers an account. Accounts are confirmed immediately.
func (p *Provider) SignUp(ctx context.Context, email, password string) (*models.SignUpResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, services.WrapProvider("sign-up cancelled", err)
	}
	email = normalizeEmail(email)
	if email == "" {
		return nil, services.NewDomainError(services.ErrorTypeValidation, "email is required", nil)
	}
	if len(password) < 8 {
		return nil, services.NewDomainError(services.ErrorTypeValidation, "password does not meet the policy", nil)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cfg.BcryptCost)
	if err != nil {
		return nil, services.WrapProvider("failed to hash password", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.accounts[email]; exists {
		return nil, services.NewDomainError(services.ErrorTypeConflict, "an account with this email already exists", nil)
	}
	acct := &account{
		sub:          uuid.NewString(),
		email:        email,
		passwordHash: hash,
		groups:       append([]string(nil), p.cfg.Groups...),
	}
	p.accounts[email] = acct

	return &models.SignUpResult{Subject: acct.sub, Confirmed: true}, nil
}

// SignIn checks the password and issues a token set
func (p *Provider) SignIn(ctx context.Context, email, password string) (*models.TokenSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, services.WrapProvider("sign-in cancelled", err)
	}

	p.mu.RLock()
	acct, ok := p.accounts[normalizeEmail(email)]
	p.mu.RUnlock()
	if !ok {
		return nil, services.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(acct.passwordHash, []byte(password)); err != nil {
		return nil, services.ErrInvalidCredentials
	}

	access, err := p.issue(acct, "access")
	if err != nil {
		return nil, services.WrapProvider("failed to issue access token", err)
	}
	id, err := p.issue(acct, "id")
	if err != nil {
		return nil, services.WrapProvider("failed to issue id token", err)
	}

	return &models.TokenSet{
		AccessToken:  access,
		IDToken:      id,
		RefreshToken: uuid.NewString(),
		ExpiresIn:    int(p.cfg.TokenTTL / time.Second),
		TokenType:    "Bearer",
	}, nil
}

func (p *Provider) issue(acct *account, use string) (string, error) {
	now := p.now()
	jti := uuid.NewString()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   acct.sub,
			Audience:  jwt.ClaimStrings{Name},
			ExpiresAt: jwt.NewNumericDate(now.Add(p.cfg.TokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        jti,
		},
		Email:    acct.email,
		Groups:   acct.groups,
		TokenUse: use,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", err
	}

	p.mu.Lock()
	if p.issued[acct.sub] == nil {
		p.issued[acct.sub] = make(map[string]bool)
	}
	p.issued[acct.sub][jti] = true
	p.mu.Unlock()

	return signed, nil
}

// SignOut voids every token issued to the identity. identifier is an access token.
func (p *Provider) SignOut(ctx context.Context, identifier string) error {
	if err := ctx.Err(); err != nil {
		return services.WrapProvider("sign-out cancelled", err)
	}
	claims, err := p.VerifyToken(ctx, identifier)
	if err != nil {
		return services.NewDomainError(services.ErrorTypeUnauthorized, "session is no longer valid", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for jti := range p.issued[claims.Sub] {
		p.voided[jti] = true
	}
	delete(p.issued, claims.Sub)
	return nil
}

// VerifyToken verifies an access token issued by this provider
func (p *Provider) VerifyToken(ctx context.Context, token string) (*models.TokenClaims, error) {
	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return p.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		return nil, classify(err)
	}

	if claims.Issuer != issuer {
		return nil, models.NewTokenError(models.TokenIssuer, fmt.Errorf("unexpected issuer %q", claims.Issuer))
	}
	aud, _ := claims.GetAudience()
	if len(aud) != 1 || aud[0] != Name {
		return nil, models.NewTokenError(models.TokenAudience, errors.New("token not issued for this client"))
	}
	if claims.TokenUse != "access" {
		return nil, models.NewTokenError(models.TokenUse, fmt.Errorf("expected access token, got %q", claims.TokenUse))
	}

	p.mu.RLock()
	voided := p.voided[claims.ID]
	p.mu.RUnlock()
	if voided {
		return nil, models.NewTokenError(models.TokenRevoked, errors.New("session signed out"))
	}

	out := &models.TokenClaims{
		Sub:      claims.Subject,
		Email:    claims.Email,
		Username: claims.Email,
		TokenUse: claims.TokenUse,
		ClientID: Name,
	}
	if len(claims.Groups) > 0 {
		out.Groups = append([]string(nil), claims.Groups...)
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

// DeleteIdentity removes the account with the given subject
func (p *Provider) DeleteIdentity(ctx context.Context, subject string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	for email, acct := range p.accounts {
		if acct.sub == subject {
			delete(p.accounts, email)
			for jti := range p.issued[subject] {
				p.voided[jti] = true
			}
			delete(p.issued, subject)
			return nil
		}
	}
	return services.NewDomainError(services.ErrorTypeNotFound, "identity not found", nil)
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return models.NewTokenError(models.TokenExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return models.NewTokenError(models.TokenSignature, err)
	default:
		return models.NewTokenError(models.TokenMalformed, err)
	}
}
