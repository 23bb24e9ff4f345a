package cognito

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/upb/identity-core/internal/observability"
	"github.com/upb/identity-core/models"
	"go.uber.org/zap"
)

const accessTokenUse = "access"

// Issuer returns the Cognito issuer URL for a user pool
func Issuer(region, userPoolID string) string {
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", region, userPoolID)
}

// JWKSURL returns the key set endpoint for an issuer
func JWKSURL(issuer string) string {
	return strings.TrimSuffix(issuer, "/") + "/.well-known/jwks.json"
}

// ValidatorConfig holds configuration for Validator
type ValidatorConfig struct {
	Issuer   string
	ClientID string
}

// Validator verifies Cognito access tokens
type Validator struct {
	issuer   string
	clientID string
	keys     *KeySet
	parser   *jwt.Parser
	logger   *zap.Logger
	metrics  observability.Metrics
}

// NewValidator creates a validator that resolves signing keys through keys
func NewValidator(cfg ValidatorConfig, keys *KeySet, logger *zap.Logger, metrics observability.Metrics) *Validator {
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return &Validator{
		issuer:   cfg.Issuer,
		clientID: cfg.ClientID,
		keys:     keys,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
		),
		logger:  logger,
		metrics: metrics,
	}
}

// Verify validates signature, issuer, audience, expiry and token use, and
// returns the token's claims. Failures are *models.TokenError.
func (v *Validator) Verify(ctx context.Context, tokenString string) (*models.TokenClaims, error) {
	claims, err := v.verify(ctx, tokenString)
	if err != nil {
		reason := models.TokenErrorReasonOf(err)
		v.metrics.RecordTokenVerification(string(reason))
		v.logger.Debug("token rejected", zap.String("reason", string(reason)))
		return nil, err
	}
	v.metrics.RecordTokenVerification("valid")
	return claims.ToTokenClaims(), nil
}

func (v *Validator) verify(ctx context.Context, tokenString string) (*Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, models.NewTokenError(models.TokenMalformed, errors.New("empty token"))
	}

	claims := &Claims{}
	_, err := v.parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, models.NewTokenError(models.TokenMalformed, errors.New("kid header not found"))
		}
		return v.keys.Key(ctx, kid)
	})
	if err != nil {
		return nil, classifyParseError(err)
	}

	if claims.Issuer != v.issuer {
		return nil, models.NewTokenError(models.TokenIssuer,
			fmt.Errorf("expected %s, got %s", v.issuer, claims.Issuer))
	}
	if !claims.issuedFor(v.clientID) {
		return nil, models.NewTokenError(models.TokenAudience, errors.New("token not issued for this client"))
	}
	if claims.TokenUse != accessTokenUse {
		return nil, models.NewTokenError(models.TokenUse,
			fmt.Errorf("expected %q token, got %q", accessTokenUse, claims.TokenUse))
	}
	if claims.Subject == "" {
		return nil, models.NewTokenError(models.TokenMalformed, errors.New("missing sub claim"))
	}

	return claims, nil
}

// classifyParseError maps jwt parse failures to a TokenError reason.
// Key lookup failures already carry their own reason.
func classifyParseError(err error) error {
	var tokenErr *models.TokenError
	if errors.As(err, &tokenErr) {
		return tokenErr
	}

	switch {
	case errors.Is(err, jwt.ErrTokenMalformed), errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return models.NewTokenError(models.TokenMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return models.NewTokenError(models.TokenSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return models.NewTokenError(models.TokenExpired, err)
	default:
		return models.NewTokenError(models.TokenMalformed, err)
	}
}
