package cognito

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/upb/identity-core/internal/observability"
	"github.com/upb/identity-core/models"
	"github.com/upb/identity-core/services"
	"go.uber.org/zap"
)

// ProviderName is the tag recorded on identity links created through Cognito
const ProviderName = "cognito"

const (
	targetPrefix    = "AWSCognitoIdentityProviderService."
	amzJSONContent  = "application/x-amz-json-1.1"
	maxResponseBody = 1 << 20
)

// TokenVerifier verifies access tokens
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*models.TokenClaims, error)
}

// ProviderConfig holds configuration for Provider
type ProviderConfig struct {
	Region       string
	ClientID     string
	ClientSecret string
	// Endpoint overrides https://cognito-idp.{region}.amazonaws.com/
	Endpoint string
	Timeout  time.Duration
}

// Provider performs sign-up, sign-in and sign-out against a Cognito user
// pool app client through the Identity Provider JSON API.
type Provider struct {
	cfg        ProviderConfig
	endpoint   string
	httpClient *http.Client
	verifier   TokenVerifier
	logger     *zap.Logger
	metrics    observability.Metrics
}

// NewProvider creates a Cognito provider. verifier backs VerifyToken.
func NewProvider(cfg ProviderConfig, verifier TokenVerifier, logger *zap.Logger, metrics observability.Metrics) *Provider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/", cfg.Region)
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}

	return &Provider{
		cfg:        cfg,
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		verifier:   verifier,
		logger:     logger.With(zap.String("provider", ProviderName)),
		metrics:    metrics,
	}
}

// ProviderName returns the stable provider tag
func (p *Provider) ProviderName() string {
	return ProviderName
}

type attributeType struct {
	Name  string `json:"Name"`
	Value string `json:"Value"`
}

type signUpRequest struct {
	ClientID       string          `json:"ClientId"`
	Username       string          `json:"Username"`
	Password       string          `json:"Password"`
	SecretHash     string          `json:"SecretHash,omitempty"`
	UserAttributes []attributeType `json:"UserAttributes"`
}

type signUpResponse struct {
	UserConfirmed bool   `json:"UserConfirmed"`
	UserSub       string `json:"UserSub"`
	Session       string `json:"Session"`
}

// SignUp registers a new user in the pool. No local records are created.
func (p *Provider) SignUp(ctx context.Context, email, password string) (*models.SignUpResult, error) {
	req := signUpRequest{
		ClientID:       p.cfg.ClientID,
		Username:       email,
		Password:       password,
		SecretHash:     p.secretHash(email),
		UserAttributes: []attributeType{{Name: "email", Value: email}},
	}

	var resp signUpResponse
	if err := p.call(ctx, "SignUp", req, &resp); err != nil {
		return nil, err
	}
	if resp.UserSub == "" {
		return nil, services.WrapProvider("identity provider returned no subject", nil)
	}

	return &models.SignUpResult{
		Subject:   resp.UserSub,
		Confirmed: resp.UserConfirmed,
		Session:   resp.Session,
	}, nil
}

type initiateAuthRequest struct {
	AuthFlow       string            `json:"AuthFlow"`
	ClientID       string            `json:"ClientId"`
	AuthParameters map[string]string `json:"AuthParameters"`
}

type authenticationResult struct {
	AccessToken  string `json:"AccessToken"`
	IDToken      string `json:"IdToken"`
	RefreshToken string `json:"RefreshToken"`
	ExpiresIn    int    `json:"ExpiresIn"`
	TokenType    string `json:"TokenType"`
}

type initiateAuthResponse struct {
	AuthenticationResult *authenticationResult `json:"AuthenticationResult"`
	ChallengeName        string                `json:"ChallengeName"`
	Session              string                `json:"Session"`
}

// SignIn exchanges email and password for a token set
func (p *Provider) SignIn(ctx context.Context, email, password string) (*models.TokenSet, error) {
	params := map[string]string{
		"USERNAME": email,
		"PASSWORD": password,
	}
	if hash := p.secretHash(email); hash != "" {
		params["SECRET_HASH"] = hash
	}
	req := initiateAuthRequest{
		AuthFlow:       "USER_PASSWORD_AUTH",
		ClientID:       p.cfg.ClientID,
		AuthParameters: params,
	}

	var resp initiateAuthResponse
	if err := p.call(ctx, "InitiateAuth", req, &resp); err != nil {
		return nil, err
	}

	result := resp.AuthenticationResult
	if result == nil || result.AccessToken == "" {
		if resp.ChallengeName != "" {
			return nil, services.NewDomainError(services.ErrorTypeUnauthorized,
				"additional authentication step required", nil).
				WithDetail("challenge", resp.ChallengeName)
		}
		return nil, services.WrapProvider("identity provider returned no tokens", nil)
	}

	return &models.TokenSet{
		AccessToken:  result.AccessToken,
		IDToken:      result.IDToken,
		RefreshToken: result.RefreshToken,
		ExpiresIn:    result.ExpiresIn,
		TokenType:    result.TokenType,
	}, nil
}

type globalSignOutRequest struct {
	AccessToken string `json:"AccessToken"`
}

// SignOut revokes every session of the identity. identifier is the
// caller's access token.
func (p *Provider) SignOut(ctx context.Context, identifier string) error {
	if identifier == "" {
		return services.ErrUnauthorized
	}
	err := p.call(ctx, "GlobalSignOut", globalSignOutRequest{AccessToken: identifier}, nil)
	if services.IsInvalidCredentialsError(err) {
		// A revoked or expired access token
		return services.NewDomainError(services.ErrorTypeUnauthorized, "session is no longer valid", err)
	}
	return err
}

// VerifyToken verifies an access token issued by this pool
func (p *Provider) VerifyToken(ctx context.Context, token string) (*models.TokenClaims, error) {
	return p.verifier.Verify(ctx, token)
}

// secretHash computes SECRET_HASH for app clients with a secret
func (p *Provider) secretHash(username string) string {
	if p.cfg.ClientSecret == "" {
		return ""
	}
	mac := hmac.New(sha256.New, []byte(p.cfg.ClientSecret))
	mac.Write([]byte(username + p.cfg.ClientID))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

type apiError struct {
	Type    string `json:"__type"`
	Message string `json:"message"`
}

// call posts one Identity Provider API operation and decodes the response into out
func (p *Provider) call(ctx context.Context, operation string, in, out interface{}) (err error) {
	start := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = string(services.GetErrorType(err))
		}
		p.metrics.RecordProviderCall(ProviderName, operation, result, time.Since(start))
	}()

	body, err := json.Marshal(in)
	if err != nil {
		return services.WrapInternal("failed to encode provider request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return services.WrapInternal("failed to create provider request", err)
	}
	req.Header.Set("Content-Type", amzJSONContent)
	req.Header.Set("X-Amz-Target", targetPrefix+operation)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.Warn("identity provider request failed",
			zap.String("operation", operation),
			zap.Error(err))
		return services.WrapProvider("identity provider unavailable", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return services.WrapProvider("failed to read identity provider response", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		_ = json.Unmarshal(respBody, &apiErr)
		if apiErr.Type == "" {
			apiErr.Type = resp.Header.Get("X-Amzn-ErrorType")
		}
		mapped := mapAPIError(resp.StatusCode, apiErr)
		p.logger.Info("identity provider rejected request",
			zap.String("operation", operation),
			zap.Int("status", resp.StatusCode),
			zap.String("error_type", errorCode(apiErr.Type)))
		return mapped
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return services.WrapProvider("failed to decode identity provider response", err)
	}
	return nil
}

// errorCode strips the namespace and suffix from an AWS error type,
// e.g. "com.amazonaws...#NotAuthorizedException:http://..." -> "NotAuthorizedException".
func errorCode(errType string) string {
	if i := strings.LastIndex(errType, "#"); i >= 0 {
		errType = errType[i+1:]
	}
	if i := strings.Index(errType, ":"); i >= 0 {
		errType = errType[:i]
	}
	return errType
}

func mapAPIError(status int, apiErr apiError) error {
	code := errorCode(apiErr.Type)
	cause := fmt.Errorf("cognito %s (status %d): %s", code, status, apiErr.Message)

	switch code {
	case "NotAuthorizedException", "UserNotFoundException":
		return services.NewDomainError(services.ErrorTypeInvalidCredentials, "invalid email or password", cause)
	case "UserNotConfirmedException":
		return services.NewDomainError(services.ErrorTypeUnauthorized, "account is not confirmed", cause)
	case "PasswordResetRequiredException":
		return services.NewDomainError(services.ErrorTypeUnauthorized, "password reset required", cause)
	case "UsernameExistsException", "AliasExistsException":
		return services.NewDomainError(services.ErrorTypeConflict, "an account with this email already exists", cause)
	case "InvalidPasswordException":
		return services.NewDomainError(services.ErrorTypeValidation, "password does not meet the policy", cause)
	case "InvalidParameterException":
		return services.NewDomainError(services.ErrorTypeValidation, "invalid sign-up or sign-in parameters", cause)
	}

	return services.WrapProvider("identity provider error", cause)
}
