package models

import (
	"errors"
	"fmt"
	"time"
)

// TokenClaims is the verified payload of an access token.
type TokenClaims struct {
	Sub       string    `json:"sub"`
	Email     string    `json:"email,omitempty"`
	Username  string    `json:"username,omitempty"`
	Groups    []string  `json:"groups"`
	Scope     string    `json:"scope,omitempty"`
	ClientID  string    `json:"client_id,omitempty"`
	TokenUse  string    `json:"token_use"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}

// TokenSet is what a provider returns on a successful sign-in.
type TokenSet struct {
	AccessToken  string `json:"access_token"`
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// SignUpResult is what a provider returns after registering an identity.
type SignUpResult struct {
	Subject   string `json:"subject"`
	Confirmed bool   `json:"confirmed"`
	Session   string `json:"session,omitempty"`
}

// TokenErrorReason names why a token was rejected.
type TokenErrorReason string

const (
	TokenMalformed  TokenErrorReason = "malformed"
	TokenUnknownKid TokenErrorReason = "unknown_kid"
	TokenSignature  TokenErrorReason = "signature"
	TokenIssuer     TokenErrorReason = "issuer"
	TokenAudience   TokenErrorReason = "audience"
	TokenExpired    TokenErrorReason = "expired"
	TokenUse        TokenErrorReason = "token_use"
	TokenRevoked    TokenErrorReason = "revoked"
	// TokenTransport means the key set could not be fetched; the token itself
	// was not judged.
	TokenTransport TokenErrorReason = "transport"
)

// TokenError is returned by token verifiers. Callers branch on Reason.
type TokenError struct {
	Reason TokenErrorReason
	Err    error
}

// NewTokenError creates a TokenError
func NewTokenError(reason TokenErrorReason, err error) *TokenError {
	return &TokenError{Reason: reason, Err: err}
}

func (e *TokenError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("token rejected (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("token rejected (%s)", e.Reason)
}

func (e *TokenError) Unwrap() error {
	return e.Err
}

// Is matches another *TokenError with the same reason.
func (e *TokenError) Is(target error) bool {
	t, ok := target.(*TokenError)
	if !ok {
		return false
	}
	return e.Reason == t.Reason
}

// IsTransport reports whether the failure came from fetching keys rather than
// from the token.
func (e *TokenError) IsTransport() bool {
	return e.Reason == TokenTransport
}

// TokenErrorReasonOf returns the reason of a wrapped TokenError, or "".
func TokenErrorReasonOf(err error) TokenErrorReason {
	var tokenErr *TokenError
	if errors.As(err, &tokenErr) {
		return tokenErr.Reason
	}
	return ""
}
