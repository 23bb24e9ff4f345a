package cognito

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/upb/identity-core/models"
)

// Claims represents the claims of a Cognito access token
type Claims struct {
	jwt.RegisteredClaims
	TokenUse        string   `json:"token_use"`
	ClientID        string   `json:"client_id"`
	Username        string   `json:"username"`
	CognitoUsername string   `json:"cognito:username"`
	Email           string   `json:"email"`
	Groups          []string `json:"cognito:groups"`
	Scope           string   `json:"scope"`
	AuthTime        int64    `json:"auth_time"`
}

// ToTokenClaims converts verified Cognito claims to the provider-neutral form
func (c *Claims) ToTokenClaims() *models.TokenClaims {
	username := c.Username
	if username == "" {
		username = c.CognitoUsername
	}

	claims := &models.TokenClaims{
		Sub:      c.Subject,
		Email:    c.Email,
		Username: username,
		Scope:    c.Scope,
		ClientID: c.ClientID,
		TokenUse: c.TokenUse,
	}
	if len(c.Groups) > 0 {
		claims.Groups = append([]string(nil), c.Groups...)
	}
	if c.IssuedAt != nil {
		claims.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		claims.ExpiresAt = c.ExpiresAt.Time
	}
	return claims
}

// issuedFor reports whether the token was issued to clientID. Access tokens
// carry client_id; ID tokens carry aud.
func (c *Claims) issuedFor(clientID string) bool {
	if c.ClientID == clientID {
		return true
	}
	for _, aud := range c.Audience {
		if aud == clientID {
			return true
		}
	}
	return false
}
