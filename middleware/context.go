package middleware

import (
	"context"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/upb/identity-core/models"
)

// Context key type to avoid collisions
type contextKey string

const (
	// AuthContextKey is the context key for the request's AuthContext
	AuthContextKey contextKey = "auth_context"

	// BearerTokenKey is the context key for the raw bearer token
	BearerTokenKey contextKey = "bearer_token"
)

// GetRequestIDFromContext retrieves the request ID set by chi's RequestID middleware
func GetRequestIDFromContext(ctx context.Context) string {
	return middleware.GetReqID(ctx)
}

// GetAuthContext retrieves the AuthContext from context.
// Returns the guest context when none was set.
func GetAuthContext(ctx context.Context) *models.AuthContext {
	if val := ctx.Value(AuthContextKey); val != nil {
		if authCtx, ok := val.(*models.AuthContext); ok {
			return authCtx
		}
	}
	return models.GuestContext()
}

// WithAuthContext adds an AuthContext to the context
func WithAuthContext(ctx context.Context, authCtx *models.AuthContext) context.Context {
	return context.WithValue(ctx, AuthContextKey, authCtx)
}

// GetUserIDFromContext retrieves the authenticated user's ID, or nil for guests
func GetUserIDFromContext(ctx context.Context) *uuid.UUID {
	return GetAuthContext(ctx).UserID
}

// GetBearerToken retrieves the bearer token the request was authenticated with
func GetBearerToken(ctx context.Context) string {
	if token, ok := ctx.Value(BearerTokenKey).(string); ok {
		return token
	}
	return ""
}

// WithBearerToken adds the raw bearer token to the context
func WithBearerToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, BearerTokenKey, token)
}
