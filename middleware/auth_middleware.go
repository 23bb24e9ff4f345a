package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/upb/identity-core/models"
	"github.com/upb/identity-core/services"
	"github.com/upb/identity-core/services/authorization"
	"go.uber.org/zap"
)

// GuestPolicy decides what happens to a request whose token is rejected.
type GuestPolicy string

const (
	// FailClosed rejects the request with the engine's error
	FailClosed GuestPolicy = "fail_closed"
	// FailOpen serves the request as guest when the token itself was rejected.
	// Infrastructure failures are still returned.
	FailOpen GuestPolicy = "fail_open"
)

// ContextBuilder turns an optional bearer token into an AuthContext
type ContextBuilder interface {
	ContextFromToken(ctx context.Context, token string) (*models.AuthContext, error)
}

// ErrorWriter writes a service error as an HTTP response
type ErrorWriter func(w http.ResponseWriter, err error)

// AuthMiddleware provides authentication middleware functionality
type AuthMiddleware struct {
	engine     ContextBuilder
	policy     GuestPolicy
	writeError ErrorWriter
	logger     *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(engine ContextBuilder, policy GuestPolicy, writeError ErrorWriter, logger *zap.Logger) *AuthMiddleware {
	if policy != FailOpen {
		policy = FailClosed
	}
	return &AuthMiddleware{
		engine:     engine,
		policy:     policy,
		writeError: writeError,
		logger:     logger,
	}
}

// Authenticate builds the AuthContext for every request. Requests without a
// token continue as guest.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		token, err := extractBearerToken(r)
		if err != nil {
			err = services.NewDomainError(services.ErrorTypeTokenInvalid, "malformed authorization header", err).
				WithDetail("reason", string(models.TokenMalformed))
		} else {
			var authCtx *models.AuthContext
			authCtx, err = m.engine.ContextFromToken(ctx, token)
			if err == nil {
				ctx = WithAuthContext(ctx, authCtx)
				if token != "" {
					ctx = WithBearerToken(ctx, token)
					m.logger.Debug("authentication successful",
						zap.String("request_id", requestID),
						zap.String("sub", authCtx.Sub))
				}
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
		}

		if m.policy == FailOpen && downgradable(err) {
			m.logger.Info("token rejected, continuing as guest",
				zap.String("request_id", requestID),
				zap.String("error_type", string(services.GetErrorType(err))),
				zap.Any("reason", services.GetErrorDetails(err)["reason"]))
			next.ServeHTTP(w, r.WithContext(WithAuthContext(ctx, models.GuestContext())))
			return
		}

		m.logger.Warn("token rejected",
			zap.String("request_id", requestID),
			zap.String("error_type", string(services.GetErrorType(err))),
			zap.Any("reason", services.GetErrorDetails(err)["reason"]))
		m.writeError(w, err)
	})
}

// downgradable reports whether a failure is about the caller's credentials
// rather than the service's dependencies.
func downgradable(err error) bool {
	return services.IsTokenInvalidError(err) ||
		services.IsNotFoundError(err) ||
		services.IsUnauthorizedError(err)
}

// RequireAuthenticated rejects guest requests. Must run after Authenticate.
func (m *AuthMiddleware) RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := authorization.RequireAuthenticated(GetAuthContext(r.Context())); err != nil {
			m.writeError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole rejects requests whose context satisfies none of roles.
// Must run after Authenticate.
func (m *AuthMiddleware) RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			authCtx := GetAuthContext(ctx)

			if err := authorization.RequireAnyRole(authCtx, roles...); err != nil {
				if errors.Is(err, services.ErrForbidden) {
					m.logger.Warn("insufficient permissions",
						zap.String("request_id", GetRequestIDFromContext(ctx)),
						zap.Any("required_roles", roles),
						zap.Any("roles", authCtx.Roles))
				}
				m.writeError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// extractBearerToken returns "" when no Authorization header is present and
// an error when one is present but is not a usable bearer token.
func extractBearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", nil
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", errors.New("authorization header is not a bearer token")
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("empty bearer token")
	}
	return token, nil
}
