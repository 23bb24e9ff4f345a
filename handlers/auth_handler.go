package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/upb/identity-core/middleware"
	"github.com/upb/identity-core/models"
	"github.com/upb/identity-core/services/auth"
	"github.com/upb/identity-core/utils"
	"go.uber.org/zap"
)

// maxBodyBytes bounds request bodies on the auth endpoints
const maxBodyBytes = 64 << 10

// AuthService defines the authentication use cases the handler needs
type AuthService interface {
	SignUp(ctx context.Context, req auth.SignUpRequest) (*auth.SignUpResult, error)
	SignIn(ctx context.Context, req auth.SignInRequest) (*models.TokenSet, error)
	SignOut(ctx context.Context, identifier string) error
}

// AuthHandler handles sign-up, sign-in and sign-out
type AuthHandler struct {
	auth   AuthService
	logger *zap.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(authService AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{auth: authService, logger: logger}
}

// HandleSignUp handles POST /api/v1/auth/sign-up
func (h *AuthHandler) HandleSignUp(w http.ResponseWriter, r *http.Request) {
	var req auth.SignUpRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.auth.SignUp(r.Context(), req)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteCreated(w, result)
}

// HandleSignIn handles POST /api/v1/auth/sign-in
func (h *AuthHandler) HandleSignIn(w http.ResponseWriter, r *http.Request) {
	var req auth.SignInRequest
	if !h.decode(w, r, &req) {
		return
	}

	tokens, err := h.auth.SignIn(r.Context(), req)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	_ = utils.WriteOK(w, tokens)
}

// HandleSignOut handles POST /api/v1/auth/sign-out. The request's own access
// token identifies the sessions to end.
func (h *AuthHandler) HandleSignOut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.auth.SignOut(ctx, middleware.GetBearerToken(ctx)); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	utils.WriteNoContent(w)
}

func (h *AuthHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.logger.Debug("invalid request body",
			zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return false
	}
	return true
}
