package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/upb/identity-core/middleware"
	"github.com/upb/identity-core/models"
	"github.com/upb/identity-core/services"
	"github.com/upb/identity-core/services/users"
	"github.com/upb/identity-core/utils"
	"go.uber.org/zap"
)

// UserService defines the user administration operations the handler needs
type UserService interface {
	List(ctx context.Context) ([]*models.User, error)
	Get(ctx context.Context, id uuid.UUID) (*users.UserWithLinks, error)
	UpdateName(ctx context.Context, id uuid.UUID, name string) (*models.User, error)
	UpdateRole(ctx context.Context, id uuid.UUID, role string) (*models.User, error)
	Statistics(ctx context.Context) (*users.Statistics, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// MeResponse describes the caller
type MeResponse struct {
	User   *users.UserWithLinks `json:"user"`
	Roles  []models.Role        `json:"roles"`
	Groups []string             `json:"groups,omitempty"`
}

// UserHandler handles user-related HTTP requests
type UserHandler struct {
	users  UserService
	logger *zap.Logger
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(userService UserService, logger *zap.Logger) *UserHandler {
	return &UserHandler{users: userService, logger: logger}
}

// HandleMe handles GET /api/v1/users/me
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	authCtx := middleware.GetAuthContext(ctx)
	if authCtx.UserID == nil {
		HandleServiceError(w, services.ErrUnauthorized, h.logger)
		return
	}

	user, err := h.users.Get(ctx, *authCtx.UserID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, MeResponse{User: user, Roles: authCtx.Roles, Groups: authCtx.Groups})
}

// HandleList handles GET /api/v1/users
func (h *UserHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.users.List(r.Context())
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, list)
}

// HandleGet handles GET /api/v1/users/{id}
func (h *UserHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}

	// Non-admins may only read their own record
	authCtx := middleware.GetAuthContext(r.Context())
	if !authCtx.IsAdmin() && (authCtx.UserID == nil || *authCtx.UserID != id) {
		HandleServiceError(w, services.ErrForbidden, h.logger)
		return
	}

	user, err := h.users.Get(r.Context(), id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, user)
}

// HandleStatistics handles GET /api/v1/users/statistics
func (h *UserHandler) HandleStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.users.Statistics(r.Context())
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, stats)
}

// HandleUpdateMe handles PUT /api/v1/users/me
func (h *UserHandler) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r.Context())
	if authCtx.UserID == nil {
		HandleServiceError(w, services.ErrUnauthorized, h.logger)
		return
	}
	h.updateName(w, r, *authCtx.UserID)
}

// HandleUpdate handles PUT /api/v1/users/{id}
func (h *UserHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}
	h.updateName(w, r, id)
}

func (h *UserHandler) updateName(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	var req users.UpdateNameRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		HandleServiceError(w, services.NewValidationError(err), h.logger)
		return
	}

	user, err := h.users.UpdateName(r.Context(), id, req.Name)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, user)
}

// HandleUpdateRole handles PUT /api/v1/users/{id}/role
func (h *UserHandler) HandleUpdateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}

	var req users.UpdateRoleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		HandleServiceError(w, services.NewValidationError(err), h.logger)
		return
	}

	user, err := h.users.UpdateRole(r.Context(), id, req.Role)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, user)
}

// HandleDelete handles DELETE /api/v1/users/{id}
func (h *UserHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}

	if err := h.users.Delete(r.Context(), id); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	utils.WriteNoContent(w)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return false
	}
	return true
}

func userIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		_ = utils.WriteBadRequest(w, "Invalid user ID format", nil)
		return uuid.Nil, false
	}
	return id, true
}
