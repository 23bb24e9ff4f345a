package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/upb/identity-core/utils"
	"go.uber.org/zap"
)

const readinessTimeout = 5 * time.Second

// HealthResponse is the body of /healthz and /readyz
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// SigningKeyStats exposes the token verifier's key cache
type SigningKeyStats interface {
	Stats() map[string]interface{}
}

// HealthHandler serves liveness and readiness probes
type HealthHandler struct {
	db     *sql.DB
	redis  redis.UniversalClient
	keys   SigningKeyStats
	logger *zap.Logger
}

// NewHealthHandler creates a HealthHandler. db and redisClient are nil when
// the service runs without them.
func NewHealthHandler(db *sql.DB, redisClient redis.UniversalClient, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:     db,
		redis:  redisClient,
		logger: logger,
	}
}

// WithSigningKeys adds the signing key cache to readiness output
func (h *HealthHandler) WithSigningKeys(keys SigningKeyStats) *HealthHandler {
	h.keys = keys
	return h
}

// HandleHealth handles GET /healthz
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleReadiness handles GET /readyz. Only the user store gates readiness;
// the key caches are reported because keys are fetched lazily on demand.
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	checks := make(map[string]string)
	ready := true

	if err := h.checkDatabase(ctx); err != nil {
		h.logger.Warn("database health check failed", zap.Error(err))
		checks["database"] = "unhealthy"
		ready = false
	} else {
		checks["database"] = "healthy"
	}

	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err != nil {
			h.logger.Warn("redis health check failed", zap.Error(err))
			checks["keyset_cache"] = "degraded"
		} else {
			checks["keyset_cache"] = "healthy"
		}
	}

	if h.keys != nil {
		checks["signing_keys"] = signingKeyStatus(h.keys.Stats())
	}

	status, httpStatus := "healthy", http.StatusOK
	if !ready {
		status, httpStatus = "unhealthy", http.StatusServiceUnavailable
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}
	if err := utils.WriteJSON(w, httpStatus, utils.SuccessResponse{Data: response}); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}

// signingKeyStatus is "cold" until the first successful key fetch
func signingKeyStatus(stats map[string]interface{}) string {
	if n, ok := stats["cached_keys_count"].(int); ok && n > 0 {
		return "healthy"
	}
	return "cold"
}

func (h *HealthHandler) checkDatabase(ctx context.Context) error {
	if h.db == nil {
		return nil // in-memory storage
	}
	if err := h.db.PingContext(ctx); err != nil {
		return err
	}

	var one int
	return h.db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
}
