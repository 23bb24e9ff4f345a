package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/upb/identity-core/app"
	"github.com/upb/identity-core/middleware"
	"github.com/upb/identity-core/models"
	"github.com/upb/identity-core/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimw.Recoverer)
	r.Use(middleware.Metrics(deps.Metrics))
	r.Use(chimw.Timeout(30 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Probes stay outside authentication so a bad header never fails them
	r.Get("/healthz", deps.HealthHandler.HandleHealth)
	r.Get("/readyz", deps.HealthHandler.HandleReadiness)
	if deps.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Credential exchange never consults a presented bearer token
		r.Post("/auth/sign-up", deps.AuthHandler.HandleSignUp)
		r.Post("/auth/sign-in", deps.AuthHandler.HandleSignIn)

		r.Group(func(r chi.Router) {
			r.Use(deps.AuthMiddleware.Authenticate)

			r.With(deps.AuthMiddleware.RequireAuthenticated).Post("/auth/sign-out", deps.AuthHandler.HandleSignOut)

			r.Route("/users", func(r chi.Router) {
				r.Group(func(r chi.Router) {
					r.Use(deps.AuthMiddleware.RequireAuthenticated)
					r.Get("/me", deps.UserHandler.HandleMe)
					r.Put("/me", deps.UserHandler.HandleUpdateMe)
					r.Get("/{id}", deps.UserHandler.HandleGet)
				})

				// User management (require admin role)
				r.Group(func(r chi.Router) {
					r.Use(deps.AuthMiddleware.RequireRole(models.RoleAdmin))
					r.Get("/", deps.UserHandler.HandleList)
					r.Get("/statistics", deps.UserHandler.HandleStatistics)
					r.Put("/{id}", deps.UserHandler.HandleUpdate)
					r.Put("/{id}/role", deps.UserHandler.HandleUpdateRole)
					r.Delete("/{id}", deps.UserHandler.HandleDelete)
				})
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})

	return r
}
