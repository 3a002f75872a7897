/**
 * @description
 * This file sets up the HTTP router for the credits-service using the go-chi/chi router.
 * Public routes cover health, metrics and the Clerk webhook; everything else sits
 * behind the Clerk session middleware.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig carries the routing options that come from configuration.
type RouterConfig struct {
	Auth                       AuthMiddlewareConfig
	AllowedOrigins             []string
	AllowSelfServicePlanChange bool
	Registry                   *prometheus.Registry
}

// NewRouter creates a new Chi router and registers the credits-service routes.
func NewRouter(h *Handler, webhooks http.Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"https://*", "http://*"}
	}

	// Setup middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Clerk-User-Id"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any major browsers
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Credits service is healthy"))
	})

	if cfg.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))
	}

	// Svix-signed, no session
	r.Method(http.MethodPost, "/webhooks/clerk", webhooks)

	// Protected routes that require authentication
	r.Group(func(r chi.Router) {
		r.Use(ClerkAuthMiddleware(cfg.Auth))

		r.Get("/usage", h.handleGetUsage)
		r.Post("/sync-credits", h.handleSyncCredits)
		if cfg.AllowSelfServicePlanChange {
			r.Post("/update-subscription", h.handleUpdateSubscription)
		}

		r.Route("/projects", func(r chi.Router) {
			r.Post("/", h.handleCreateProject)
			r.Get("/", h.handleListProjects)
			r.Get("/{projectID}", h.handleGetProject)
			r.Get("/{projectID}/messages", h.handleListMessages)
		})
		r.Post("/messages", h.handleCreateMessage)
	})

	return r
}
