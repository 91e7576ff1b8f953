package router

import (
	"net/http"

	"truemarket-api/internal/handler"
	"truemarket-api/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// Config holds the configuration for creating a router.
type Config struct {
	Handler        *handler.Handler
	SkinHandler    *handler.SkinHandler
	TaskHandler    *handler.TaskHandler
	AdminHandler   *handler.AdminHandler
	AuthMiddleware func(http.Handler) http.Handler
}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware stack (applies to ALL routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-API-Key"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// PUBLIC routes (no auth required)
	if cfg.Handler != nil {
		r.Get("/api/status", cfg.Handler.Status)
	}

	// AUTHENTICATED routes
	r.Group(func(r chi.Router) {
		if cfg.AuthMiddleware != nil {
			r.Use(cfg.AuthMiddleware)
		}

		r.Route("/api/v1", func(r chi.Router) {
			// Health check endpoints
			if cfg.Handler != nil {
				r.Get("/health", cfg.Handler.Health)
				r.Get("/ready", cfg.Handler.Ready)
			}

			// Listing ingestion and skin queries
			if cfg.SkinHandler != nil {
				r.Post("/listings", cfg.SkinHandler.IngestListing)
				r.Route("/skins", func(r chi.Router) {
					r.Get("/", cfg.SkinHandler.ListSkins)
					r.Get("/profitable", cfg.SkinHandler.ListProfitable)
					r.Get("/{skinID}", cfg.SkinHandler.GetSkin)
				})
			}

			// Worker task queue
			if cfg.TaskHandler != nil {
				r.Route("/tasks", func(r chi.Router) {
					r.Get("/", cfg.TaskHandler.ListPending)
					r.Post("/{taskID}/complete", cfg.TaskHandler.Complete)
				})
			}

			// Admin endpoints
			if cfg.AdminHandler != nil {
				r.Route("/admin", func(r chi.Router) {
					r.Get("/stats", cfg.AdminHandler.Stats)
					r.Get("/conversions/failed", cfg.AdminHandler.FailedConversions)
				})
			}
		})
	})

	return r
}
