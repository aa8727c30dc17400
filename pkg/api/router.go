// Package api provides HTTP API server components.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/personaforge/personaforge/config"
	"github.com/personaforge/personaforge/pkg/api/handlers"
	"github.com/personaforge/personaforge/pkg/api/middleware"
	"github.com/personaforge/personaforge/pkg/api/response"
	"github.com/personaforge/personaforge/pkg/engine"
	"github.com/personaforge/personaforge/pkg/logger"
)

// Handlers holds all HTTP handlers.
type Handlers struct {
	// Health handles health check endpoints
	Health *handlers.HealthHandler

	// Collections handles index build and search endpoints
	Collections *handlers.CollectionHandler

	// Personas handles persona state and chat endpoints
	Personas *handlers.PersonaHandler

	// Metrics is the optional metrics recorder
	Metrics middleware.MetricsRecorder

	// Tracing enables server spans when set
	Tracing bool
}

// NewHandlers builds every handler over a runtime engine.
func NewHandlers(eng *engine.Engine, log logger.Logger) *Handlers {
	h := &Handlers{
		Health:      handlers.NewHealthHandler(eng),
		Collections: handlers.NewCollectionHandler(eng.Index(), eng, log),
		Personas:    handlers.NewPersonaHandler(eng.Turns(), eng.Personas(), log),
		Tracing:     eng.Config().Tracing.Enabled,
	}
	if m := eng.Metrics(); m.Enabled() {
		h.Metrics = m
	}
	return h
}

// NewRouter creates a new chi router with middleware and routes.
func NewRouter(cfg *config.Config, log logger.Logger, handlers *Handlers) chi.Router {
	r := chi.NewRouter()

	// Register global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))

	if handlers.Tracing {
		r.Use(middleware.Tracing(middleware.DefaultTracingOptions()))
	}

	// Add metrics middleware if provided
	if handlers.Metrics != nil {
		r.Use(middleware.Metrics(handlers.Metrics))
	}

	r.Use(middleware.CORS(&cfg.Server.CORS))
	r.Use(middleware.Timeout(cfg.Server.HTTP.RequestTimeout))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotFound, response.ErrCodeNotFound, "Route not found", middleware.GetRequestID(r.Context()))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, response.ErrCodeMethodNotAllowed, "Method not allowed", middleware.GetRequestID(r.Context()))
	})

	// Register routes
	RegisterRoutes(r, handlers)

	return r
}

// RegisterRoutes registers all API routes.
func RegisterRoutes(r chi.Router, handlers *Handlers) {
	// API v1 routes
	r.Route("/api/v1/collections", func(r chi.Router) {
		if handlers.Collections != nil {
			r.Get("/", handlers.Collections.ListCollections)
			r.Get("/{collection}", handlers.Collections.GetCollection)
			r.Delete("/{collection}", handlers.Collections.DeleteCollection)
			r.Post("/{collection}/index", handlers.Collections.BuildIndex)
			r.Get("/{collection}/search", handlers.Collections.Search)
		}

		if handlers.Personas != nil {
			r.Route("/{collection}/personas", func(r chi.Router) {
				r.Get("/", handlers.Personas.ListPersonas)
				r.Route("/{persona}", func(r chi.Router) {
					r.Get("/", handlers.Personas.GetPersona)
					r.Put("/", handlers.Personas.PutPersona)
					r.Delete("/", handlers.Personas.DeletePersona)
					r.Post("/chat", handlers.Personas.Chat)
					r.Get("/conversation", handlers.Personas.GetConversation)
					r.Delete("/conversation", handlers.Personas.ClearConversation)
					r.Get("/events", handlers.Personas.GetEvents)
				})
			})
		}
	})

	// Health check routes (not versioned)
	if handlers.Health != nil {
		r.Get("/health", handlers.Health.Health)
		r.Get("/ready", handlers.Health.Ready)
		r.Get("/status", handlers.Health.Status)
	}
}
