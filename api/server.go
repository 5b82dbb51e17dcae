/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the frontend

ROUTE GROUPS:
  /api/games/*          Game views and day edits
  /api/flush            Write pending edits now

SECURITY NOTE:
  No authentication middleware. The tracker is a single-user local service.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// DefaultOrigins are the frontend origins allowed by CORS.
var DefaultOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, origins ...string) *chi.Mux {
	if len(origins) == 0 {
		origins = DefaultOrigins
	}
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/flush", h.Flush)

		r.Route("/games", func(r chi.Router) {
			r.Get("/", h.ListGames)

			r.Route("/{game}", func(r chi.Router) {
				r.Get("/", h.GetGame)
				r.Post("/select", h.SelectGame)

				r.Route("/days/{date}", func(r chi.Router) {
					r.Get("/", h.GetDay)
					r.Put("/notes", h.SetDayNotes)

					// Task routes
					r.Put("/tasks/{type}/{task}", h.SetTaskValue)
					r.Put("/tasks/{type}/{task}/notes", h.SetTaskNotes)
					r.Put("/tasks/{type}/{task}/stages/{stage}", h.SetStageValue)

					// Currency routes
					r.Put("/currencies/{currency}", h.SetCurrency)
					r.Delete("/override", h.ClearOverride)

					// Source routes
					r.Put("/other/{name}", h.SetOtherSource)
					r.Post("/premium", h.AddPremium)
					r.Put("/premium/{id}", h.UpdatePremium)
					r.Delete("/premium/{id}", h.DeletePremium)
				})
			})
		})
	})

	return r
}
