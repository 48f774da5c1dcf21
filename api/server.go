/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the kiosk frontend

ROUTE GROUPS:
  /api/cards/*     Card registry, ledger reads, lend/return, import
  /api/staff       Staff registry
  /api/ledger/*    Merge, unmerge, split, undo histories
  /api/retouch/*   Operator-session retouch control

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

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Card routes
		r.Route("/cards", func(r chi.Router) {
			r.Get("/", h.ListCards)
			r.Get("/{idm}", h.GetCard)
			r.Get("/{idm}/ledger", h.GetLedger)
			r.Post("/{idm}/lend", h.Lend)
			r.Post("/{idm}/return", h.Return)
			r.Get("/{idm}/retouch", h.GetRetouch)
			r.Post("/{idm}/import", h.Import)
		})

		// Staff routes
		r.Get("/staff", h.ListStaff)

		// Ledger mutation routes
		r.Route("/ledger", func(r chi.Router) {
			r.Post("/merge", h.Merge)
			r.Post("/unmerge", h.Unmerge)
			r.Get("/histories", h.ListHistories)
			r.Post("/rows/{id}/split", h.Split)
		})

		// Operator session routes
		r.Post("/retouch/clear", h.ClearRetouch)
	})

	return r
}
