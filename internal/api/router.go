package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/ticketdesk/internal/connectivity"
	"github.com/starford/ticketdesk/internal/store"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// monitor may be nil, in which case the desk always reports online.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(s *store.Store, monitor *connectivity.Monitor, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(s, monitor)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Tickets.
	r.Get("/tickets", h.ListTickets)
	r.Get("/tickets/{id}", h.GetTicket)
	r.Patch("/tickets/{id}", h.UpdateTicket)
	r.Get("/tags", h.Tags)

	// Synchronization.
	r.Post("/load", h.Load)
	r.Post("/sync", h.Sync)
	r.Delete("/sync/queue", h.ClearQueue)
	r.Get("/status", h.Status)

	// View state.
	r.Route("/view", func(r chi.Router) {
		r.Get("/filters", h.GetFilters)
		r.Put("/filters", h.SetFilters)
		r.Delete("/filters", h.ResetFilters)
		r.Get("/sort", h.GetSort)
		r.Put("/sort", h.SetSort)
		r.Post("/sort/{column}/toggle", h.ToggleSort)
		r.Get("/columns", h.GetColumns)
		r.Post("/columns/{column}/toggle", h.ToggleColumn)
	})
	r.Get("/selection", h.GetSelection)
	r.Put("/selection", h.SetSelection)

	// Live streams (protected by same auth middleware).
	r.Get("/ws", h.Stream)
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
