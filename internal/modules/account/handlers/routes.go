package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all account routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/accounts", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleUpsert)
		r.Get("/{accountID}", h.HandleGet)
		r.Put("/{accountID}", h.HandleUpdate)
	})
}
