package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all currency routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/currency", func(r chi.Router) {
		r.Post("/convert", h.HandleConvert)
		r.Get("/rate/{from}/{to}", h.HandleGetRate)
	})
}
