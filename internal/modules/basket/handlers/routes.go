package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all basket routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/baskets", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleCreate)

		r.Route("/{basketID}", func(r chi.Router) {
			r.Get("/", h.HandleGet)
			r.Delete("/", h.HandleDelete)
			r.Post("/recompute", h.HandleRecompute)
			r.Get("/positions", h.HandleGetPositions)
			r.Get("/history", h.HandleGetHistory)

			r.Route("/members", func(r chi.Router) {
				r.Get("/", h.HandleListMembers)
				r.Post("/", h.HandleAddMember)
				r.Put("/{accountID}", h.HandleSetWeight)
				r.Delete("/{accountID}", h.HandleRemoveMember)
			})
		})
	})
}
