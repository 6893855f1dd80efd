package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all market hours routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/market-hours", func(r chi.Router) {
		r.Get("/status", h.HandleGetStatus)
		r.Get("/status/*", func(w http.ResponseWriter, r *http.Request) {
			// IANA names contain a slash, e.g. Europe/London
			h.HandleGetStatusByTimezone(w, r, chi.URLParam(r, "*"))
		})
		r.Get("/sessions", h.HandleGetSessions)
	})
}
