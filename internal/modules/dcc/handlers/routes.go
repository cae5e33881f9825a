package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers selection and DCC routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/garch", func(r chi.Router) {
		r.Post("/select", h.HandleSelect)
		r.Get("/assets/{asset}/selected", func(w http.ResponseWriter, r *http.Request) {
			h.HandleSelectedModels(w, r, chi.URLParam(r, "asset"))
		})
	})

	r.Route("/dcc", func(r chi.Router) {
		r.Post("/fit", h.HandleFit)

		r.Route("/runs", func(r chi.Router) {
			r.Get("/", h.HandleListRuns)
			r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
				h.HandleGetRun(w, r, chi.URLParam(r, "id"))
			})
			r.Delete("/{id}", func(w http.ResponseWriter, r *http.Request) {
				h.HandleDeleteRun(w, r, chi.URLParam(r, "id"))
			})
		})
	})
}
