// ABOUTME: HTTP router for the om JSON API
// ABOUTME: Versioned routes under /v1 require an X-User-ID header; /metrics and /healthz are open
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires the API handler into a chi router
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)
	r.Use(h.requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(h.userMiddleware)
		r.Use(middleware.Timeout(60 * time.Second))

		r.Get("/streak", h.GetStreak)

		r.Get("/profile", h.GetProfile)
		r.Patch("/profile", h.PatchProfile)

		r.Get("/history", h.GetHistory)
		r.Post("/history", h.PostHistory)
		r.Delete("/history/{entryID}", h.DeleteHistoryEntry)
	})

	return r
}
