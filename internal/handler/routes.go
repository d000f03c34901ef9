package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func (h *Handler) Routes(apiRL *RateLimiter) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/healthz", h.Healthz)

	// JSON REST API v1, per-IP rate limited
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(apiRL.Middleware)

		// Bearer API key auth
		r.Group(func(r chi.Router) {
			r.Use(h.requireAPIAuth)

			r.With(h.requireDiskSpace).Post("/embed", h.APIEmbedSubmit)
			r.With(h.requireDiskSpace).Post("/detect", h.APIDetectSubmit)

			r.Get("/jobs/{jobID}", h.APIJobGet)
			r.Get("/jobs/{jobID}/file", h.APIJobFile)
			r.Get("/jobs/{jobID}/events", h.APIJobEvents)

			r.Get("/fingerprints", h.APIFingerprintList)
			r.Get("/storage", h.APIStorage)
		})

		// ADMIN_TOKEN auth
		r.Group(func(r chi.Router) {
			r.Use(h.requireAdmin)

			r.Post("/keys", h.APIKeyCreate)
			r.Get("/keys", h.APIKeyList)
			r.Delete("/keys/{id}", h.APIKeyDelete)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		renderJSONError(w, http.StatusNotFound, "NOT_FOUND", "no such route")
	})

	return r
}
