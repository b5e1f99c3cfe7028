package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Router builds the chi router for the JSON API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", h.handleStats)
		r.Get("/recent", h.handleRecent)
		r.Get("/savings", h.handleSavings)
		r.Get("/profiles", h.handleProfiles)
		r.Get("/config", h.handleConfig)
		r.Get("/diagnostics", h.handleDiagnostics)
		r.Get("/scan-status", h.handleAllScanStatus)

		r.Route("/libraries", func(r chi.Router) {
			r.Get("/", h.handleListLibraries)
			r.Post("/", h.handleCreateLibrary)
			r.Put("/{id}", h.handleUpdateLibrary)
			r.Delete("/{id}", h.handleDeleteLibrary)
			r.Post("/{id}/scan", h.handleScanLibrary)
			r.Get("/{id}/scan-status", h.handleScanStatus)
		})

		r.Route("/queue", func(r chi.Router) {
			r.Get("/", h.handleQueue)
			r.Post("/add", h.handleAddToQueue)
			r.Delete("/{id}", h.handleDeleteQueueJob)
		})

		r.Route("/settings", func(r chi.Router) {
			r.Get("/", h.handleGetSettings)
			r.Post("/", h.handleSetSettings)
		})

		r.Route("/workers", func(r chi.Router) {
			r.Get("/status", h.handleWorkerStatus)
			r.Post("/pause", h.handlePauseWorkers)
			r.Post("/resume", h.handleResumeWorkers)
		})

		r.Route("/history", func(r chi.Router) {
			r.Get("/", h.handleHistory)
			r.Delete("/", h.handleClearHistory)
		})
	})

	return r
}
