package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Library.
	r.Get("/packages", h.ListPackages)
	r.Get("/packages/status", h.PackageStatus)

	// Catalog.
	r.Get("/catalog/search", h.SearchCatalog)

	// Downloads.
	r.Post("/downloads", h.EnqueueDownloads)
	r.Get("/downloads", h.ListDownloads)
	r.Post("/downloads/cancel-all", h.CancelAllDownloads)
	r.Get("/downloads/batch/{id}", h.GetBatch)
	r.Get("/downloads/{id}", h.GetDownload)
	r.Delete("/downloads/{id}", h.CancelDownload)

	// Session progress.
	r.Get("/session", h.ListSession)
	r.Delete("/session/terminal", h.ClearSessionTerminal)

	// History.
	r.Get("/history", h.ListHistory)
	r.Delete("/history", h.ClearHistory)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
