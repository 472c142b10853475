package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/fehu/internal/apperr"
	"github.com/starford/fehu/internal/history"
)

// Handler holds API route handlers.
type Handler struct {
	svc *Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// ListPackages handles GET /api/packages.
//
//	@Summary		List installed packages from the library index
//	@Tags			packages
//	@Produce		json
//	@Success		200	{object}	InstalledResponse
//	@Security		BearerAuth
//	@Router			/packages [get]
func (h *Handler) ListPackages(w http.ResponseWriter, _ *http.Request) {
	items := h.svc.ListInstalled()
	writeJSON(w, http.StatusOK, InstalledResponse{Packages: items, Total: len(items)})
}

// PackageStatus handles GET /api/packages/status.
//
//	@Summary		Resolve install and update status for a package reference
//	@Tags			packages
//	@Produce		json
//	@Param			id	query		string	true	"Package identifier (may carry .latest or .minN)"
//	@Success		200	{object}	PackageStatus
//	@Failure		400	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/packages/status [get]
func (h *Handler) PackageStatus(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'id' is required"))
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Status(r.Context(), id))
}

// SearchCatalog handles GET /api/catalog/search.
//
//	@Summary		Search the remote catalog
//	@Tags			catalog
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	map[string]any
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/catalog/search [get]
func (h *Handler) SearchCatalog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	items, err := h.svc.SearchCatalog(r.Context(), q, limit)
	if err != nil {
		slog.Error("catalog search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, errorBody("catalog unavailable"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// EnqueueDownloads handles POST /api/downloads.
//
//	@Summary		Resolve identifiers through the catalog and enqueue them as a batch
//	@Tags			downloads
//	@Accept			json
//	@Produce		json
//	@Param			body	body		EnqueueRequest	true	"Identifiers to download"
//	@Success		202		{object}	EnqueueResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/downloads [post]
func (h *Handler) EnqueueDownloads(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if len(req.Identifiers) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("identifiers are required"))
		return
	}
	batchID, results := h.svc.EnqueueAll(r.Context(), req.Identifiers)
	writeJSON(w, http.StatusAccepted, EnqueueResponse{BatchID: batchID, Results: results})
}

// ListDownloads handles GET /api/downloads.
//
//	@Summary		List download tasks in enqueue order
//	@Tags			downloads
//	@Produce		json
//	@Success		200	{object}	TaskListResponse
//	@Security		BearerAuth
//	@Router			/downloads [get]
func (h *Handler) ListDownloads(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, TaskListResponse{Tasks: h.svc.Tasks()})
}

// GetDownload handles GET /api/downloads/{id}.
//
//	@Summary		Get one download task
//	@Tags			downloads
//	@Produce		json
//	@Param			id	path		string	true	"Canonical task id"
//	@Success		200	{object}	downloader.Task
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/downloads/{id} [get]
func (h *Handler) GetDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t, err := h.svc.Task(id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
			return
		}
		slog.Error("get download failed", slog.String("id", id), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// CancelDownload handles DELETE /api/downloads/{id}.
//
//	@Summary		Cancel one download
//	@Tags			downloads
//	@Param			id	path	string	true	"Canonical task id"
//	@Success		204	"Cancellation requested"
//	@Security		BearerAuth
//	@Router			/downloads/{id} [delete]
func (h *Handler) CancelDownload(w http.ResponseWriter, r *http.Request) {
	h.svc.Cancel(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

// CancelAllDownloads handles POST /api/downloads/cancel-all.
//
//	@Summary		Cancel every active download and session entry
//	@Tags			downloads
//	@Success		204	"Cancellation requested"
//	@Security		BearerAuth
//	@Router			/downloads/cancel-all [post]
func (h *Handler) CancelAllDownloads(w http.ResponseWriter, _ *http.Request) {
	h.svc.CancelAll()
	w.WriteHeader(http.StatusNoContent)
}

// GetBatch handles GET /api/downloads/batch/{id}.
//
//	@Summary		Get batch progress
//	@Tags			downloads
//	@Produce		json
//	@Param			id	path		string	true	"Batch id"
//	@Success		200	{object}	downloader.BatchState
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/downloads/batch/{id} [get]
func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	b, err := h.svc.Batch(id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// ListSession handles GET /api/session.
//
//	@Summary		List session tracker entries in insertion order
//	@Tags			session
//	@Produce		json
//	@Success		200	{object}	SessionResponse
//	@Security		BearerAuth
//	@Router			/session [get]
func (h *Handler) ListSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, SessionResponse{Entries: h.svc.SessionEntries()})
}

// ClearSessionTerminal handles DELETE /api/session/terminal.
//
//	@Summary		Remove completed, failed, and cancelled session entries
//	@Tags			session
//	@Produce		json
//	@Success		200	{object}	ClearedResponse
//	@Security		BearerAuth
//	@Router			/session/terminal [delete]
func (h *Handler) ClearSessionTerminal(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, ClearedResponse{Cleared: int64(h.svc.ClearTerminal())})
}

// ListHistory handles GET /api/history.
//
//	@Summary		List finished downloads, newest first
//	@Tags			history
//	@Produce		json
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Param			group	query		string	false	"Filter by group key"
//	@Success		200		{object}	HistoryResponse
//	@Security		BearerAuth
//	@Router			/history [get]
func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	rows, total, err := h.svc.History(limit, offset, q.Get("group"))
	if err != nil {
		slog.Error("list history failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if rows == nil {
		rows = []history.Row{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Downloads: rows, Total: total})
}

// ClearHistory handles DELETE /api/history.
//
//	@Summary		Remove all history rows
//	@Tags			history
//	@Produce		json
//	@Success		200	{object}	ClearedResponse
//	@Security		BearerAuth
//	@Router			/history [delete]
func (h *Handler) ClearHistory(w http.ResponseWriter, _ *http.Request) {
	n, err := h.svc.ClearHistory()
	if err != nil {
		slog.Error("clear history failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, ClearedResponse{Cleared: n})
}
