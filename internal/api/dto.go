package api

import (
	"github.com/starford/fehu/internal/downloader"
	"github.com/starford/fehu/internal/history"
	"github.com/starford/fehu/internal/session"
)

// EnqueueRequest is the request body for starting downloads.
type EnqueueRequest struct {
	Identifiers []string `json:"identifiers" example:"Acid.Hair.latest" validate:"required"`
}

// EnqueueResponse wraps a batch enqueue outcome.
type EnqueueResponse struct {
	BatchID string          `json:"batch_id,omitempty" example:"batch-1"`
	Results []EnqueueResult `json:"results" validate:"required"`
}

// InstalledResponse wraps the library listing.
type InstalledResponse struct {
	Packages []InstalledItem `json:"packages" validate:"required"`
	Total    int             `json:"total" example:"42" validate:"required"`
}

// TaskListResponse wraps download task snapshots.
type TaskListResponse struct {
	Tasks []downloader.Task `json:"tasks" validate:"required"`
}

// SessionResponse wraps session tracker entries.
type SessionResponse struct {
	Entries []session.Entry `json:"entries" validate:"required"`
}

// HistoryResponse wraps paginated download history.
type HistoryResponse struct {
	Downloads []history.Row `json:"downloads" validate:"required"`
	Total     int           `json:"total" example:"17" validate:"required"`
}

// ClearedResponse reports how many rows or entries were removed.
type ClearedResponse struct {
	Cleared int64 `json:"cleared" example:"3" validate:"required"`
}
