package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/starford/fehu/internal/apperr"
	"github.com/starford/fehu/internal/catalog"
	"github.com/starford/fehu/internal/downloader"
	"github.com/starford/fehu/internal/history"
	"github.com/starford/fehu/internal/identifier"
	"github.com/starford/fehu/internal/library"
	"github.com/starford/fehu/internal/resolver"
	"github.com/starford/fehu/internal/session"
)

// Service coordinates the library index, catalog, download coordinator, and
// session tracker for the API layer.
type Service struct {
	store       *library.Store
	catalog     catalog.Client
	coord       *downloader.Coordinator
	tracker     *session.Tracker
	hist        *history.DB
	libraryRoot string
	logger      *slog.Logger
}

// NewService creates a new API service.
func NewService(store *library.Store, cat catalog.Client, coord *downloader.Coordinator, tracker *session.Tracker, hist *history.DB, libraryRoot string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:       store,
		catalog:     cat,
		coord:       coord,
		tracker:     tracker,
		hist:        hist,
		libraryRoot: libraryRoot,
		logger:      logger,
	}
}

// InstalledItem is one library entry in a list response.
type InstalledItem struct {
	Identifier string `json:"identifier"`
	GroupKey   string `json:"group_key"`
	Version    int    `json:"version"`
	Path       string `json:"path"`
}

// ListInstalled returns every package in the current library snapshot.
func (s *Service) ListInstalled() []InstalledItem {
	records := s.store.Current().Records()
	items := make([]InstalledItem, len(records))
	for i, rec := range records {
		id := identifier.Parse(rec.Identifier)
		items[i] = InstalledItem{
			Identifier: id.String(),
			GroupKey:   id.GroupKey(),
			Version:    id.Version(),
			Path:       rec.Path,
		}
	}
	return items
}

// PackageStatus is the install/update status of one package reference.
type PackageStatus struct {
	Identifier       string `json:"identifier"`
	GroupKey         string `json:"group_key"`
	Installed        bool   `json:"installed"`
	InstalledVersion uint64 `json:"installed_version,omitempty"`
	UpdateAvailable  bool   `json:"update_available"`
	RemoteVersion    uint64 `json:"remote_version,omitempty"`
	Satisfied        bool   `json:"satisfied"`
	Indeterminate    bool   `json:"indeterminate"`
}

// Status resolves one raw package reference against the library snapshot and
// the remote catalog.
func (s *Service) Status(ctx context.Context, raw string) PackageStatus {
	id := identifier.Parse(raw)
	snap := s.store.Current()

	oracle := func(groupKey string) (uint64, bool) {
		v, err := s.catalog.RemoteLatest(ctx, groupKey)
		if err != nil {
			if !errors.Is(err, apperr.ErrNotFound) {
				s.logger.Debug("catalog lookup failed",
					slog.String("group", groupKey),
					slog.String("error", err.Error()))
			}
			return 0, false
		}
		return v, true
	}

	res := resolver.Resolve(id, snap, oracle)
	return PackageStatus{
		Identifier:       id.String(),
		GroupKey:         id.GroupKey(),
		Installed:        res.Installed,
		InstalledVersion: res.InstalledVersion,
		UpdateAvailable:  res.UpdateAvailable,
		RemoteVersion:    res.RemoteVersion,
		Satisfied:        res.Satisfied,
		Indeterminate:    res.Indeterminate,
	}
}

// SearchCatalog delegates a free-text query to the catalog.
func (s *Service) SearchCatalog(ctx context.Context, query string, limit int) ([]catalog.Item, error) {
	return s.catalog.Search(ctx, query, limit)
}

// EnqueueResult reports the outcome of one identifier in an enqueue request.
type EnqueueResult struct {
	Requested string `json:"requested"`
	Resolved  string `json:"resolved,omitempty"`
	TaskID    string `json:"task_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// EnqueueAll resolves each raw identifier through the catalog and enqueues
// the resolvable ones as one batch. Identifiers the catalog cannot resolve
// are reported per-item and do not join the batch, so batch completion only
// waits on downloads that actually started.
func (s *Service) EnqueueAll(ctx context.Context, rawIDs []string) (string, []EnqueueResult) {
	results := make([]EnqueueResult, len(rawIDs))
	downloads := make([]catalog.Download, len(rawIDs))
	resolved := 0

	for i, raw := range rawIDs {
		results[i] = EnqueueResult{Requested: raw}
		dl, err := s.catalog.ResolveDownload(ctx, identifier.Parse(raw).String())
		if err != nil {
			results[i].Error = err.Error()
			continue
		}
		if dl.Identifier == "" || dl.URL == "" {
			results[i].Error = "catalog returned an incomplete download source"
			continue
		}
		downloads[i] = dl
		resolved++
	}

	if resolved == 0 {
		return "", results
	}

	batchID := s.coord.NewBatch(resolved)
	for i, dl := range downloads {
		if results[i].Error != "" {
			continue
		}
		canonical := identifier.Parse(dl.Identifier).String()
		s.tracker.Track(rawIDs[i])
		h := s.coord.Enqueue(downloader.Request{
			CanonicalID:   canonical,
			SourceURL:     dl.URL,
			Destination:   filepath.Join(s.libraryRoot, canonical+".var"),
			ExpectedBytes: dl.SizeBytes,
			SHA256:        dl.SHA256,
			BatchID:       batchID,
		})
		results[i].Resolved = canonical
		results[i].TaskID = h.ID()
	}
	return batchID, results
}

// Cancel requests cancellation of one download. Cancellation is
// cooperative: the session entry follows the task's actual terminal state
// through the coordinator's finish hook, so a transfer that completes
// despite the request is still recorded as completed, not cancelled.
func (s *Service) Cancel(id string) {
	s.coord.Cancel(id)
}

// CancelAll cancels every active download and session entry.
func (s *Service) CancelAll() {
	s.tracker.CancelAll(func(packageKey string) {
		s.coord.Cancel(identifier.Parse(packageKey).String())
	})
	s.coord.CancelAll()
}

// Tasks returns snapshots of all download tasks in enqueue order.
func (s *Service) Tasks() []downloader.Task {
	return s.coord.Tasks()
}

// Task returns the download task with the given canonical id.
func (s *Service) Task(id string) (downloader.Task, error) {
	t, ok := s.coord.Task(id)
	if !ok {
		return downloader.Task{}, fmt.Errorf("task %q: %w", id, apperr.ErrNotFound)
	}
	return t, nil
}

// Batch returns the progress of a download batch.
func (s *Service) Batch(id string) (downloader.BatchState, error) {
	b, ok := s.coord.Batch(id)
	if !ok {
		return downloader.BatchState{}, fmt.Errorf("batch %q: %w", id, apperr.ErrNotFound)
	}
	return b, nil
}

// SessionEntries returns the session tracker's entries in insertion order.
func (s *Service) SessionEntries() []session.Entry {
	return s.tracker.Entries()
}

// ClearTerminal drops completed, failed, and cancelled session entries.
func (s *Service) ClearTerminal() int {
	return s.tracker.ClearTerminal()
}

// History lists finished downloads, newest first.
func (s *Service) History(limit, offset int, groupKey string) ([]history.Row, int, error) {
	return s.hist.List(limit, offset, groupKey)
}

// ClearHistory removes all history rows.
func (s *Service) ClearHistory() (int64, error) {
	return s.hist.Clear()
}
