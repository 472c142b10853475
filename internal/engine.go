package internal

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/starford/fehu/internal/api"
	"github.com/starford/fehu/internal/catalog"
	"github.com/starford/fehu/internal/downloader"
	"github.com/starford/fehu/internal/events"
	"github.com/starford/fehu/internal/history"
	"github.com/starford/fehu/internal/identifier"
	"github.com/starford/fehu/internal/library"
	"github.com/starford/fehu/internal/retention"
	"github.com/starford/fehu/internal/session"
)

// engine bundles the core components shared by the HTTP and MCP entry points.
type engine struct {
	store   *library.Store
	db      *history.DB
	coord   *downloader.Coordinator
	tracker *session.Tracker
	svc     *api.Service
}

func (e *engine) close() {
	e.coord.Close()
	_ = e.db.Close()
}

// buildEngine assembles the library index, history database, retention
// engine, catalog client, session tracker, and download coordinator from the
// application configuration. broker may be nil (MCP mode has no SSE
// subscribers).
//
// The coordinator hooks run serialized inside its loop: a completed download
// rebuilds the index and applies retention before its completed event goes
// out, so the next completion always sees the updated library state.
func buildEngine(app *application, logger *slog.Logger, broker *events.Broker) (*engine, error) {
	cfg := app.config

	// Ensure library, archive, and discard directories exist.
	for _, dir := range []string{cfg.Library.Path, cfg.Library.ArchivePath, cfg.Library.DiscardPath} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create dir %s: %w", dir, err)
		}
	}

	// Initialize the library index.
	scanner, err := library.NewFSScanner(cfg.Library.Path)
	if err != nil {
		return nil, fmt.Errorf("init library scanner: %w", err)
	}
	store := library.NewStore(scanner)
	if snap, err := store.Rebuild(); err != nil {
		logger.Warn("initial library scan failed", slog.String("error", err.Error()))
	} else {
		logger.Info("library indexed", slog.Int("packages", snap.Len()))
	}

	// Initialize download history.
	db, err := history.Open(cfg.History.Path)
	if err != nil {
		return nil, fmt.Errorf("init history: %w", err)
	}

	// Retention engine for superseded versions.
	retainer, err := retention.NewEngine(cfg.Library.ArchivePath, cfg.Library.DiscardPath, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init retention: %w", err)
	}

	// Remote catalog client.
	cat := app.catalog
	if cat == nil {
		cat = catalog.NewHTTPClient(cfg.Catalog.BaseURL, time.Duration(cfg.Catalog.TimeoutSeconds)*time.Second)
	}

	tracker := session.NewTracker()

	transport := app.transport
	if transport == nil {
		transport = downloader.NewHTTPTransport()
	}

	coord, err := downloader.New(downloader.Config{
		Transport:     transport,
		MaxConcurrent: cfg.Download.MaxConcurrent,
		Events:        broker,
		Logger:        logger,
		OnCompleted: func(t downloader.Task) {
			snap, rebuildErr := store.Rebuild()
			if rebuildErr != nil {
				logger.Warn("index rebuild after download failed", slog.String("error", rebuildErr.Error()))
			}
			id := identifier.Parse(t.ID)
			if id.Constraint == identifier.ConstraintExact && cfg.Library.Retention != retention.ActionNoChange {
				outcomes := retainer.Apply(cfg.Library.Retention, id.GroupKey(), id.Number, snap)
				for _, o := range outcomes {
					if o.Moved {
						if _, rebuildErr := store.Rebuild(); rebuildErr != nil {
							logger.Warn("index rebuild after retention failed", slog.String("error", rebuildErr.Error()))
						}
						break
					}
				}
			}
			if broker != nil {
				broker.PublishLibraryUpdated()
			}
		},
		OnEvent: func(t downloader.Task) {
			if t.Status == downloader.StatusDownloading {
				tracker.Update(t.ID, session.StateDownloading, "")
			}
		},
		OnFinished: func(t downloader.Task) {
			switch t.Status {
			case downloader.StatusCompleted:
				tracker.Update(t.ID, session.StateCompleted, "")
			case downloader.StatusFailed:
				tracker.Update(t.ID, session.StateFailed, t.Message)
			case downloader.StatusCancelled:
				tracker.Cancel(t.ID)
			}
			if recErr := db.Record(history.Row{
				Identifier: t.ID,
				GroupKey:   identifier.Parse(t.ID).GroupKey(),
				Status:     string(t.Status),
				Message:    t.Message,
				Bytes:      t.BytesTransferred,
			}); recErr != nil {
				logger.Warn("record download history failed", slog.String("error", recErr.Error()))
			}
		},
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init downloader: %w", err)
	}

	svc := api.NewService(store, cat, coord, tracker, db, cfg.Library.Path, logger)

	return &engine{
		store:   store,
		db:      db,
		coord:   coord,
		tracker: tracker,
		svc:     svc,
	}, nil
}
