package library

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// rebuildDebounce coalesces bursts of filesystem events (a download rename
// plus retention moves arrive close together) into a single index rebuild.
const rebuildDebounce = 200 * time.Millisecond

// Watch starts an fsnotify watcher on the library root and rebuilds the
// store's snapshot after file changes until ctx is cancelled. It calls cb
// (if non-nil) with the fresh snapshot after each rebuild.
//
// New directories created at runtime are automatically added to the watch
// list. All .var events within the debounce window collapse into one
// wholesale rebuild; the index is never patched in place.
func Watch(ctx context.Context, store *Store, root string, logger *slog.Logger, cb func(*Snapshot)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	var rebuildTimer *time.Timer
	var rebuildCh <-chan time.Time

	scheduleRebuild := func() {
		if rebuildTimer == nil {
			rebuildTimer = time.NewTimer(rebuildDebounce)
			rebuildCh = rebuildTimer.C
		} else {
			rebuildTimer.Reset(rebuildDebounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if rebuildTimer != nil {
				rebuildTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-rebuildCh:
			snap, rebuildErr := store.Rebuild()
			if rebuildErr != nil {
				logger.Warn("watcher: rebuild failed", slog.String("error", rebuildErr.Error()))
				continue
			}
			logger.Debug("watcher: index rebuilt", slog.Int("records", snap.Len()))
			if cb != nil {
				cb(snap)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					scheduleRebuild()
					continue
				}
			}

			if !strings.EqualFold(filepath.Ext(ev.Name), ".var") {
				continue
			}
			scheduleRebuild()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
