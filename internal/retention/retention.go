// Package retention relocates superseded local package versions after a
// successful update, according to the configured policy.
package retention

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/starford/fehu/internal/identifier"
	"github.com/starford/fehu/internal/library"
)

// Action is the configured post-update policy for superseded versions.
type Action string

const (
	// ActionNoChange leaves old versions in place.
	ActionNoChange Action = "no_change"
	// ActionArchive moves old versions into the archive root.
	ActionArchive Action = "archive"
	// ActionDiscard moves old versions into the discard root.
	ActionDiscard Action = "discard"
)

// Valid reports whether the action is a known policy value.
func (a Action) Valid() bool {
	switch a {
	case ActionNoChange, ActionArchive, ActionDiscard:
		return true
	}
	return false
}

// Outcome records what happened to one superseded file.
type Outcome struct {
	Identifier string `json:"identifier"`
	FromPath   string `json:"from_path"`
	ToPath     string `json:"to_path,omitempty"`
	Moved      bool   `json:"moved"`
	Missing    bool   `json:"missing"`
	Error      string `json:"error,omitempty"`
}

// Engine moves superseded files into the archive or discard location,
// namespaced by group key.
type Engine struct {
	archiveRoot string
	discardRoot string
	logger      *slog.Logger
}

// NewEngine creates an Engine. Missing roots are a configuration error and
// fatal at construction time.
func NewEngine(archiveRoot, discardRoot string, logger *slog.Logger) (*Engine, error) {
	if archiveRoot == "" || discardRoot == "" {
		return nil, fmt.Errorf("retention: archive and discard roots are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{archiveRoot: archiveRoot, discardRoot: discardRoot, logger: logger}, nil
}

// Apply relocates every local record in groupKey with an exact version below
// keepVersion. Each move is independent: a failure (or a file already
// missing because the user deleted it) is logged and skipped, never fatal to
// the batch. The caller rebuilds the library index afterwards; Apply does
// not touch it.
func (e *Engine) Apply(action Action, groupKey string, keepVersion uint64, snap *library.Snapshot) []Outcome {
	if action == ActionNoChange {
		return nil
	}

	root := e.archiveRoot
	if action == ActionDiscard {
		root = e.discardRoot
	}

	var outcomes []Outcome
	for _, rec := range snap.GroupRecords(groupKey) {
		id := identifier.Parse(rec.Identifier)
		if id.Constraint != identifier.ConstraintExact || id.Number >= keepVersion {
			continue
		}

		out := Outcome{Identifier: rec.Identifier, FromPath: rec.Path}
		dest := filepath.Join(root, id.GroupKey(), filepath.Base(rec.Path))

		if _, err := os.Stat(rec.Path); os.IsNotExist(err) {
			out.Missing = true
			e.logger.Debug("retention: already missing", slog.String("path", rec.Path))
			outcomes = append(outcomes, out)
			continue
		}

		if err := moveOverwrite(rec.Path, dest); err != nil {
			out.Error = err.Error()
			e.logger.Warn("retention: move failed",
				slog.String("path", rec.Path),
				slog.String("dest", dest),
				slog.String("error", err.Error()))
			outcomes = append(outcomes, out)
			continue
		}

		out.ToPath = dest
		out.Moved = true
		e.logger.Info("retention: relocated superseded version",
			slog.String("identifier", rec.Identifier),
			slog.String("action", string(action)),
			slog.String("dest", dest))
		outcomes = append(outcomes, out)
	}
	return outcomes
}

// moveOverwrite moves from to to, replacing any pre-existing file of the
// same name at the destination. Falls back to copy+remove when rename
// crosses filesystems.
func moveOverwrite(from, to string) error {
	if err := os.MkdirAll(filepath.Dir(to), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	// Explicit overwrite: remove any previous occupant first so rename
	// semantics are uniform across platforms.
	if err := os.Remove(to); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing: %w", err)
	}
	if err := os.Rename(from, to); err == nil {
		return nil
	}
	return copyAndRemove(from, to)
}

func copyAndRemove(from, to string) error {
	src, err := os.Open(from)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(to)
	if err != nil {
		return fmt.Errorf("create dest: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		_ = os.Remove(to)
		return fmt.Errorf("copy: %w", err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("close dest: %w", err)
	}
	return os.Remove(from)
}
