// Package session tracks per-package download status for the progress
// surface, matching incoming events to tracked entries by exact identifier
// or, on a miss, by group key.
package session

import (
	"strings"
	"sync"

	"github.com/starford/fehu/internal/identifier"
)

// State is the lifecycle state of a tracked package.
type State string

const (
	StateQueued      State = "queued"
	StateDownloading State = "downloading"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
	StateCancelled   State = "cancelled"
)

// Terminal reports whether the state permits no further mutation.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Entry is a point-in-time view of one tracked package.
type Entry struct {
	PackageKey string `json:"package_key"`
	State      State  `json:"state"`
	Message    string `json:"message,omitempty"`
}

type entry struct {
	packageKey string
	groupKey   string // lowercased, for fuzzy matching
	state      State
	message    string
}

// Tracker holds session entries in insertion order. Progress and completion
// events may reference a slightly different identifier string than the one
// an entry was seeded with (a dependency reference and the resolved download
// filename differ by version suffix), so matching falls back to group keys.
type Tracker struct {
	mu      sync.Mutex
	entries []*entry
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Track seeds a Queued entry for a package enqueued this session. Duplicate
// keys are tracked as separate entries; event matching picks the first in
// insertion order.
func (t *Tracker) Track(packageKey string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, &entry{
		packageKey: packageKey,
		groupKey:   identifier.Key(identifier.Parse(packageKey).GroupKey()),
		state:      StateQueued,
	})
}

// match finds the entry for an event key: exact identifier match first,
// then the first entry (insertion order) sharing the event's group key.
func (t *Tracker) match(eventKey string) *entry {
	for _, e := range t.entries {
		if strings.EqualFold(e.packageKey, eventKey) {
			return e
		}
	}
	groupKey := identifier.Key(identifier.Parse(eventKey).GroupKey())
	for _, e := range t.entries {
		if e.groupKey == groupKey {
			return e
		}
	}
	return nil
}

// Update applies an event to the matched entry. Events for terminal entries
// and events matching no entry are ignored; the return value reports
// whether the event was applied.
func (t *Tracker) Update(eventKey string, state State, message string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.match(eventKey)
	if e == nil || e.state.Terminal() {
		return false
	}
	e.state = state
	e.message = message
	return true
}

// Cancel marks the single matched entry Cancelled. Other entries sharing
// the same group key are unaffected.
func (t *Tracker) Cancel(eventKey string) bool {
	return t.Update(eventKey, StateCancelled, "")
}

// CancelAll marks every non-terminal entry Cancelled and invokes signal
// (if non-nil) for each so the underlying download task is cancelled too.
func (t *Tracker) CancelAll(signal func(packageKey string)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, e := range t.entries {
		if e.state.Terminal() {
			continue
		}
		e.state = StateCancelled
		e.message = ""
		if signal != nil {
			signal(e.packageKey)
		}
	}
}

// ClearTerminal removes completed, failed, and cancelled entries and
// returns how many were removed.
func (t *Tracker) ClearTerminal() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	kept := t.entries[:0]
	removed := 0
	for _, e := range t.entries {
		if e.state.Terminal() {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	t.entries = kept
	return removed
}

// Entries returns a snapshot of all entries in insertion order.
func (t *Tracker) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Entry, len(t.entries))
	for i, e := range t.entries {
		out[i] = Entry{PackageKey: e.packageKey, State: e.state, Message: e.message}
	}
	return out
}
