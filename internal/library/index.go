package library

import (
	"sync/atomic"

	"github.com/starford/fehu/internal/identifier"
)

// Snapshot is an immutable view of the local library built by Build. All
// lookups are case-insensitive. A Snapshot is never mutated after
// construction; readers hold a reference and writers install a new snapshot
// through Store.
type Snapshot struct {
	names   map[string]struct{}
	highest map[string]uint64
	paths   map[string]string
	best    map[string]bestEntry
	records []Record
}

type bestEntry struct {
	path    string
	version uint64
}

// Build constructs a Snapshot from scan records in a single O(n) pass.
// Only exact-versioned identifiers contribute to the per-group highest
// version. When two records claim the same exact version for a group, the
// later record in the scan wins.
func Build(records []Record) *Snapshot {
	s := &Snapshot{
		names:   make(map[string]struct{}, len(records)),
		highest: make(map[string]uint64, len(records)),
		paths:   make(map[string]string, len(records)),
		best:    make(map[string]bestEntry, len(records)),
		records: records,
	}
	for _, rec := range records {
		id := identifier.Parse(rec.Identifier)
		nameKey := identifier.Key(id.String())
		s.names[nameKey] = struct{}{}
		s.paths[nameKey] = rec.Path

		if id.Constraint != identifier.ConstraintExact {
			continue
		}
		groupKey := identifier.Key(id.GroupKey())
		if id.Number > s.highest[groupKey] {
			s.highest[groupKey] = id.Number
		}
		// >= keeps the later scan entry on duplicate versions.
		if cur, ok := s.best[groupKey]; !ok || id.Number >= cur.version {
			s.best[groupKey] = bestEntry{path: rec.Path, version: id.Number}
		}
	}
	return s
}

// Contains reports whether the exact identifier is present in the library.
func (s *Snapshot) Contains(rawIdentifier string) bool {
	_, ok := s.names[identifier.Key(identifier.Parse(rawIdentifier).String())]
	return ok
}

// HighestVersion returns the greatest exact version on disk for the group.
func (s *Snapshot) HighestVersion(groupKey string) (uint64, bool) {
	v, ok := s.highest[identifier.Key(groupKey)]
	return v, ok
}

// PathOf returns the on-disk path for an exact identifier.
func (s *Snapshot) PathOf(rawIdentifier string) (string, bool) {
	p, ok := s.paths[identifier.Key(identifier.Parse(rawIdentifier).String())]
	return p, ok
}

// FindBestPath returns the path and version of the highest exact version in
// the group.
func (s *Snapshot) FindBestPath(groupKey string) (path string, version uint64, found bool) {
	e, ok := s.best[identifier.Key(groupKey)]
	if !ok {
		return "", 0, false
	}
	return e.path, e.version, true
}

// GroupRecords returns every record whose identifier belongs to the group.
func (s *Snapshot) GroupRecords(groupKey string) []Record {
	key := identifier.Key(groupKey)
	var out []Record
	for _, rec := range s.records {
		if identifier.Key(identifier.Parse(rec.Identifier).GroupKey()) == key {
			out = append(out, rec)
		}
	}
	return out
}

// Records returns the scan records the snapshot was built from.
func (s *Snapshot) Records() []Record {
	return s.records
}

// Len returns the number of records in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.records)
}

// Scanner yields the current on-disk library contents.
type Scanner interface {
	Scan() ([]Record, error)
}

// Store holds the current library snapshot. Readers take a point-in-time
// reference via Current; Rebuild installs a fresh snapshot atomically, so a
// reader never observes a partially updated index.
type Store struct {
	scanner Scanner
	current atomic.Pointer[Snapshot]
}

// NewStore creates a Store with an empty snapshot.
func NewStore(scanner Scanner) *Store {
	st := &Store{scanner: scanner}
	st.current.Store(Build(nil))
	return st
}

// Current returns the latest snapshot.
func (st *Store) Current() *Snapshot {
	return st.current.Load()
}

// Rebuild scans the library and swaps in a new snapshot. On scan failure
// the previous snapshot stays in place.
func (st *Store) Rebuild() (*Snapshot, error) {
	records, err := st.scanner.Scan()
	if err != nil {
		return st.Current(), err
	}
	snap := Build(records)
	st.current.Store(snap)
	return snap, nil
}
