// Package library maintains the local package index: immutable snapshots
// built from filesystem scan results, an atomic snapshot store, and a
// watcher that rebuilds the index when the library directory changes.
package library

// Record describes one package file found on disk. One record is produced
// per file; the identifier is derived from the file name.
type Record struct {
	Identifier string `json:"identifier"`
	Path       string `json:"path"`
	ModTicks   int64  `json:"mod_ticks"`
}
