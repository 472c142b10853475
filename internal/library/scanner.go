package library

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FSScanner walks the library root and produces one Record per .var file.
type FSScanner struct {
	root string // absolute path to library directory
}

// NewFSScanner creates a scanner rooted at the given directory. The
// directory must already exist.
func NewFSScanner(root string) (*FSScanner, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("library: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("library: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("library: root is not a directory: %s", abs)
	}
	return &FSScanner{root: abs}, nil
}

// Root returns the absolute library root.
func (sc *FSScanner) Root() string {
	return sc.root
}

// Scan walks the root and returns a record for every .var file. The
// identifier is the file name without the .var extension.
func (sc *FSScanner) Scan() ([]Record, error) {
	var out []Record
	err := filepath.WalkDir(sc.root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(d.Name()), ".var") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, Record{
			Identifier: strings.TrimSuffix(d.Name(), filepath.Ext(d.Name())),
			Path:       p,
			ModTicks:   info.ModTime().UnixNano(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("library: scan: %w", err)
	}
	return out, nil
}
