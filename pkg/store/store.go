// Package store persists ConcreteStores (the execution context's
// name-to-bytes assignments) to a per-process directory: error test
// cases and discovered-path test cases, read back by SYMEX_TESTCASE
// replay. Encoding is gob, gzip-compressed on disk.
package store

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"

	"github.com/gitrdm/symconcolic/pkg/execctx"
)

// Dir manages the per-process directory a run's error and path test
// cases are written into.
type Dir struct {
	root string
}

// NewDir creates (if needed) and returns a Dir rooted at path.
func NewDir(path string) (*Dir, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("store: create directory %s: %w", path, err)
	}
	return &Dir{root: path}, nil
}

// Root returns the directory's filesystem path.
func (d *Dir) Root() string { return d.root }

// SaveError persists store as error test case n under this directory,
// gzip-compressed, returning the file's path.
func (d *Dir) SaveError(n int, s execctx.Store) (string, error) {
	return d.save(fmt.Sprintf("error-%04d.gob.gz", n), s)
}

// SavePath persists store as a discovered-path test case under this
// directory, gzip-compressed, returning the file's path.
func (d *Dir) SavePath(n int, s execctx.Store) (string, error) {
	return d.save(fmt.Sprintf("path-%04d.gob.gz", n), s)
}

func (d *Dir) save(name string, s execctx.Store) (string, error) {
	path := filepath.Join(d.root, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("store: create %s: %w", path, err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	if err := gob.NewEncoder(gz).Encode(s); err != nil {
		return "", fmt.Errorf("store: encode %s: %w", path, err)
	}
	if err := gz.Close(); err != nil {
		return "", fmt.Errorf("store: flush %s: %w", path, err)
	}
	return path, nil
}

// Load reads back a ConcreteStore previously written by SaveError or
// SavePath.
func Load(path string) (execctx.Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("store: gzip reader for %s: %w", path, err)
	}
	defer gz.Close()

	var s execctx.Store
	if err := gob.NewDecoder(gz).Decode(&s); err != nil {
		return nil, fmt.Errorf("store: decode %s: %w", path, err)
	}
	return s, nil
}

// Encode serializes s to gob form without gzip framing or filesystem
// access, used by tests and by callers that transport a store over a
// channel rather than a file.
func Encode(s execctx.Store) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		return nil, fmt.Errorf("store: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode is the inverse of Encode.
func Decode(r io.Reader) (execctx.Store, error) {
	var s execctx.Store
	if err := gob.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("store: decode: %w", err)
	}
	return s, nil
}
