package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotFound is returned by [FileStore.Load] when the manifest file does
// not exist.
var ErrNotFound = errors.New("catalog: manifest not found")

// FileStore persists a catalog as a JSON array at Path.
type FileStore struct {
	// Path is the manifest.json location.
	Path string
}

// Load reads the manifest. A missing file yields an error wrapping
// [ErrNotFound].
func (s FileStore) Load() (*Catalog, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, s.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", s.Path, err)
	}

	var records []ChapterRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("catalog: parse %s: %w", s.Path, err)
	}
	return New(records), nil
}

// LoadOrEmpty is like Load but returns an empty catalog when the file is
// missing.
func (s FileStore) LoadOrEmpty() (*Catalog, error) {
	c, err := s.Load()
	if errors.Is(err, ErrNotFound) {
		return New(nil), nil
	}
	return c, err
}

// Save writes the catalog atomically (temp file + rename) as indented JSON
// sorted by (grade, subject, chapterNo).
func (s FileStore) Save(c *Catalog) error {
	records := c.Records()
	for i := range records {
		if records[i].Anchors == nil {
			records[i].Anchors = []Anchor{}
		}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("catalog: encode: %w", err)
	}
	return WriteFileAtomic(s.Path, append(data, '\n'))
}

// WriteFileAtomic writes data to a temp file in the destination directory
// and renames it into place.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("catalog: create dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("catalog: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("catalog: write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("catalog: close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("catalog: rename into %s: %w", path, err)
	}
	return nil
}
