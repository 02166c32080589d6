package rag

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/54b3r/chapterdex/internal/catalog"
)

// ErrIndexNotFound is returned when the index file does not exist.
var ErrIndexNotFound = errors.New("rag: index not found")

// Index is the flat chunk list plus a grouping by chapter id.
type Index struct {
	List     []Chunk            `json:"list"`
	Chapters map[string][]Chunk `json:"chapters"`
}

// NewIndex builds an index from chunks in order.
func NewIndex(list []Chunk) *Index {
	idx := &Index{List: list, Chapters: make(map[string][]Chunk)}
	if idx.List == nil {
		idx.List = []Chunk{}
	}
	for _, c := range list {
		idx.Chapters[c.ChapterID] = append(idx.Chapters[c.ChapterID], c)
	}
	return idx
}

// VectorCount returns the number of chunks carrying a vector.
func (idx *Index) VectorCount() int {
	n := 0
	for _, c := range idx.List {
		if c.Vector != nil {
			n++
		}
	}
	return n
}

// Save writes the index to path atomically.
func (idx *Index) Save(path string) error {
	data, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("rag: encode index: %w", err)
	}
	return catalog.WriteFileAtomic(path, data)
}

// LoadIndex reads an index file. The chapter grouping is rebuilt from the
// flat list when the file omits it.
func LoadIndex(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("rag: read index %s: %w", path, err)
	}
	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("rag: parse index %s: %w", path, err)
	}
	if len(idx.Chapters) == 0 && len(idx.List) > 0 {
		return NewIndex(idx.List), nil
	}
	if idx.Chapters == nil {
		idx.Chapters = map[string][]Chunk{}
	}
	return &idx, nil
}

// NewLoader returns a function that loads the index at path once and
// returns the same result on every later call.
func NewLoader(path string) func() (*Index, error) {
	return sync.OnceValues(func() (*Index, error) {
		return LoadIndex(path)
	})
}
