package rag

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/54b3r/chapterdex/internal/catalog"
)

// FileLinker links citations to the chapter PDFs served under /files/.
type FileLinker struct {
	baseURL string
	files   map[string]string
}

// NewFileLinker maps each catalog chapter to its file. baseURL is the
// public server origin; empty yields root-relative links.
func NewFileLinker(baseURL string, cat *catalog.Catalog) *FileLinker {
	files := make(map[string]string, cat.Len())
	for _, rec := range cat.Records() {
		files[rec.ChapterID] = rec.File
	}
	return &FileLinker{baseURL: strings.TrimRight(baseURL, "/"), files: files}
}

// Link returns "<base>/files/<file>#page=N", or "" for an unknown chapter.
func (l *FileLinker) Link(chapterID string, page int) string {
	file, ok := l.files[chapterID]
	if !ok {
		return ""
	}
	u := l.baseURL + "/files/" + (&url.URL{Path: file}).EscapedPath()
	if page > 0 {
		u += fmt.Sprintf("#page=%d", page)
	}
	return u
}
