// Package rag builds and queries the chunk index used for retrieval.
//
// The index is a disposable artifact: [Builder] rebuilds it in full from the
// manifest and the source PDFs, and [Retriever] serves read-only queries
// over it, scoring by vector similarity when vectors exist and by keyword
// term frequency otherwise. An optional Qdrant collection mirrors the
// vectored chunks.
package rag

import "context"

// Retrieval modes reported on each hit.
const (
	ModeQdrant  = "qdrant"
	ModeVector  = "vector"
	ModeKeyword = "keyword"
)

// Chunk is a bounded span of chapter text.
type Chunk struct {
	// ID is "chapterId:sequence".
	ID string `json:"id"`
	// ChapterID is the owning chapter.
	ChapterID string `json:"chapterId"`
	// Sequence is the 1-based position within the chapter.
	Sequence int `json:"sequence"`
	// Page is the physical PDF page the chunk was cut from (0 if unknown).
	Page int `json:"page,omitempty"`
	// Text is the whitespace-normalized chunk text.
	Text string `json:"text"`
	// Vector is the embedding; null means keyword-only.
	Vector []float32 `json:"vector"`
}

// Citation locates a hit in the source material.
type Citation struct {
	ChapterID string `json:"chapterId"`
	Page      int    `json:"page"`
	URL       string `json:"url,omitempty"`
}

// Hit is one retrieval result.
type Hit struct {
	Chunk    Chunk    `json:"chunk"`
	Score    float64  `json:"score"`
	Mode     string   `json:"mode"`
	Citation Citation `json:"citation"`
}

// Embedder embeds chunk batches, returning nil entries for texts it could
// not embed. embedder.Client satisfies it.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) [][]float32
}

// QueryEmbedder embeds a single query, returning nil when no vector is
// available. embedder.Client satisfies it.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, query string) []float32
}

// VectorStore mirrors vectored chunks into an external vector database.
// Implementations must be safe to call from multiple goroutines.
type VectorStore interface {
	// Reset drops and recreates the collection for a full rebuild.
	Reset(ctx context.Context) error
	// Upsert stores every chunk that has a vector and returns how many it stored.
	Upsert(ctx context.Context, chunks []Chunk) (int, error)
	// Search returns the topK nearest chunks, restricted to chapterID when non-empty.
	Search(ctx context.Context, vector []float32, chapterID string, topK int) ([]Hit, error)
	// Ping checks connectivity.
	Ping(ctx context.Context) error
	// Close releases resources held by the store.
	Close() error
}

// LinkBuilder turns a chapter and page into a URL. The retriever only needs
// this capability; how files are served is up to the caller.
type LinkBuilder interface {
	Link(chapterID string, page int) string
}

// PageSource extracts per-page text from a PDF. pdftext.Extractor
// satisfies it.
type PageSource interface {
	Pages(ctx context.Context, path string) ([]string, error)
}
