package rag

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/54b3r/chapterdex/internal/catalog"
	"github.com/54b3r/chapterdex/internal/pdftext"
)

// fakePages serves canned page text per file base name.
type fakePages map[string][]string

func (f fakePages) Pages(_ context.Context, path string) ([]string, error) {
	pages, ok := f[filepath.Base(path)]
	if !ok {
		return nil, &pdftext.ParseError{Path: path, Err: errors.New("bad xref")}
	}
	return pages, nil
}

// fakeEmbedder returns a fixed vector for every text, or nil when vec is nil.
type fakeEmbedder struct {
	vec   []float32
	calls atomic.Int32
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) [][]float32 {
	f.calls.Add(1)
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = f.vec
	}
	return out
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, q string) []float32 {
	return f.EmbedBatch(ctx, []string{q})[0]
}

type fakeStore struct {
	hits     []Hit
	err      error
	upserted int
	resets   int
}

func (s *fakeStore) Reset(context.Context) error { s.resets++; return nil }
func (s *fakeStore) Upsert(_ context.Context, chunks []Chunk) (int, error) {
	for _, c := range chunks {
		if c.Vector != nil {
			s.upserted++
		}
	}
	return s.upserted, nil
}
func (s *fakeStore) Search(context.Context, []float32, string, int) ([]Hit, error) {
	return s.hits, s.err
}
func (s *fakeStore) Ping(context.Context) error { return nil }
func (s *fakeStore) Close() error               { return nil }

func touch(t *testing.T, root string, names ...string) {
	t.Helper()
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(root, n), []byte("%PDF-1.4"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
}

func staticIndex(idx *Index) func() (*Index, error) {
	return func() (*Index, error) { return idx, nil }
}

// ── builder ─────────────────────────────────────────────────────────────────

func TestBuilder_MissingFileYieldsNoChunks(t *testing.T) {
	t.Parallel()
	b := &Builder{Root: t.TempDir(), Pages: fakePages{}}

	idx, report, err := b.Build(context.Background(), []catalog.ChapterRecord{
		{ChapterID: "9S-CH02", File: "iesc102.pdf"},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(idx.List) != 0 {
		t.Errorf("chunks = %d, want 0", len(idx.List))
	}
	if len(report.Missing) != 1 || report.Missing[0] != "9S-CH02" {
		t.Errorf("Missing = %v, want [9S-CH02]", report.Missing)
	}
}

func TestBuilder_Build(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	touch(t, root, "iesc101.pdf", "iesc102.pdf", "iesc103.pdf")

	pages := fakePages{
		"iesc101.pdf": {"Matter in our surroundings.", "", "Evaporation causes cooling."},
		"iesc102.pdf": {"Is matter around us pure?"},
	}
	emb := &fakeEmbedder{vec: []float32{1, 0}}
	sink := &fakeStore{}
	b := &Builder{Root: root, Pages: pages, Embedder: emb, Workers: 3, Sink: sink}

	idx, report, err := b.Build(context.Background(), []catalog.ChapterRecord{
		{ChapterID: "9S-CH01", File: "iesc101.pdf"},
		{ChapterID: "9S-CH02", File: "iesc102.pdf"},
		{ChapterID: "9S-CH03", File: "iesc103.pdf"},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	var ids []string
	for _, c := range idx.List {
		ids = append(ids, c.ID)
	}
	if got := strings.Join(ids, ","); got != "9S-CH01:1,9S-CH01:2,9S-CH02:1" {
		t.Errorf("chunk ids = %s", got)
	}
	if idx.List[1].Page != 3 {
		t.Errorf("second chunk page = %d, want 3", idx.List[1].Page)
	}
	if len(idx.Chapters["9S-CH01"]) != 2 {
		t.Errorf("chapter grouping = %v", idx.Chapters)
	}
	if report.Vectors != 3 || report.Chapters != 2 {
		t.Errorf("report = %+v", report)
	}
	if len(report.Failed) != 1 || report.Failed[0] != "9S-CH03" {
		t.Errorf("Failed = %v, want [9S-CH03]", report.Failed)
	}
	if sink.resets != 1 || report.Mirrored != 3 {
		t.Errorf("sink resets=%d mirrored=%d, want 1 and 3", sink.resets, report.Mirrored)
	}
}

func TestBuilder_BatchesEmbeddings(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	touch(t, root, "a.pdf")

	var pages []string
	for range 5 {
		pages = append(pages, "Some page text.")
	}
	emb := &fakeEmbedder{vec: []float32{1}}
	b := &Builder{Root: root, Pages: fakePages{"a.pdf": pages}, Embedder: emb, BatchSize: 2}
	if _, _, err := b.Build(context.Background(), []catalog.ChapterRecord{{ChapterID: "X", File: "a.pdf"}}); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := emb.calls.Load(); got != 3 {
		t.Errorf("embed calls = %d, want 3", got)
	}
}

func TestBuilder_KeywordOnlyIndexPersistsNullVectors(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	touch(t, root, "a.pdf")

	b := &Builder{Root: root, Pages: fakePages{"a.pdf": {"Only text here."}}, Embedder: &fakeEmbedder{}}
	idx, _, err := b.Build(context.Background(), []catalog.ChapterRecord{{ChapterID: "X", File: "a.pdf"}})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	path := filepath.Join(root, "out", "index.json")
	if err := idx.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"vector":null`) {
		t.Errorf("index JSON lacks null vector: %s", data)
	}

	loaded, err := LoadIndex(path)
	if err != nil {
		t.Fatalf("LoadIndex: %v", err)
	}
	if len(loaded.Chapters["X"]) != 1 || loaded.List[0].Vector != nil {
		t.Errorf("loaded = %+v", loaded)
	}
}

// ── index loading ───────────────────────────────────────────────────────────

func TestLoadIndex_Missing(t *testing.T) {
	t.Parallel()
	_, err := LoadIndex(filepath.Join(t.TempDir(), "index.json"))
	if !errors.Is(err, ErrIndexNotFound) {
		t.Errorf("err = %v, want ErrIndexNotFound", err)
	}
}

func TestNewLoader_LoadsOnce(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "index.json")
	if err := NewIndex([]Chunk{{ID: "X:1", ChapterID: "X", Sequence: 1, Text: "a"}}).Save(path); err != nil {
		t.Fatal(err)
	}
	load := NewLoader(path)
	first, err := load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	second, err := load()
	if err != nil || second != first {
		t.Errorf("second load = (%p, %v), want cached %p", second, err, first)
	}
}

// ── keyword scoring ─────────────────────────────────────────────────────────

func TestKeywordScore(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		query string
		text  string
		want  float64
	}{
		{"short term counts once", "pure", "Pure substances are pure.", 2},
		{"long term counts double", "mixture", "A mixture is not pure.", 2},
		{"mixed", "pure mixture", "A mixture is not pure.", 3},
		{"no match", "atom", "A mixture is not pure.", 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := KeywordScore(Terms(tc.query), tc.text); got != tc.want {
				t.Errorf("KeywordScore(%q, %q) = %v, want %v", tc.query, tc.text, got, tc.want)
			}
		})
	}
}

func TestKeywordScore_Monotonic(t *testing.T) {
	t.Parallel()
	terms := Terms("solution")
	text := "A solution is homogeneous."
	if KeywordScore(terms, text+" Another solution.") <= KeywordScore(terms, text) {
		t.Error("adding an occurrence did not raise the score")
	}
}

// ── retrieval ───────────────────────────────────────────────────────────────

func testIndex() *Index {
	return NewIndex([]Chunk{
		{ID: "9S-CH02:1", ChapterID: "9S-CH02", Sequence: 1, Page: 4, Text: "A mixture contains two or more substances."},
		{ID: "9S-CH02:2", ChapterID: "9S-CH02", Sequence: 2, Text: "A solution is a homogeneous mixture. Mixture mixture."},
		{ID: "9S-CH03:1", ChapterID: "9S-CH03", Sequence: 1, Page: 1, Text: "Atoms and molecules."},
	})
}

func TestRetriever_Keyword(t *testing.T) {
	t.Parallel()
	r, err := NewRetriever(RetrieverConfig{Index: staticIndex(testIndex())})
	if err != nil {
		t.Fatal(err)
	}

	hits, err := r.Retrieve(context.Background(), "mixture", "", 0)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("hits = %d, want 2 (zero scores excluded)", len(hits))
	}
	if hits[0].Chunk.ID != "9S-CH02:2" || hits[0].Mode != ModeKeyword {
		t.Errorf("top hit = %+v", hits[0])
	}
	if hits[0].Score < hits[1].Score {
		t.Errorf("hits not sorted by score: %v, %v", hits[0].Score, hits[1].Score)
	}
	// Page 0 cites the sequence number.
	if hits[0].Citation.Page != 2 || hits[1].Citation.Page != 4 {
		t.Errorf("citation pages = %d, %d", hits[0].Citation.Page, hits[1].Citation.Page)
	}
}

func TestRetriever_ChapterScope(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		chapter  string
		global   bool
		wantHits int
	}{
		{"scoped", "9S-CH03", false, 0},
		{"unknown chapter", "9S-CH99", false, 0},
		{"unknown chapter with global fallback", "9S-CH99", true, 2},
		{"unscoped", "", false, 2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			r, err := NewRetriever(RetrieverConfig{Index: staticIndex(testIndex()), GlobalFallback: tc.global})
			if err != nil {
				t.Fatal(err)
			}
			hits, err := r.Retrieve(context.Background(), "mixture", tc.chapter, 5)
			if err != nil {
				t.Fatalf("Retrieve: %v", err)
			}
			if len(hits) != tc.wantHits {
				t.Errorf("hits = %d, want %d", len(hits), tc.wantHits)
			}
		})
	}
}

func TestRetriever_TopK(t *testing.T) {
	t.Parallel()
	r, _ := NewRetriever(RetrieverConfig{Index: staticIndex(testIndex())})
	hits, err := r.Retrieve(context.Background(), "mixture", "", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Errorf("hits = %d, want 1", len(hits))
	}
}

func TestRetriever_Vector(t *testing.T) {
	t.Parallel()
	idx := NewIndex([]Chunk{
		{ID: "A:1", ChapterID: "A", Sequence: 1, Text: "north", Vector: []float32{0, 1}},
		{ID: "A:2", ChapterID: "A", Sequence: 2, Text: "east", Vector: []float32{1, 0}},
		{ID: "A:3", ChapterID: "A", Sequence: 3, Text: "unembedded"},
	})
	r, _ := NewRetriever(RetrieverConfig{Index: staticIndex(idx), Embedder: &fakeEmbedder{vec: []float32{1, 0.1}}})

	hits, err := r.Retrieve(context.Background(), "anything", "A", 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(hits) != 2 || hits[0].Chunk.ID != "A:2" || hits[0].Mode != ModeVector {
		t.Fatalf("hits = %+v", hits)
	}
	if hits[0].Chunk.Vector != nil {
		t.Error("hit carries its embedding")
	}
}

func TestRetriever_MixedIndex(t *testing.T) {
	t.Parallel()
	idx := NewIndex([]Chunk{
		{ID: "9S-CH02:1", ChapterID: "9S-CH02", Sequence: 1, Text: "cells and tissues", Vector: []float32{1, 0}},
		{ID: "9S-CH02:2", ChapterID: "9S-CH02", Sequence: 2, Text: "photosynthesis photosynthesis in leaves"},
		{ID: "9S-CH02:3", ChapterID: "9S-CH02", Sequence: 3, Text: "roots absorb water"},
	})
	r, _ := NewRetriever(RetrieverConfig{Index: staticIndex(idx), Embedder: &fakeEmbedder{vec: []float32{1, 0.1}}})

	hits, err := r.Retrieve(context.Background(), "photosynthesis", "9S-CH02", 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("hits = %+v, want vector hit plus unembedded keyword hit", hits)
	}
	if hits[0].Chunk.ID != "9S-CH02:1" || hits[0].Mode != ModeVector {
		t.Errorf("hits[0] = %+v", hits[0])
	}
	// Keyword score 4 maps to 4/5.
	if h := hits[1]; h.Chunk.ID != "9S-CH02:2" || h.Mode != ModeKeyword || h.Score != 0.8 {
		t.Errorf("hits[1] = %+v", h)
	}

	hits, _ = r.Retrieve(context.Background(), "photosynthesis", "9S-CH02", 1)
	if len(hits) != 1 || hits[0].Chunk.ID != "9S-CH02:1" {
		t.Errorf("topK 1 hits = %+v", hits)
	}
}

func TestRetriever_StoreHitsMergeUnembedded(t *testing.T) {
	t.Parallel()
	store := &fakeStore{hits: []Hit{{Chunk: Chunk{ID: "9S-CH02:1", ChapterID: "9S-CH02", Sequence: 1}, Score: 0.9, Mode: ModeQdrant}}}
	r, _ := NewRetriever(RetrieverConfig{
		Index:    staticIndex(testIndex()),
		Embedder: &fakeEmbedder{vec: []float32{1}},
		Store:    store,
	})

	hits, err := r.Retrieve(context.Background(), "atoms", "", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 || hits[0].Mode != ModeQdrant || hits[1].Chunk.ID != "9S-CH03:1" || hits[1].Mode != ModeKeyword {
		t.Errorf("hits = %+v", hits)
	}
}

func TestRetriever_NoQueryVectorFallsBackToKeyword(t *testing.T) {
	t.Parallel()
	idx := NewIndex([]Chunk{{ID: "A:1", ChapterID: "A", Sequence: 1, Text: "north", Vector: []float32{0, 1}}})
	r, _ := NewRetriever(RetrieverConfig{Index: staticIndex(idx), Embedder: &fakeEmbedder{}})

	hits, err := r.Retrieve(context.Background(), "north", "", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].Mode != ModeKeyword {
		t.Errorf("hits = %+v, want one keyword hit", hits)
	}
}

func TestRetriever_StoreFailureFallsBack(t *testing.T) {
	t.Parallel()
	store := &fakeStore{err: errors.New("connection refused")}
	r, _ := NewRetriever(RetrieverConfig{
		Index:    staticIndex(testIndex()),
		Embedder: &fakeEmbedder{vec: []float32{1}},
		Store:    store,
	})

	hits, err := r.Retrieve(context.Background(), "mixture", "", 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(hits) == 0 || hits[0].Mode != ModeKeyword {
		t.Errorf("hits = %+v, want keyword fallback", hits)
	}
}

func TestRetriever_StoreHits(t *testing.T) {
	t.Parallel()
	store := &fakeStore{hits: []Hit{{Chunk: Chunk{ID: "9S-CH02:1", ChapterID: "9S-CH02", Sequence: 1, Page: 4}, Score: 0.9, Mode: ModeQdrant}}}
	cat := catalog.New([]catalog.ChapterRecord{{ChapterID: "9S-CH02", File: "science9/iesc102.pdf"}})
	r, _ := NewRetriever(RetrieverConfig{
		Index:    staticIndex(testIndex()),
		Embedder: &fakeEmbedder{vec: []float32{1}},
		Store:    store,
		Links:    NewFileLinker("http://localhost:8080/", cat),
	})

	// Only 9S-CH02:1 mentions substances and the store already returned it.
	hits, err := r.Retrieve(context.Background(), "substances", "", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].Mode != ModeQdrant {
		t.Fatalf("hits = %+v", hits)
	}
	if want := "http://localhost:8080/files/science9/iesc102.pdf#page=4"; hits[0].Citation.URL != want {
		t.Errorf("URL = %q, want %q", hits[0].Citation.URL, want)
	}
}

func TestRetriever_IndexError(t *testing.T) {
	t.Parallel()
	r, _ := NewRetriever(RetrieverConfig{Index: func() (*Index, error) { return nil, ErrIndexNotFound }})
	if _, err := r.Retrieve(context.Background(), "x", "", 5); !errors.Is(err, ErrIndexNotFound) {
		t.Errorf("err = %v, want ErrIndexNotFound", err)
	}
}

func TestCosine(t *testing.T) {
	t.Parallel()
	if got := Cosine([]float32{1, 0}, []float32{1, 0}); got != 1 {
		t.Errorf("identical = %v, want 1", got)
	}
	if got := Cosine([]float32{1, 0}, []float32{1, 0, 0}); got != 0 {
		t.Errorf("length mismatch = %v, want 0", got)
	}
	if got := Cosine([]float32{0, 0}, []float32{1, 0}); got != 0 {
		t.Errorf("zero vector = %v, want 0", got)
	}
}

func TestPointID_Stable(t *testing.T) {
	t.Parallel()
	if PointID("9S-CH02:1") != PointID("9S-CH02:1") || PointID("9S-CH02:1") == PointID("9S-CH02:2") {
		t.Error("point ids are not stable and distinct")
	}
}

func TestFileLinker_Link(t *testing.T) {
	t.Parallel()

	cat := catalog.New([]catalog.ChapterRecord{
		{ChapterID: "9S-CH02", File: "science/iesc102.pdf"},
		{ChapterID: "8M-CH01", File: "class 8/hemh101.pdf"},
	})
	l := NewFileLinker("http://localhost:8080/", cat)

	cases := []struct {
		chapter string
		page    int
		want    string
	}{
		{"9S-CH02", 3, "http://localhost:8080/files/science/iesc102.pdf#page=3"},
		{"9S-CH02", 0, "http://localhost:8080/files/science/iesc102.pdf"},
		{"8M-CH01", 1, "http://localhost:8080/files/class%208/hemh101.pdf#page=1"},
		{"10S-CH01", 1, ""},
	}
	for _, tc := range cases {
		if got := l.Link(tc.chapter, tc.page); got != tc.want {
			t.Errorf("Link(%q, %d) = %q, want %q", tc.chapter, tc.page, got, tc.want)
		}
	}
}

func TestRetriever_CitationLinks(t *testing.T) {
	t.Parallel()

	idx := NewIndex([]Chunk{
		{ID: "9S-CH02:1", ChapterID: "9S-CH02", Sequence: 1, Page: 4, Text: "evaporation of water"},
	})
	cat := catalog.New([]catalog.ChapterRecord{{ChapterID: "9S-CH02", File: "science/iesc102.pdf"}})
	ret, err := NewRetriever(RetrieverConfig{
		Index: func() (*Index, error) { return idx, nil },
		Links: NewFileLinker("http://x", cat),
	})
	if err != nil {
		t.Fatal(err)
	}
	hits, err := ret.Retrieve(context.Background(), "evaporation", "", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Fatalf("hits = %+v", hits)
	}
	if c := hits[0].Citation; c.Page != 4 || c.URL != "http://x/files/science/iesc102.pdf#page=4" {
		t.Errorf("citation = %+v", c)
	}
}
