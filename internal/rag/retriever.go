package rag

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/54b3r/chapterdex/internal/fallback"
)

const defaultTopK = 5

// longTermRunes is the length from which a query term counts double.
const longTermRunes = 6

// RetrieverConfig configures a [Retriever].
type RetrieverConfig struct {
	// Index returns the chunk index. Required; typically [NewLoader].
	Index func() (*Index, error)
	// Embedder embeds queries. Nil means keyword scoring only.
	Embedder QueryEmbedder
	// Store is searched first when set and a query vector is available.
	Store VectorStore
	// Links builds citation URLs. May be nil.
	Links LinkBuilder
	// GlobalFallback searches the whole index when the requested chapter
	// has no chunks. When false such a query returns no hits.
	GlobalFallback bool
	// DefaultTopK is used when a caller passes topK <= 0. Default 5.
	DefaultTopK int
	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Retriever answers queries against the chunk index.
type Retriever struct {
	cfg RetrieverConfig
	log *slog.Logger
}

// NewRetriever validates cfg and returns a Retriever.
func NewRetriever(cfg RetrieverConfig) (*Retriever, error) {
	if cfg.Index == nil {
		return nil, fmt.Errorf("rag: index loader must not be nil")
	}
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = defaultTopK
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Retriever{cfg: cfg, log: log}, nil
}

// Retrieve returns up to topK hits for query, scoped to chapterID when it
// is non-empty. It tries the vector store, then in-memory cosine similarity,
// then keyword scoring; the first that yields hits wins. Vector results are
// topped up with keyword hits on chunks that were never embedded.
func (r *Retriever) Retrieve(ctx context.Context, query, chapterID string, topK int) ([]Hit, error) {
	if topK <= 0 {
		topK = r.cfg.DefaultTopK
	}
	if strings.TrimSpace(query) == "" {
		return []Hit{}, nil
	}

	idx, err := r.cfg.Index()
	if err != nil {
		return nil, fmt.Errorf("rag: load index: %w", err)
	}

	pool := idx.List
	scope := chapterID
	if chapterID != "" {
		pool = idx.Chapters[chapterID]
		if len(pool) == 0 {
			if !r.cfg.GlobalFallback {
				return []Hit{}, nil
			}
			pool, scope = idx.List, ""
		}
	}

	var (
		qv      []float32
		qvReady bool
	)
	queryVector := func(ctx context.Context) []float32 {
		if !qvReady && r.cfg.Embedder != nil {
			qv = r.cfg.Embedder.EmbedQuery(ctx, query)
		}
		qvReady = true
		return qv
	}

	res, err := fallback.First(ctx,
		fallback.Strategy[[]Hit]{Name: ModeQdrant, Run: func(ctx context.Context) ([]Hit, error) {
			if r.cfg.Store == nil {
				return nil, fallback.ErrSkip
			}
			v := queryVector(ctx)
			if v == nil {
				return nil, fallback.ErrSkip
			}
			hits, err := r.cfg.Store.Search(ctx, v, scope, topK)
			if err != nil {
				r.log.Warn("rag: vector store search failed, falling back to local index",
					slog.String("error", err.Error()))
				return nil, err
			}
			if len(hits) == 0 {
				return nil, fallback.ErrSkip
			}
			return mergeUnembedded(hits, pool, query, topK), nil
		}},
		fallback.Strategy[[]Hit]{Name: ModeVector, Run: func(ctx context.Context) ([]Hit, error) {
			if !hasVectors(pool) {
				return nil, fallback.ErrSkip
			}
			v := queryVector(ctx)
			if v == nil {
				return nil, fallback.ErrSkip
			}
			hits := rankVector(pool, v, topK)
			if len(hits) == 0 {
				return nil, fallback.ErrSkip
			}
			return mergeUnembedded(hits, pool, query, topK), nil
		}},
		fallback.Strategy[[]Hit]{Name: ModeKeyword, Run: func(context.Context) ([]Hit, error) {
			return rankKeyword(pool, query, topK), nil
		}},
	)
	if err != nil {
		return nil, fmt.Errorf("rag: retrieve: %w", err)
	}

	hits := res.Value
	for i := range hits {
		hits[i].Citation = r.cite(hits[i].Chunk)
	}
	return hits, nil
}

func (r *Retriever) cite(c Chunk) Citation {
	page := c.Page
	if page == 0 {
		page = c.Sequence
	}
	cit := Citation{ChapterID: c.ChapterID, Page: page}
	if r.cfg.Links != nil {
		cit.URL = r.cfg.Links.Link(c.ChapterID, page)
	}
	return cit
}

func hasVectors(pool []Chunk) bool {
	for _, c := range pool {
		if c.Vector != nil {
			return true
		}
	}
	return false
}

// Terms splits a query into lowercase whitespace-separated terms.
func Terms(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

// KeywordScore sums the occurrences of each term in text, case-insensitive.
// Terms of six or more runes count double.
func KeywordScore(terms []string, text string) float64 {
	lower := strings.ToLower(text)
	var score float64
	for _, t := range terms {
		n := strings.Count(lower, t)
		if n == 0 {
			continue
		}
		w := 1.0
		if utf8.RuneCountInString(t) >= longTermRunes {
			w = 2
		}
		score += float64(n) * w
	}
	return score
}

func rankKeyword(pool []Chunk, query string, topK int) []Hit {
	terms := Terms(query)
	hits := []Hit{}
	for _, c := range pool {
		if s := KeywordScore(terms, c.Text); s > 0 {
			hits = append(hits, Hit{Chunk: withoutVector(c), Score: s, Mode: ModeKeyword})
		}
	}
	return topHits(hits, topK)
}

func rankVector(pool []Chunk, q []float32, topK int) []Hit {
	var hits []Hit
	for _, c := range pool {
		if c.Vector == nil {
			continue
		}
		if s := Cosine(q, c.Vector); s > 0 {
			hits = append(hits, Hit{Chunk: withoutVector(c), Score: s, Mode: ModeVector})
		}
	}
	return topHits(hits, topK)
}

// mergeUnembedded adds keyword hits for chunks that have no vector, so a
// chunk whose embedding batch failed stays reachable next to vector hits.
// A keyword score k is mapped to k/(k+1) to share the (0,1) range of
// cosine scores; the hit keeps ModeKeyword.
func mergeUnembedded(hits []Hit, pool []Chunk, query string, topK int) []Hit {
	seen := make(map[string]bool, len(hits))
	for _, h := range hits {
		seen[h.Chunk.ID] = true
	}
	var bare []Chunk
	for _, c := range pool {
		if c.Vector == nil && !seen[c.ID] {
			bare = append(bare, c)
		}
	}
	if len(bare) == 0 {
		return hits
	}
	for _, h := range rankKeyword(bare, query, topK) {
		h.Score = h.Score / (h.Score + 1)
		hits = append(hits, h)
	}
	return topHits(hits, topK)
}

func topHits(hits []Hit, topK int) []Hit {
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits
}

// withoutVector drops the embedding from a chunk returned to callers.
func withoutVector(c Chunk) Chunk {
	c.Vector = nil
	return c
}

// Cosine returns the cosine similarity of a and b, or 0 when the lengths
// differ or either vector is zero.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
