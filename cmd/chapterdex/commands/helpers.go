package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/54b3r/chapterdex/internal/catalog"
	"github.com/54b3r/chapterdex/internal/config"
	"github.com/54b3r/chapterdex/internal/embedder"
	"github.com/54b3r/chapterdex/internal/metrics"
	"github.com/54b3r/chapterdex/internal/rag"
	"github.com/54b3r/chapterdex/internal/store"
)

// loadManifest reads the manifest named by s. A missing manifest is fatal
// for every command except ingest.
func loadManifest(s *config.Settings) (*catalog.Catalog, catalog.FileStore, error) {
	fs := catalog.FileStore{Path: s.ManifestPath}
	cat, err := fs.Load()
	if errors.Is(err, catalog.ErrNotFound) {
		return nil, fs, fmt.Errorf("%w (run `chapterdex ingest` first)", err)
	}
	return cat, fs, err
}

// newEmbedClient wires the embedding backend, the optional SQLite vector
// cache and rate limiting into an embedder.Client. The returned close
// function releases the cache, which is also returned (nil when unused).
// A missing credential is not an error: the client simply produces no
// vectors.
func newEmbedClient(s *config.Settings, m *metrics.Pipeline, log *slog.Logger) (*embedder.Client, *store.EmbeddingCache, func(), error) {
	embedder.Preflight(log)

	cfg := embedder.ClientConfig{
		Disabled:          s.EmbeddingDisabled,
		BatchSize:         s.EmbeddingBatchSize,
		RequestsPerSecond: s.EmbeddingRPS,
		Metrics:           m,
		Logger:            log,
	}
	closeFn := func() {}
	var cache *store.EmbeddingCache

	if !s.EmbeddingDisabled {
		backend, err := embedder.NewFromEnv()
		switch {
		case errors.Is(err, embedder.ErrNoCredential):
			// keyword-only
		case err != nil:
			return nil, nil, closeFn, err
		default:
			cfg.Backend = backend
			cfg.Model = embedder.ModelName(embedder.Backend())
		}
	}

	if s.EmbeddingCacheDB != "" && cfg.Backend != nil {
		var err error
		cache, err = store.Open(s.EmbeddingCacheDB)
		if err != nil {
			return nil, nil, closeFn, err
		}
		cfg.Cache = cache
		closeFn = func() {
			if err := cache.Close(); err != nil {
				log.Warn("embedding cache close failed", slog.Any("error", err))
			}
		}
		log.Info("embedding cache opened", slog.String("path", s.EmbeddingCacheDB))
	}

	return embedder.NewClient(cfg), cache, closeFn, nil
}

// newQdrantStore connects to Qdrant when QDRANT_HOST is set. It returns a
// nil store otherwise.
func newQdrantStore(s *config.Settings, log *slog.Logger) (*rag.QdrantStore, error) {
	if !s.QdrantEnabled() {
		return nil, nil
	}
	qs, err := rag.NewQdrantStore(rag.QdrantConfig{
		Host:       s.QdrantHost,
		Port:       s.QdrantPort,
		Collection: s.QdrantCollection,
		APIKey:     s.QdrantAPIKey,
		UseTLS:     s.QdrantTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", s.QdrantHost, s.QdrantPort, err)
	}
	log.Info("qdrant store ready",
		slog.String("host", s.QdrantHost),
		slog.Int("port", s.QdrantPort),
		slog.String("collection", s.QdrantCollection),
	)
	return qs, nil
}

// retrievalStack is the read-side wiring shared by query, serve and mcp.
type retrievalStack struct {
	Catalog   *catalog.Catalog
	Loader    func() (*rag.Index, error)
	Retriever *rag.Retriever
	Qdrant    *rag.QdrantStore
	Cache     *store.EmbeddingCache
	close     []func()
}

// Close releases every resource the stack opened.
func (r *retrievalStack) Close() {
	for i := len(r.close) - 1; i >= 0; i-- {
		r.close[i]()
	}
}

// buildRetrieval assembles the retriever over the index at s.IndexPath.
// baseURL is the public server address used in citation links; empty
// yields citations without URLs.
func buildRetrieval(ctx context.Context, s *config.Settings, baseURL string, globalFallback bool, log *slog.Logger) (*retrievalStack, error) {
	cat, _, err := loadManifest(s)
	if err != nil {
		return nil, err
	}
	stack := &retrievalStack{Catalog: cat, Loader: rag.NewLoader(s.IndexPath)}

	client, cache, closeEmb, err := newEmbedClient(s, nil, log)
	if err != nil {
		return nil, err
	}
	stack.Cache = cache
	stack.close = append(stack.close, closeEmb)

	cfg := rag.RetrieverConfig{
		Index:          stack.Loader,
		GlobalFallback: globalFallback,
		Logger:         log,
	}
	if client.Enabled() {
		cfg.Embedder = client
	}
	if baseURL != "" {
		cfg.Links = rag.NewFileLinker(strings.TrimRight(baseURL, "/"), cat)
	}

	qs, err := newQdrantStore(s, log)
	if err != nil {
		// Retrieval still works from the local index.
		log.Warn("qdrant unavailable, using local index only", slog.Any("error", err))
	} else if qs != nil {
		if pingErr := qs.Ping(ctx); pingErr != nil {
			log.Warn("qdrant health check failed, it will be retried per query", slog.Any("error", pingErr))
		}
		cfg.Store = qs
		stack.Qdrant = qs
		stack.close = append(stack.close, func() { _ = qs.Close() })
	}

	ret, err := rag.NewRetriever(cfg)
	if err != nil {
		stack.Close()
		return nil, err
	}
	stack.Retriever = ret
	return stack, nil
}
