package rag

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

const upsertBatchSize = 64

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// VectorSize is the dimensionality of the stored embeddings. Zero means
	// the size of the first vector upserted after a reset.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore implements VectorStore backed by a Qdrant instance.
type QdrantStore struct {
	client *qdrant.Client
	cfg    QdrantConfig
}

// NewQdrantStore creates a client for the configured instance. No request
// is made until the store is used.
func NewQdrantStore(cfg QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("qdrant: collection name is required")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}
	return &QdrantStore{client: client, cfg: cfg}, nil
}

// PointID maps a chunk id to a stable Qdrant point id.
func PointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(chunkID)).String()
}

// Reset drops the collection. It is recreated by the next Upsert.
func (s *QdrantStore) Reset(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if !exists {
		return nil
	}
	if err := s.client.DeleteCollection(ctx, s.cfg.Collection); err != nil {
		return fmt.Errorf("qdrant: failed to delete collection %q: %w", s.cfg.Collection, err)
	}
	return nil
}

// ensureCollection creates the collection if it does not already exist.
func (s *QdrantStore) ensureCollection(ctx context.Context, size uint64) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     size,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", s.cfg.Collection, err)
	}
	return nil
}

// Upsert stores every chunk that carries a vector. Chunks without one are
// skipped.
func (s *QdrantStore) Upsert(ctx context.Context, chunks []Chunk) (int, error) {
	points := make([]*qdrant.PointStruct, 0, len(chunks))
	size := s.cfg.VectorSize
	for _, c := range chunks {
		if c.Vector == nil {
			continue
		}
		if size == 0 {
			size = uint64(len(c.Vector))
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(PointID(c.ID)),
			Vectors: qdrant.NewVectors(c.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				"chunk_id":   c.ID,
				"chapter_id": c.ChapterID,
				"sequence":   int64(c.Sequence),
				"page":       int64(c.Page),
				"text":       c.Text,
			}),
		})
	}
	if len(points) == 0 {
		return 0, nil
	}
	if err := s.ensureCollection(ctx, size); err != nil {
		return 0, err
	}

	wait := true
	for start := 0; start < len(points); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(points))
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.cfg.Collection,
			Wait:           &wait,
			Points:         points[start:end],
		})
		if err != nil {
			return start, fmt.Errorf("qdrant: upsert failed: %w", err)
		}
	}
	return len(points), nil
}

// Search performs a cosine similarity search and returns the top-k results,
// restricted to chapterID when it is non-empty.
func (s *QdrantStore) Search(ctx context.Context, vector []float32, chapterID string, topK int) ([]Hit, error) {
	limit := uint64(topK)
	req := &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if chapterID != "" {
		req.Filter = &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("chapter_id", chapterID)},
		}
	}

	results, err := s.client.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		var c Chunk
		if p := r.Payload; p != nil {
			c.ID = p["chunk_id"].GetStringValue()
			c.ChapterID = p["chapter_id"].GetStringValue()
			c.Sequence = int(p["sequence"].GetIntegerValue())
			c.Page = int(p["page"].GetIntegerValue())
			c.Text = p["text"].GetStringValue()
		}
		hits = append(hits, Hit{Chunk: c, Score: float64(r.Score), Mode: ModeQdrant})
	}
	return hits, nil
}

// Ping checks that the Qdrant server is reachable.
func (s *QdrantStore) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant: health check failed: %w", err)
	}
	return nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}
