package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Settings are the typed pipeline settings, read from the environment after
// the YAML and .env layers have been applied.
type Settings struct {
	ContentRoot  string `envconfig:"CONTENT_ROOT" default:"content"`
	ManifestPath string `envconfig:"MANIFEST_PATH" default:"data/manifest.json"`
	IndexPath    string `envconfig:"RAG_INDEX_PATH" default:"data/rag-index.json"`
	PrefixesPath string `envconfig:"PREFIXES_PATH"`
	Grades       []int  `envconfig:"INGEST_GRADES" default:"8,9,10"`
	MaxChars     int    `envconfig:"RAG_MAX_CHARS" default:"1500"`

	EmbeddingDisabled  bool    `envconfig:"EMBEDDING_DISABLED" default:"false"`
	EmbeddingBatchSize int     `envconfig:"EMBEDDING_BATCH_SIZE" default:"8"`
	EmbeddingRPS       float64 `envconfig:"EMBEDDING_RPS" default:"0"`
	EmbeddingCacheDB   string  `envconfig:"EMBEDDING_CACHE_DB"`

	PreviewPages int `envconfig:"ENRICH_PREVIEW_PAGES" default:"3"`

	Host          string `envconfig:"CHAPTERDEX_HOST" default:"127.0.0.1"`
	Port          int    `envconfig:"CHAPTERDEX_PORT" default:"8080"`
	PublicBaseURL string `envconfig:"PUBLIC_BASE_URL"`
	// RetrieveRPS is the per-client request rate on the retrieve endpoint.
	RetrieveRPS   float64 `envconfig:"RETRIEVE_RPS" default:"10"`
	RetrieveBurst int     `envconfig:"RETRIEVE_BURST" default:"20"`

	QdrantHost       string `envconfig:"QDRANT_HOST"`
	QdrantPort       int    `envconfig:"QDRANT_PORT" default:"6334"`
	QdrantCollection string `envconfig:"QDRANT_COLLECTION" default:"chapterdex"`
	QdrantAPIKey     string `envconfig:"QDRANT_API_KEY"`
	QdrantTLS        bool   `envconfig:"QDRANT_TLS" default:"false"`
}

// LoadSettings reads [Settings] from the environment.
func LoadSettings() (*Settings, error) {
	var s Settings
	if err := envconfig.Process("", &s); err != nil {
		return nil, fmt.Errorf("config: invalid settings: %w", err)
	}
	if s.MaxChars <= 0 {
		return nil, fmt.Errorf("config: RAG_MAX_CHARS must be positive, got %d", s.MaxChars)
	}
	if s.EmbeddingBatchSize <= 0 {
		return nil, fmt.Errorf("config: EMBEDDING_BATCH_SIZE must be positive, got %d", s.EmbeddingBatchSize)
	}
	return &s, nil
}

// QdrantEnabled reports whether a Qdrant host is configured.
func (s *Settings) QdrantEnabled() bool {
	return s.QdrantHost != ""
}

// Addr returns the server listen address.
func (s *Settings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
