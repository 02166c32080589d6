package embedder

import (
	"errors"
	"fmt"
	"os"
	"strconv"
)

// ErrNoCredential is returned by [NewFromEnv] when the selected backend
// needs an API key and none is configured. Callers treat it as the
// keyword-only path, not a failure.
var ErrNoCredential = errors.New("embedder: no embedding credential configured")

// Default embedding models per backend.
const (
	defaultOllamaModel = "nomic-embed-text"
	defaultOpenAIModel = "text-embedding-3-small"

	// defaultOllamaDimensions is the output dimension of nomic-embed-text.
	defaultOllamaDimensions = 768
	// defaultOpenAIDimensions is the output dimension of text-embedding-3-small.
	defaultOpenAIDimensions = 1536
)

// Backend returns the configured embedding backend name
// (EMBEDDING_PROVIDER, default "openai").
func Backend() string {
	return getEnvOrDefault("EMBEDDING_PROVIDER", "openai")
}

// DefaultDimensions returns the vector size for backend. Callers that
// pre-create a vector collection (Qdrant) use this rather than a literal.
// EMBEDDING_DIMENSIONS always takes precedence when set.
func DefaultDimensions(backend string) int {
	if v := getEnvInt("EMBEDDING_DIMENSIONS", 0); v > 0 {
		return v
	}
	if backend == "ollama" {
		return defaultOllamaDimensions
	}
	return defaultOpenAIDimensions
}

// ModelName returns the embedding model that NewFromEnv would use for
// backend. It keys the embedding cache.
func ModelName(backend string) string {
	if backend == "ollama" {
		return getEnvOrDefault("EMBEDDING_MODEL", defaultOllamaModel)
	}
	return getEnvOrDefault("EMBEDDING_MODEL", defaultOpenAIModel)
}

// NewFromEnv constructs the backend selected by the environment.
//
// Resolution order:
//
//  1. EMBEDDING_PROVIDER: openai (default), azure, ollama
//  2. EMBEDDING_API_KEY: falls back to OPENAI_API_KEY / AZURE_OPENAI_API_KEY
//  3. EMBEDDING_MODEL: overrides the backend's default model
//  4. EMBEDDING_ENDPOINT: overrides the backend's default endpoint
//  5. EMBEDDING_DIMENSIONS: requested vector size (openai/azure only)
//
// A missing credential yields [ErrNoCredential].
func NewFromEnv() (Embedder, error) {
	backend := Backend()
	model := ModelName(backend)

	switch backend {
	case "ollama":
		host := getEnv("EMBEDDING_ENDPOINT")
		if host == "" {
			host = getEnvOrDefault("OLLAMA_HOST", "http://localhost:11434")
		}
		return NewOllamaEmbedder(&OllamaConfig{Host: host, Model: model}), nil

	case "openai":
		apiKey := firstEnv("EMBEDDING_API_KEY", "OPENAI_API_KEY")
		if apiKey == "" {
			return nil, ErrNoCredential
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    getEnvOrDefault("EMBEDDING_ENDPOINT", "https://api.openai.com/v1"),
			APIKey:     apiKey,
			Model:      model,
			Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", 0),
		}), nil

	case "azure":
		apiKey := firstEnv("EMBEDDING_API_KEY", "AZURE_OPENAI_API_KEY")
		if apiKey == "" {
			return nil, ErrNoCredential
		}
		endpoint := firstEnv("EMBEDDING_ENDPOINT", "AZURE_OPENAI_ENDPOINT")
		if endpoint == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    endpoint + "/openai",
			APIKey:     apiKey,
			Model:      model,
			Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", 0),
			Azure:      true,
			APIVersion: getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2025-04-01-preview"),
		}), nil

	default:
		return nil, fmt.Errorf("embedder: unknown backend %q (valid: openai, azure, ollama)", backend)
	}
}

func getEnv(key string) string {
	return os.Getenv(key)
}

// firstEnv returns the first non-empty value among keys.
func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvBool reports whether key is set to a true-ish value.
func getEnvBool(key string) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && b
}
