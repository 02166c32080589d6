package embedder

import (
	"log/slog"
	"os"
	"strings"
)

// knownChatModelPrefixes identify chat/completion models that are not
// suitable for embedding.
var knownChatModelPrefixes = []string{
	"gpt-4",
	"gpt-3.5",
	"gpt-35",
	"o1",
	"o3",
	"llama3",
	"llama-3",
	"mistral",
	"mixtral",
	"gemma",
	"phi3",
	"claude",
	"deepseek",
	"qwen",
}

// looksLikeChatModel reports whether model resembles a chat model name
// rather than a dedicated embedding model.
func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	for _, prefix := range knownChatModelPrefixes {
		if strings.Contains(lower, prefix) {
			return true
		}
	}
	return false
}

// Preflight logs configuration problems that would silently reduce an index
// build to keyword-only retrieval or produce useless vectors. It never
// fails: every condition it reports has a working fallback.
func Preflight(log *slog.Logger) {
	if getEnvBool("EMBEDDING_DISABLED") {
		if os.Getenv("QDRANT_HOST") != "" {
			log.Warn("embedder: QDRANT_HOST is set but EMBEDDING_DISABLED=true; the vector store will stay empty")
		}
		return
	}

	backend := Backend()
	if backend != "ollama" && firstEnv("EMBEDDING_API_KEY", "OPENAI_API_KEY", "AZURE_OPENAI_API_KEY") == "" {
		log.Info("embedder: no embedding credential set, index will be keyword-only",
			slog.String("backend", backend),
			slog.String("hint", "set EMBEDDING_API_KEY or OPENAI_API_KEY to enable vectors"),
		)
	}

	if model := os.Getenv("EMBEDDING_MODEL"); model != "" && looksLikeChatModel(model) {
		log.Warn("embedder: EMBEDDING_MODEL looks like a chat model, not an embedding model",
			slog.String("model", model),
			slog.String("hint", "use a dedicated embedding model e.g. text-embedding-3-small, nomic-embed-text"),
		)
	}
}
