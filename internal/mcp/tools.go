// Package mcp exposes the retriever to LLM agents as a Model Context
// Protocol tool server over stdio.
package mcp

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/54b3r/chapterdex/internal/catalog"
	"github.com/54b3r/chapterdex/internal/rag"
)

// Tool names.
const (
	ToolRetrievePassages = "retrieve_passages"
	ToolListChapters     = "list_chapters"
)

// maxTopK caps the top_k argument.
const maxTopK = 50

// Retriever answers passage queries. *rag.Retriever satisfies it.
type Retriever interface {
	Retrieve(ctx context.Context, query, chapterID string, topK int) ([]rag.Hit, error)
}

// NewServer builds an MCP server named name with both tools registered.
func NewServer(name, version string, ret Retriever, cat *catalog.Catalog, log *slog.Logger) *mcpserver.MCPServer {
	s := mcpserver.NewMCPServer(name, version)
	RegisterTools(s, NewHandlers(ret, cat, log))
	return s
}

// RegisterTools registers the retrieval tools with s.
func RegisterTools(s *mcpserver.MCPServer, h *Handlers) {
	s.AddTool(mcp.Tool{
		Name:        ToolRetrievePassages,
		Description: "Retrieve textbook passages relevant to a question, with chapter and page citations. Optionally scoped to one chapter.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Question or search terms",
				},
				"chapter_id": map[string]interface{}{
					"type":        "string",
					"description": "Restrict results to this chapter (e.g. 9S-CH02). Use list_chapters to discover ids.",
				},
				"top_k": map[string]interface{}{
					"type":        "number",
					"description": "Maximum number of passages to return (default: 5)",
					"default":     5,
				},
			},
			Required: []string{"query"},
		},
	}, h.RetrievePassages)

	s.AddTool(mcp.Tool{
		Name:        ToolListChapters,
		Description: "List the indexed chapters with grade, subject and title. Optionally filtered by grade or subject.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"grade": map[string]interface{}{
					"type":        "number",
					"description": "Only chapters of this grade",
				},
				"subject": map[string]interface{}{
					"type":        "string",
					"description": "Only chapters of this subject (Math, Science, English, Social Science)",
				},
			},
		},
	}, h.ListChapters)
}
