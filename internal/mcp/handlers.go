package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/54b3r/chapterdex/internal/catalog"
	"github.com/54b3r/chapterdex/internal/rag"
)

// Handlers holds the dependencies of the tool handlers.
type Handlers struct {
	retriever Retriever
	catalog   *catalog.Catalog
	log       *slog.Logger
}

// NewHandlers constructs Handlers. cat may be nil.
func NewHandlers(ret Retriever, cat *catalog.Catalog, log *slog.Logger) *Handlers {
	if log == nil {
		log = slog.Default()
	}
	return &Handlers{retriever: ret, catalog: cat, log: log}
}

// passage is the tool-facing shape of a hit.
type passage struct {
	ChapterID string  `json:"chapter_id"`
	Page      int     `json:"page"`
	Text      string  `json:"text"`
	Score     float64 `json:"score"`
	Mode      string  `json:"mode"`
	URL       string  `json:"url,omitempty"`
}

type chapter struct {
	ChapterID string `json:"chapter_id"`
	Grade     int    `json:"grade"`
	Subject   string `json:"subject"`
	ChapterNo int    `json:"chapter_no"`
	Title     string `json:"title"`
}

// RetrievePassages handles the retrieve_passages tool.
func (h *Handlers) RetrievePassages(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil || strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("query argument is required and must be a non-empty string"), nil
	}
	chapterID := strings.TrimSpace(request.GetString("chapter_id", ""))
	topK := request.GetInt("top_k", 0)
	if topK < 0 {
		return mcp.NewToolResultError("top_k must be positive"), nil
	}
	topK = min(topK, maxTopK)

	hits, err := h.retriever.Retrieve(ctx, query, chapterID, topK)
	if err != nil {
		h.log.Error("mcp: retrieve failed", slog.String("chapter_id", chapterID), slog.Any("error", err))
		if errors.Is(err, rag.ErrIndexNotFound) {
			return mcp.NewToolResultError("the index has not been built; run `chapterdex build-index`"), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("retrieve failed: %v", err)), nil
	}

	out := make([]passage, 0, len(hits))
	for _, hit := range hits {
		out = append(out, passage{
			ChapterID: hit.Citation.ChapterID,
			Page:      hit.Citation.Page,
			Text:      hit.Chunk.Text,
			Score:     hit.Score,
			Mode:      hit.Mode,
			URL:       hit.Citation.URL,
		})
	}
	return jsonResult(map[string]any{"query": query, "passages": out})
}

// ListChapters handles the list_chapters tool.
func (h *Handlers) ListChapters(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	grade := request.GetInt("grade", 0)
	subject := request.GetString("subject", "")
	if subject != "" {
		norm, ok := catalog.NormalizeSubject(subject)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("unknown subject %q", subject)), nil
		}
		subject = norm
	}

	out := []chapter{}
	if h.catalog != nil {
		for _, rec := range h.catalog.Records() {
			if grade != 0 && rec.Grade != grade {
				continue
			}
			if subject != "" && rec.Subject != subject {
				continue
			}
			out = append(out, chapter{
				ChapterID: rec.ChapterID,
				Grade:     rec.Grade,
				Subject:   rec.Subject,
				ChapterNo: rec.ChapterNo,
				Title:     rec.Title,
			})
		}
	}
	return jsonResult(map[string]any{"chapters": out})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
