package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/chapterdex/internal/budget"
	"github.com/54b3r/chapterdex/internal/config"
	"github.com/54b3r/chapterdex/internal/logging"
	"github.com/54b3r/chapterdex/internal/rag"
)

// snippetBytes bounds the passage text printed per hit in text mode.
const snippetBytes = 240

// NewQueryCmd constructs the `chapterdex query` command, which runs one
// retrieval against the built index and prints the cited passages.
func NewQueryCmd() *cobra.Command {
	var chapterID string
	var topK int
	var asJSON bool
	var global bool

	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Retrieve passages for a question from the built index",
		Long: `Run one retrieval against the index written by build-index and print the
best passages with chapter and page citations.

Retrieval tries Qdrant first (when QDRANT_HOST is set and the query can be
embedded), then in-memory vector similarity, then keyword scoring.

Examples:
  chapterdex query "what is a saturated solution"
  chapterdex query --chapter 9S-CH02 -k 3 "separating mixtures"
  chapterdex query --json "rational numbers" | jq '.[0].citation'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			s, err := config.LoadSettings()
			if err != nil {
				return err
			}

			stack, err := buildRetrieval(ctx, s, s.PublicBaseURL, global, log)
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}
			defer stack.Close()

			hits, err := stack.Retriever.Retrieve(ctx, strings.Join(args, " "), chapterID, topK)
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(hits)
			}
			printHits(cmd.OutOrStdout(), hits)
			return nil
		},
	}

	cmd.Flags().StringVarP(&chapterID, "chapter", "c", "", "Restrict results to one chapter id (e.g. 9S-CH02)")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 5, "Number of passages to return")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print hits as JSON")
	cmd.Flags().BoolVar(&global, "global-fallback", false, "Search the whole index when the chapter has no chunks")

	return cmd
}

// printHits writes a human-readable hit list to w.
func printHits(w io.Writer, hits []rag.Hit) {
	if len(hits) == 0 {
		fmt.Fprintln(w, "no matching passages")
		return
	}
	for i, h := range hits {
		fmt.Fprintf(w, "%d. [%s p.%d] score=%.3f (%s)\n", i+1, h.Citation.ChapterID, h.Citation.Page, h.Score, h.Mode)
		if h.Citation.URL != "" {
			fmt.Fprintf(w, "   %s\n", h.Citation.URL)
		}
		snippet := budget.Truncate(h.Chunk.Text, snippetBytes)
		if snippet != h.Chunk.Text {
			snippet += "..."
		}
		fmt.Fprintf(w, "   %s\n\n", snippet)
	}
}
