package commands

import (
	"fmt"
	"log/slog"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/54b3r/chapterdex/internal/config"
	"github.com/54b3r/chapterdex/internal/logging"
	"github.com/54b3r/chapterdex/internal/mcp"
	"github.com/54b3r/chapterdex/internal/version"
)

// NewMCPCmd constructs the `chapterdex mcp` command, which serves the
// retriever as MCP tools over stdio.
func NewMCPCmd() *cobra.Command {
	var global bool

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start an MCP tool server on stdio",
		Long: `Run chapterdex as an MCP (Model Context Protocol) server on stdio so LLM
agents can search the textbooks.

Tools:
  retrieve_passages   query, optional chapter_id and top_k
  list_chapters       optional grade and subject filters

Logs go to stderr; stdout carries the protocol.

Configure in an MCP client:
  {
    "mcpServers": {
      "chapterdex": {"command": "chapterdex", "args": ["mcp"]}
    }
  }`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			s, err := config.LoadSettings()
			if err != nil {
				return err
			}

			stack, err := buildRetrieval(ctx, s, s.PublicBaseURL, global, log)
			if err != nil {
				return fmt.Errorf("mcp: %w", err)
			}
			defer stack.Close()

			srv := mcp.NewServer("chapterdex", version.Version, stack.Retriever, stack.Catalog, log)

			log.Info("mcp: serving on stdio", slog.Int("chapters", stack.Catalog.Len()))
			if err := mcpserver.ServeStdio(srv); err != nil {
				return fmt.Errorf("mcp: server error: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&global, "global-fallback", false, "Search the whole index when the requested chapter has no chunks")

	return cmd
}
