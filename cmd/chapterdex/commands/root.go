// Package commands defines all Cobra CLI commands for the chapterdex binary.
package commands

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/54b3r/chapterdex/internal/audit"
	"github.com/54b3r/chapterdex/internal/config"
	"github.com/54b3r/chapterdex/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// envFiles holds the --env-file flag values.
var envFiles []string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "chapterdex",
		Short: "Index textbook chapter PDFs and retrieve cited passages",
		Long: `chapterdex turns a directory of textbook chapter PDFs into a chapter
manifest and a chunk index, and answers passage queries with chapter and
page citations.

Typical pipeline:
  chapterdex ingest        scan the content root into data/manifest.json
  chapterdex enrich        add anchors and page offsets (--llm for metadata)
  chapterdex build-index   chunk, embed and write data/rag-index.json
  chapterdex serve         HTTP retrieval API
  chapterdex mcp           MCP tool server on stdio

Settings come from the environment, a .env file and an optional YAML
config file (~/.chapterdex/config.yaml). Environment variables always win.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// .env first so YAML values never shadow it.
			if _, err := config.LoadDotEnv(log, envFiles...); err != nil {
				return err
			}

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// LOG_LEVEL / LOG_FORMAT may have come from either file.
			log = logging.New()
			runID := audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)
			log = log.With(slog.String("run_id", runID), slog.String("command", cmd.Name()))

			cmd.SetContext(logging.WithLogger(cmd.Context(), log))
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.chapterdex/config.yaml)")
	root.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "Path to .env file(s) to load (default: .env if present)")

	root.AddCommand(
		NewIngestCmd(),
		NewEnrichCmd(),
		NewCalibrateCmd(),
		NewBuildIndexCmd(),
		NewQueryCmd(),
		NewServeCmd(),
		NewMCPCmd(),
		NewVersionCmd(),
	)

	return root
}
