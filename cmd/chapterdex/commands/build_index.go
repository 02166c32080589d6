package commands

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/chapterdex/internal/config"
	"github.com/54b3r/chapterdex/internal/logging"
	"github.com/54b3r/chapterdex/internal/metrics"
	"github.com/54b3r/chapterdex/internal/pdftext"
	"github.com/54b3r/chapterdex/internal/rag"
)

// NewBuildIndexCmd constructs the `chapterdex build-index` command, which
// rebuilds the chunk index from the manifest and the source PDFs.
func NewBuildIndexCmd() *cobra.Command {
	var workers int
	var metricsFile string
	var noMirror bool

	cmd := &cobra.Command{
		Use:   "build-index",
		Short: "Chunk and embed every chapter into the retrieval index",
		Long: `Rebuild the retrieval index from scratch: extract each chapter's page text,
split it into chunks of at most RAG_MAX_CHARS characters, embed them in
batches and write the index atomically to RAG_INDEX_PATH.

Embedding is optional. Without a credential (or with EMBEDDING_DISABLED=true)
the index is keyword-only. EMBEDDING_CACHE_DB enables a SQLite vector cache
so unchanged chunks are not re-embedded on rebuild.

When QDRANT_HOST is set the vectored chunks are also mirrored into the
QDRANT_COLLECTION collection, which is recreated on every build. A mirror
failure is logged and does not fail the build.

Examples:
  chapterdex build-index
  chapterdex build-index --workers 4 --metrics-file /var/lib/node_exporter/chapterdex.prom
  EMBEDDING_DISABLED=true chapterdex build-index`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			s, err := config.LoadSettings()
			if err != nil {
				return err
			}
			cat, _, err := loadManifest(s)
			if err != nil {
				return fmt.Errorf("build-index: %w", err)
			}

			reg := prometheus.NewRegistry()
			m := metrics.NewPipeline(reg)

			client, _, closeEmb, err := newEmbedClient(s, m, log)
			if err != nil {
				return fmt.Errorf("build-index: %w", err)
			}
			defer closeEmb()

			builder := &rag.Builder{
				Root:      s.ContentRoot,
				Pages:     pdftext.Extractor{},
				Embedder:  client,
				BatchSize: s.EmbeddingBatchSize,
				MaxChars:  s.MaxChars,
				Workers:   workers,
				Metrics:   m,
				Logger:    log,
			}

			if !noMirror && client.Enabled() {
				qs, err := newQdrantStore(s, log)
				if err != nil {
					log.Warn("build-index: qdrant mirror disabled", slog.Any("error", err))
				} else if qs != nil {
					defer qs.Close()
					builder.Sink = qs
				}
			}

			idx, report, err := builder.Build(ctx, cat.Records())
			if err != nil {
				return fmt.Errorf("build-index: %w", err)
			}
			report.Log(log)

			if err := idx.Save(s.IndexPath); err != nil {
				return fmt.Errorf("build-index: %w", err)
			}
			log.Info("build-index: index written", slog.String("path", s.IndexPath), slog.Int("chunks", len(idx.List)))

			if metricsFile != "" {
				if err := metrics.WriteTextfile(metricsFile, reg); err != nil {
					log.Warn("build-index: metrics textfile not written", slog.Any("error", err))
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&workers, "workers", "w", 1, "Chapters processed concurrently")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "Write pipeline metrics to this node-exporter textfile")
	cmd.Flags().BoolVar(&noMirror, "no-mirror", false, "Skip the Qdrant mirror even when QDRANT_HOST is set")

	return cmd
}
