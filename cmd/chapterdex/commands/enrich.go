package commands

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/chapterdex/internal/catalog"
	"github.com/54b3r/chapterdex/internal/config"
	"github.com/54b3r/chapterdex/internal/ingestion"
	"github.com/54b3r/chapterdex/internal/llmenrich"
	"github.com/54b3r/chapterdex/internal/logging"
	"github.com/54b3r/chapterdex/internal/metrics"
	"github.com/54b3r/chapterdex/internal/pdftext"
	"github.com/54b3r/chapterdex/internal/provider"
	"github.com/54b3r/chapterdex/internal/tracing"
)

// NewEnrichCmd constructs the `chapterdex enrich` command, which fills in
// anchors and page offsets from the PDF text and, with --llm, metadata from
// a chat model.
func NewEnrichCmd() *cobra.Command {
	var workers int
	var useLLM bool
	var objectivesPath string
	var routesOut string
	var metricsFile string

	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Add anchors and page offsets to the manifest (optionally LLM metadata)",
		Long: `Read every chapter PDF in the manifest, merge the structural anchors found
(exercises, examples, summaries, keywords) and resolve the printed-page
offset. Chapters whose offset cannot be detected are listed at the end of
the run; fix them with 'chapterdex calibrate'.

With --llm, a chat model additionally reads the first pages of each chapter
and proposes title, subject, anchors and tags. Given --objectives, it also
links chapters to learning objectives; the best chapter per objective is
written to --routes-out.

Model provider is selected via MODEL_PROVIDER (openai, azure, ollama, ark,
gemini). Langfuse tracing is enabled when LANGFUSE_PUBLIC_KEY and
LANGFUSE_SECRET_KEY are set.

Examples:
  chapterdex enrich
  chapterdex enrich --workers 4
  MODEL_PROVIDER=ollama chapterdex enrich --llm --objectives objectives.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			s, err := config.LoadSettings()
			if err != nil {
				return err
			}
			cat, fs, err := loadManifest(s)
			if err != nil {
				return fmt.Errorf("enrich: %w", err)
			}

			reg := prometheus.NewRegistry()
			m := metrics.NewPipeline(reg)
			pages := pdftext.Extractor{}

			heuristic := &ingestion.Enricher{
				Root:    s.ContentRoot,
				Pages:   pages,
				Workers: workers,
				Metrics: m,
				Logger:  log,
			}
			report, err := heuristic.Enrich(ctx, cat)
			if err != nil {
				return fmt.Errorf("enrich: %w", err)
			}
			report.Log(log)

			// Persist the heuristic pass before the slower model pass.
			if err := fs.Save(cat); err != nil {
				return fmt.Errorf("enrich: %w", err)
			}

			if useLLM {
				if err := runLLMEnrich(cmd, s, cat, fs, m, objectivesPath, routesOut, log); err != nil {
					return err
				}
			}

			if metricsFile != "" {
				if err := metrics.WriteTextfile(metricsFile, reg); err != nil {
					log.Warn("enrich: metrics textfile not written", slog.Any("error", err))
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&workers, "workers", "w", 1, "Chapters processed concurrently by the heuristic pass")
	cmd.Flags().BoolVar(&useLLM, "llm", false, "Run the chat model enrichment pass after the heuristic one")
	cmd.Flags().StringVar(&objectivesPath, "objectives", "", "JSON array of learning objectives to route (requires --llm)")
	cmd.Flags().StringVar(&routesOut, "routes-out", "data/objective-routes.json", "Where to write the objective routing table")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "Write pipeline metrics to this node-exporter textfile")

	return cmd
}

// runLLMEnrich runs the chat model pass and saves its results.
func runLLMEnrich(cmd *cobra.Command, s *config.Settings, cat *catalog.Catalog, fs catalog.FileStore,
	m *metrics.Pipeline, objectivesPath, routesOut string, log *slog.Logger) error {
	ctx := cmd.Context()

	flush := tracing.Setup(tracing.ConfigFromEnv(), log)
	defer flush()

	providerCfg := provider.ConfigFromEnv()
	chatModel, err := provider.New(ctx, providerCfg)
	if err != nil {
		return fmt.Errorf("enrich: failed to initialise model provider: %w", err)
	}
	log.Info("provider initialised",
		slog.String("provider", string(providerCfg.Backend)),
		slog.String("model", providerCfg.ModelName()),
	)

	var objectives []llmenrich.Objective
	if objectivesPath != "" {
		objectives, err = llmenrich.LoadObjectives(objectivesPath)
		if err != nil {
			return fmt.Errorf("enrich: %w", err)
		}
		log.Info("objectives loaded", slog.Int("count", len(objectives)))
	}

	enricher, err := llmenrich.New(llmenrich.Config{
		ChatModel:    chatModel,
		Pages:        pdftext.Extractor{},
		Root:         s.ContentRoot,
		PreviewPages: s.PreviewPages,
		Temperature:  providerCfg.Tuning.Temperature,
		Metrics:      m,
	})
	if err != nil {
		return fmt.Errorf("enrich: %w", err)
	}

	report, runErr := enricher.Enrich(ctx, cat, objectives)
	// Save whatever was merged, even when the run was interrupted.
	if err := fs.Save(cat); err != nil {
		return fmt.Errorf("enrich: %w", err)
	}
	if runErr != nil {
		return fmt.Errorf("enrich: llm pass interrupted: %w", runErr)
	}

	log.Info("enrich: llm pass complete",
		slog.Int("enriched", report.Enriched),
		slog.Int("unparsed", len(report.Unparsed)),
		slog.Int("missing", len(report.Missing)),
		slog.Int("failed", len(report.Failed)),
		slog.Int("routed_objectives", len(report.Routes)),
	)
	if len(report.Unparsed) > 0 {
		log.Warn("enrich: chapters with unparseable model replies", slog.Any("chapters", report.Unparsed))
	}
	if len(report.Failed) > 0 {
		log.Warn("enrich: chapters whose model call failed", slog.Any("chapters", report.Failed))
	}

	if len(objectives) > 0 {
		if err := report.Routes.Save(routesOut); err != nil {
			return fmt.Errorf("enrich: %w", err)
		}
		log.Info("enrich: routing table written", slog.String("path", routesOut))
	}
	return nil
}
