package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/54b3r/chapterdex/internal/catalog"
	"github.com/54b3r/chapterdex/internal/config"
	"github.com/54b3r/chapterdex/internal/ingestion"
	"github.com/54b3r/chapterdex/internal/logging"
)

// NewIngestCmd constructs the `chapterdex ingest` command, which scans the
// content root for chapter PDFs and merges them into the manifest.
func NewIngestCmd() *cobra.Command {
	var root string
	var prefixesPath string
	var grades []int

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Scan the content root and write the chapter manifest",
		Long: `Walk the content root for chapter PDFs named by the textbook convention
(4-letter book prefix, series digit, 2-digit chapter number) and merge the
chapters found into the manifest.

A re-scanned chapter replaces its manifest entry; chapters not found in this
scan are kept. Unknown prefixes are reported at the end of the run; extend
the built-in table with --prefixes.

Environment variables:
  CONTENT_ROOT     Directory of chapter PDFs (default: content)
  MANIFEST_PATH    Manifest location (default: data/manifest.json)
  INGEST_GRADES    Grades to keep (default: 8,9,10)
  PREFIXES_PATH    JSON prefix table layered over the defaults

Examples:
  chapterdex ingest
  chapterdex ingest --root ./books --grades 9,10
  chapterdex ingest --prefixes prefixes.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.FromContext(cmd.Context())

			s, err := config.LoadSettings()
			if err != nil {
				return err
			}
			if root == "" {
				root = s.ContentRoot
			}
			if prefixesPath == "" {
				prefixesPath = s.PrefixesPath
			}
			if !cmd.Flags().Changed("grades") {
				grades = s.Grades
			}

			table, err := ingestion.LoadPrefixTable(prefixesPath)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			report, err := ingestion.Scanner{Root: root, Prefixes: table, Grades: grades}.Scan()
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			report.Log(log)

			fs := catalog.FileStore{Path: s.ManifestPath}
			existing, err := fs.LoadOrEmpty()
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			merged := catalog.New(catalog.Merge(existing.Records(), report.Records))
			if err := fs.Save(merged); err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			log.Info("ingest complete",
				slog.String("manifest", s.ManifestPath),
				slog.Int("scanned", len(report.Records)),
				slog.Int("previous", existing.Len()),
				slog.Int("total", merged.Len()),
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&root, "root", "", "Content root to scan (default: $CONTENT_ROOT)")
	cmd.Flags().StringVar(&prefixesPath, "prefixes", "", "JSON prefix table layered over the built-in one")
	cmd.Flags().IntSliceVar(&grades, "grades", nil, "Grades to keep (default: $INGEST_GRADES)")

	return cmd
}
