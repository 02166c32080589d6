package commands

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/54b3r/chapterdex/internal/config"
	"github.com/54b3r/chapterdex/internal/ingestion"
	"github.com/54b3r/chapterdex/internal/logging"
)

// NewCalibrateCmd constructs the `chapterdex calibrate` command, which
// overwrites a chapter's page offset from one observed page pair.
func NewCalibrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "calibrate <chapter-id> <printed-page> <pdf-page>",
		Short: "Set a chapter's page offset from an observed printed/PDF page pair",
		Long: `Overwrite the page offset of one chapter. Open the chapter PDF, pick any
page, and pass the page number printed on it together with its position in
the PDF (1-based). The offset is printed - pdf and replaces any detected one.

Example:
  chapterdex calibrate 9S-CH02 17 3`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.FromContext(cmd.Context())

			printed, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("calibrate: printed page %q is not a number", args[1])
			}
			pdfPage, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("calibrate: pdf page %q is not a number", args[2])
			}

			s, err := config.LoadSettings()
			if err != nil {
				return err
			}
			cat, fs, err := loadManifest(s)
			if err != nil {
				return fmt.Errorf("calibrate: %w", err)
			}

			rec, err := ingestion.Calibrate(cat, args[0], printed, pdfPage)
			if err != nil {
				return fmt.Errorf("calibrate: %w", err)
			}
			if err := fs.Save(cat); err != nil {
				return fmt.Errorf("calibrate: %w", err)
			}

			log.Info("calibrate: offset updated",
				slog.String("chapter_id", rec.ChapterID),
				slog.Int("offset", rec.Offset),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "%s offset = %d\n", rec.ChapterID, rec.Offset)
			return nil
		},
	}
}
