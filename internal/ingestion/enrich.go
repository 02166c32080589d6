package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/54b3r/chapterdex/internal/anchors"
	"github.com/54b3r/chapterdex/internal/catalog"
	"github.com/54b3r/chapterdex/internal/metrics"
	"github.com/54b3r/chapterdex/internal/offset"
)

// ErrUnknownChapter is returned by [Calibrate] for an id not in the catalog.
var ErrUnknownChapter = errors.New("ingestion: unknown chapter")

// PageSource extracts per-page text from a PDF. pdftext.Extractor
// satisfies it.
type PageSource interface {
	Pages(ctx context.Context, path string) ([]string, error)
}

// Enricher adds anchors and page offsets to catalog records.
type Enricher struct {
	// Root is the content root the record file paths are relative to.
	Root string
	// Pages extracts page text.
	Pages PageSource
	// Workers is the number of chapters processed concurrently. Default 1.
	Workers int
	// Metrics records per-chapter outcomes. May be nil.
	Metrics *metrics.Pipeline
	// Logger receives per-chapter failures. Defaults to slog.Default.
	Logger *slog.Logger
}

// ChapterFailure records a chapter that could not be enriched.
type ChapterFailure struct {
	ChapterID string
	File      string
	Err       error
}

// EnrichReport summarises an enrichment run.
type EnrichReport struct {
	// Enriched is the number of chapters whose PDF was read.
	Enriched int
	// Missing lists chapters whose source file does not exist.
	Missing []string
	// Failed lists chapters whose PDF could not be parsed.
	Failed []ChapterFailure
	// NoAnchors lists chapters with no anchors after the pass.
	NoAnchors []string
	// NoOffset lists chapters whose offset is still unknown (0).
	NoOffset []string
}

type enrichResult struct {
	rec     catalog.ChapterRecord
	source  string
	missing bool
	err     error
}

// Enrich scans every record's PDF, merging found anchors into the record
// and resolving its offset. Per-chapter failures are recorded in the report
// and never abort the run; only context cancellation does.
func (e *Enricher) Enrich(ctx context.Context, cat *catalog.Catalog) (*EnrichReport, error) {
	log := e.Logger
	if log == nil {
		log = slog.Default()
	}
	records := cat.Records()
	results := make([]enrichResult, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(e.Workers, 1))
	for i, rec := range records {
		g.Go(func() error {
			results[i] = e.enrichOne(gctx, rec)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &EnrichReport{}
	for _, res := range results {
		rec := res.rec
		switch {
		case res.missing:
			log.Warn("enrich: source file missing, chapter skipped",
				slog.String("chapter_id", rec.ChapterID), slog.String("file", rec.File))
			report.Missing = append(report.Missing, rec.ChapterID)
			e.Metrics.Enrich("heuristic", metrics.OutcomeSkipped)
		case res.err != nil:
			log.Warn("enrich: cannot read chapter PDF, chapter skipped",
				slog.String("chapter_id", rec.ChapterID), slog.String("file", rec.File),
				slog.String("error", res.err.Error()))
			report.Failed = append(report.Failed, ChapterFailure{ChapterID: rec.ChapterID, File: rec.File, Err: res.err})
			e.Metrics.Enrich("heuristic", metrics.OutcomeFailed)
		default:
			report.Enriched++
			cat.Upsert(rec)
			log.Debug("enrich: chapter enriched",
				slog.String("chapter_id", rec.ChapterID),
				slog.Int("anchors", len(rec.Anchors)),
				slog.Int("offset", rec.Offset),
				slog.String("offset_source", res.source))
			e.Metrics.Enrich("heuristic", metrics.OutcomeOK)
		}
		if len(rec.Anchors) == 0 {
			report.NoAnchors = append(report.NoAnchors, rec.ChapterID)
		}
		// A footer may legitimately resolve to 0; only chapters with no
		// source at all need calibrating.
		if res.source == offset.SourceNone || (res.source == "" && rec.Offset == 0) {
			report.NoOffset = append(report.NoOffset, rec.ChapterID)
		}
	}
	return report, nil
}

func (e *Enricher) enrichOne(ctx context.Context, rec catalog.ChapterRecord) enrichResult {
	path := filepath.Join(e.Root, filepath.FromSlash(rec.File))
	if _, err := os.Stat(path); err != nil {
		return enrichResult{rec: rec, missing: true}
	}
	pages, err := e.Pages.Pages(ctx, path)
	if err != nil {
		return enrichResult{rec: rec, err: err}
	}

	rec.Anchors = anchors.Merge(rec.Anchors, anchors.Scan(pages, rec.ChapterNo))
	res := offset.Resolve(ctx, rec, pages)
	rec.Offset = res.Offset
	return enrichResult{rec: rec, source: res.Source}
}

// Log writes the end-of-run enrichment summary.
func (r *EnrichReport) Log(log *slog.Logger) {
	log.Info("enrich: run complete",
		slog.Int("enriched", r.Enriched),
		slog.Int("missing", len(r.Missing)),
		slog.Int("failed", len(r.Failed)),
		slog.Int("no_anchors", len(r.NoAnchors)),
		slog.Int("no_offset", len(r.NoOffset)),
	)
	if len(r.NoAnchors) > 0 {
		log.Info("enrich: chapters without anchors", slog.Any("chapters", r.NoAnchors))
	}
	if len(r.NoOffset) > 0 {
		log.Info("enrich: chapters without a detected offset, use calibrate to set one",
			slog.Any("chapters", r.NoOffset))
	}
}

// Calibrate overwrites the offset of chapterID from an observed printed
// page and the physical PDF page it appears on.
func Calibrate(cat *catalog.Catalog, chapterID string, printed, pdfPage int) (catalog.ChapterRecord, error) {
	rec, ok := cat.Get(chapterID)
	if !ok {
		return catalog.ChapterRecord{}, fmt.Errorf("%w: %s", ErrUnknownChapter, chapterID)
	}
	if pdfPage < 1 {
		return catalog.ChapterRecord{}, fmt.Errorf("ingestion: pdf page must be >= 1, got %d", pdfPage)
	}
	rec.Offset = offset.Calibrate(printed, pdfPage)
	cat.Upsert(rec)
	return rec, nil
}
