package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/54b3r/chapterdex/internal/catalog"
	"github.com/54b3r/chapterdex/internal/chunker"
	"github.com/54b3r/chapterdex/internal/metrics"
	"github.com/54b3r/chapterdex/internal/pdftext"
)

const defaultBatchSize = 8

// Builder rebuilds the chunk index from manifest records.
type Builder struct {
	// Root is the content root the record file paths are relative to.
	Root string
	// Pages extracts page text.
	Pages PageSource
	// Embedder embeds chunk text. Nil builds a keyword-only index.
	Embedder Embedder
	// BatchSize is the number of chunks per embedding request. Default 8.
	BatchSize int
	// MaxChars bounds chunk length. Default chunker.DefaultMaxChars.
	MaxChars int
	// Workers is the number of chapters processed concurrently. Default 1.
	Workers int
	// Sink mirrors vectored chunks after the build. May be nil.
	Sink VectorStore
	// Metrics records per-chapter outcomes. May be nil.
	Metrics *metrics.Pipeline
	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// BuildReport summarises a build.
type BuildReport struct {
	Chapters int
	Chunks   int
	Vectors  int
	// Missing lists chapters whose source file does not exist.
	Missing []string
	// Failed lists chapters whose PDF could not be parsed.
	Failed []string
	// Mirrored is the number of chunks written to the sink.
	Mirrored int
	// SinkErr is the sink failure, if any. It does not fail the build.
	SinkErr error
}

type chapterResult struct {
	chunks  []Chunk
	missing bool
	err     error
}

// Build chunks and embeds every record in order and returns the new index.
// Missing and unreadable chapters are skipped and reported; only context
// cancellation or an unexpected extraction error aborts the build.
func (b *Builder) Build(ctx context.Context, records []catalog.ChapterRecord) (*Index, *BuildReport, error) {
	log := b.Logger
	if log == nil {
		log = slog.Default()
	}
	results := make([]chapterResult, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(b.Workers, 1))
	for i, rec := range records {
		g.Go(func() error {
			res := b.buildChapter(gctx, rec)
			var perr *pdftext.ParseError
			if res.err != nil && !errors.As(res.err, &perr) {
				return fmt.Errorf("rag: chapter %s: %w", rec.ChapterID, res.err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	report := &BuildReport{}
	var all []Chunk
	for i, res := range results {
		rec := records[i]
		switch {
		case res.missing:
			log.Warn("index: source file missing, chapter skipped",
				slog.String("chapter_id", rec.ChapterID), slog.String("file", rec.File))
			report.Missing = append(report.Missing, rec.ChapterID)
			b.Metrics.Chapter(metrics.OutcomeSkipped)
		case res.err != nil:
			log.Warn("index: cannot parse chapter PDF, chapter skipped",
				slog.String("chapter_id", rec.ChapterID), slog.String("error", res.err.Error()))
			report.Failed = append(report.Failed, rec.ChapterID)
			b.Metrics.Chapter(metrics.OutcomeFailed)
		default:
			report.Chapters++
			all = append(all, res.chunks...)
			b.Metrics.Chapter(metrics.OutcomeOK)
		}
	}

	idx := NewIndex(all)
	report.Chunks = len(idx.List)
	report.Vectors = idx.VectorCount()
	b.Metrics.Chunks(ModeVector, report.Vectors)
	b.Metrics.Chunks(ModeKeyword, report.Chunks-report.Vectors)

	if b.Sink != nil {
		report.Mirrored, report.SinkErr = b.mirror(ctx, idx)
		if report.SinkErr != nil {
			log.Warn("index: vector store mirror failed, local index is unaffected",
				slog.String("error", report.SinkErr.Error()))
		}
	}
	return idx, report, nil
}

func (b *Builder) buildChapter(ctx context.Context, rec catalog.ChapterRecord) chapterResult {
	path := filepath.Join(b.Root, filepath.FromSlash(rec.File))
	if _, err := os.Stat(path); err != nil {
		return chapterResult{missing: true}
	}
	pages, err := b.Pages.Pages(ctx, path)
	if err != nil {
		return chapterResult{err: err}
	}

	maxChars := b.MaxChars
	if maxChars <= 0 {
		maxChars = chunker.DefaultMaxChars
	}
	pieces := chunker.ChunkPages(pages, maxChars)
	vectors := b.embed(ctx, pieces)

	chunks := make([]Chunk, len(pieces))
	for i, p := range pieces {
		seq := i + 1
		chunks[i] = Chunk{
			ID:        fmt.Sprintf("%s:%d", rec.ChapterID, seq),
			ChapterID: rec.ChapterID,
			Sequence:  seq,
			Page:      p.Page,
			Text:      p.Text,
			Vector:    vectors[i],
		}
	}
	return chapterResult{chunks: chunks}
}

func (b *Builder) embed(ctx context.Context, pieces []chunker.Piece) [][]float32 {
	out := make([][]float32, len(pieces))
	if b.Embedder == nil {
		return out
	}
	size := b.BatchSize
	if size <= 0 {
		size = defaultBatchSize
	}
	for start := 0; start < len(pieces); start += size {
		end := min(start+size, len(pieces))
		texts := make([]string, 0, end-start)
		for _, p := range pieces[start:end] {
			texts = append(texts, p.Text)
		}
		vecs := b.Embedder.EmbedBatch(ctx, texts)
		copy(out[start:end], vecs)
	}
	return out
}

func (b *Builder) mirror(ctx context.Context, idx *Index) (int, error) {
	if err := b.Sink.Reset(ctx); err != nil {
		return 0, err
	}
	return b.Sink.Upsert(ctx, idx.List)
}

// Log writes the end-of-build summary.
func (r *BuildReport) Log(log *slog.Logger) {
	log.Info("index: build complete",
		slog.Int("chapters", r.Chapters),
		slog.Int("chunks", r.Chunks),
		slog.Int("vectors", r.Vectors),
		slog.Int("missing", len(r.Missing)),
		slog.Int("failed", len(r.Failed)),
		slog.Int("mirrored", r.Mirrored),
	)
	if r.Chunks > 0 && r.Vectors == 0 {
		log.Info("index: no vectors written, retrieval will use keyword scoring")
	}
}
