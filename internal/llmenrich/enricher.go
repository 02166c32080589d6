// Package llmenrich backfills chapter metadata with a chat model. For each
// chapter it sends a short preview and the matching learning objectives,
// decodes the model's JSON reply tolerantly and merges what it can into
// the catalog. The pass is best-effort: a chapter that fails is logged and
// skipped, never fatal.
package llmenrich

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/chapterdex/internal/budget"
	"github.com/54b3r/chapterdex/internal/catalog"
	"github.com/54b3r/chapterdex/internal/jsonrepair"
	"github.com/54b3r/chapterdex/internal/logging"
	"github.com/54b3r/chapterdex/internal/metrics"
)

const (
	// DefaultPreviewPages is the number of leading pages sent per chapter.
	DefaultPreviewPages = 3

	// previewPageChars caps the text taken from each preview page.
	previewPageChars = 1200

	defaultTemperature float32 = 0.2

	stage = "llm"
)

const systemPrompt = `You index school textbook chapters. Given the opening pages of one
chapter and a list of candidate learning objectives, reply with ONLY a JSON
object of this shape:

{
  "title": "chapter title as printed",
  "subject": "Math | Science | English | Social Science",
  "anchors": [{"type": "exercise|example|exercises-block|intext|summary|keywords", "code": "2.1", "page": 3}],
  "tags": ["short topic label"],
  "objectives": [{"id": "objective id from the list", "confidence": 0.0}]
}

Rules:
- Use an empty string or empty list for anything you cannot see in the text.
- Anchor pages are 1-based positions within the preview.
- Only list objectives from the candidates, with confidence between 0 and 1.
- Give at most 8 tags.`

// PageSource extracts per-page text from a PDF. pdftext.Extractor
// satisfies it; set its MaxPages to the preview size.
type PageSource interface {
	Pages(ctx context.Context, path string) ([]string, error)
}

// ObjectiveMatch is one objective the model linked to the chapter.
type ObjectiveMatch struct {
	ID         string  `json:"id"`
	Confidence float64 `json:"confidence"`
}

// Result is the decoded model reply. The zero value is the neutral result.
type Result struct {
	Title      string           `json:"title"`
	Subject    string           `json:"subject"`
	Anchors    []catalog.Anchor `json:"anchors"`
	Tags       []string         `json:"tags"`
	Objectives []ObjectiveMatch `json:"objectives"`
}

// Config holds the dependencies of an [Enricher].
type Config struct {
	// ChatModel is the LLM backend constructed by the provider factory.
	ChatModel model.BaseChatModel
	// Pages extracts preview text.
	Pages PageSource
	// Root is the content root the record file paths are relative to.
	Root string
	// PreviewPages is the number of leading pages sent. Default 3.
	PreviewPages int
	// MaxContextTokens bounds the estimated prompt size. Defaults to
	// budget.DefaultMaxContextTokens.
	MaxContextTokens int
	// Temperature defaults to 0.2.
	Temperature float32
	// Metrics records per-chapter outcomes. May be nil.
	Metrics *metrics.Pipeline
}

// Enricher runs the LLM enrichment pass.
type Enricher struct {
	cfg Config
}

// Report summarises an enrichment pass.
type Report struct {
	// Enriched counts chapters whose reply was merged.
	Enriched int
	// Unparsed lists chapters whose reply could not be decoded.
	Unparsed []string
	// Missing lists chapters whose source file does not exist.
	Missing []string
	// Failed lists chapters whose PDF or model call failed.
	Failed []string
	// Routes is the objective routing table built over the run.
	Routes RoutingTable
}

// New validates cfg and returns an Enricher.
func New(cfg Config) (*Enricher, error) {
	if cfg.ChatModel == nil {
		return nil, fmt.Errorf("llmenrich: ChatModel must not be nil")
	}
	if cfg.Pages == nil {
		return nil, fmt.Errorf("llmenrich: Pages must not be nil")
	}
	if cfg.PreviewPages <= 0 {
		cfg.PreviewPages = DefaultPreviewPages
	}
	if cfg.MaxContextTokens <= 0 {
		cfg.MaxContextTokens = budget.DefaultMaxContextTokens
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = defaultTemperature
	}
	return &Enricher{cfg: cfg}, nil
}

// Enrich runs every catalog record through the model in order. Only
// context cancellation stops the run early.
func (e *Enricher) Enrich(ctx context.Context, cat *catalog.Catalog, objectives []Objective) (*Report, error) {
	log := logging.FromContext(ctx)
	report := &Report{Routes: RoutingTable{}}

	for _, rec := range cat.Records() {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		attrs := []any{slog.String("chapter_id", rec.ChapterID), slog.String("file", rec.File)}

		path := filepath.Join(e.cfg.Root, filepath.FromSlash(rec.File))
		if _, err := os.Stat(path); err != nil {
			log.Warn("llm enrich: source file missing, chapter skipped", attrs...)
			report.Missing = append(report.Missing, rec.ChapterID)
			e.cfg.Metrics.Enrich(stage, metrics.OutcomeSkipped)
			continue
		}

		candidates := Candidates(objectives, rec)
		raw, err := e.ask(ctx, rec, path, candidates)
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			log.Warn("llm enrich: chapter failed, skipped", append(attrs, slog.String("error", err.Error()))...)
			report.Failed = append(report.Failed, rec.ChapterID)
			e.cfg.Metrics.Enrich(stage, metrics.OutcomeFailed)
			continue
		}

		res, err := jsonrepair.DecodeOr(raw, Result{})
		if err != nil {
			log.Warn("llm enrich: unparseable model reply, using neutral result",
				append(attrs, slog.String("error", err.Error()))...)
			report.Unparsed = append(report.Unparsed, rec.ChapterID)
			e.cfg.Metrics.Enrich(stage, metrics.OutcomeSkipped)
			continue
		}

		cat.Upsert(Apply(rec, res))
		routed := observe(report.Routes, rec.ChapterID, candidates, res.Objectives)
		report.Enriched++
		e.cfg.Metrics.Enrich(stage, metrics.OutcomeOK)
		log.Debug("llm enrich: chapter enriched",
			append(attrs, slog.Int("anchors", len(res.Anchors)), slog.Int("tags", len(res.Tags)), slog.Int("routed", routed))...)
	}
	return report, nil
}

// ask builds the prompt for one chapter and returns the raw model reply.
func (e *Enricher) ask(ctx context.Context, rec catalog.ChapterRecord, path string, candidates []Objective) (string, error) {
	pages, err := e.cfg.Pages.Pages(ctx, path)
	if err != nil {
		return "", err
	}
	if len(pages) > e.cfg.PreviewPages {
		pages = pages[:e.cfg.PreviewPages]
	}
	for i := range pages {
		pages[i] = budget.Truncate(strings.TrimSpace(pages[i]), previewPageChars)
	}

	header := chapterHeader(rec, candidates)
	fixed := []*schema.Message{schema.SystemMessage(systemPrompt), schema.UserMessage(header)}
	kept := budget.FitPages(fixed, pages, e.cfg.MaxContextTokens)
	if len(kept) < len(pages) {
		logging.FromContext(ctx).Warn("budget: dropped preview pages to fit context window",
			slog.String("chapter_id", rec.ChapterID),
			slog.Int("dropped", len(pages)-len(kept)),
			slog.Int("max_tokens", e.cfg.MaxContextTokens),
		)
	}

	msgs := []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(header + previewText(kept)),
	}
	resp, err := e.cfg.ChatModel.Generate(ctx, msgs, model.WithTemperature(e.cfg.Temperature))
	if err != nil {
		return "", fmt.Errorf("llmenrich: generate: %w", err)
	}
	if resp == nil {
		return "", fmt.Errorf("llmenrich: empty response")
	}
	return resp.Content, nil
}

func chapterHeader(rec catalog.ChapterRecord, candidates []Objective) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Chapter %s: grade %d, %s, chapter %d\n", rec.ChapterID, rec.Grade, rec.Subject, rec.ChapterNo)
	if rec.Title != "" {
		fmt.Fprintf(&sb, "Current title: %s\n", rec.Title)
	}
	sb.WriteString("\nCandidate objectives:\n")
	if len(candidates) == 0 {
		sb.WriteString("(none)\n")
	}
	for _, o := range candidates {
		fmt.Fprintf(&sb, "- %s: %s\n", o.ID, o.Text)
	}
	return sb.String()
}

func previewText(pages []string) string {
	var sb strings.Builder
	sb.WriteString("\nPreview:\n")
	for i, p := range pages {
		fmt.Fprintf(&sb, "\n--- page %d ---\n%s\n", i+1, p)
	}
	return sb.String()
}

// Apply merges a model result into rec. Title and subject replace the
// current values only when non-empty, and the subject only when it
// normalizes into the controlled set. Anchors are unioned with existing
// anchors first. Tags replace only when the result has some.
func Apply(rec catalog.ChapterRecord, res Result) catalog.ChapterRecord {
	if t := strings.TrimSpace(res.Title); t != "" {
		rec.Title = t
	}
	if s, ok := catalog.NormalizeSubject(res.Subject); ok {
		rec.Subject = s
	}
	rec.Anchors = catalog.MergeAnchors(rec.Anchors, res.Anchors)

	var tags []string
	for _, t := range res.Tags {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	if len(tags) > 0 {
		rec.Tags = tags
	}
	return rec
}

// observe adds the matches for candidate objectives to the routing table,
// clamping confidence into [0, 1]. Ids the model invented are ignored.
func observe(t RoutingTable, chapterID string, candidates []Objective, matches []ObjectiveMatch) int {
	known := make(map[string]bool, len(candidates))
	for _, o := range candidates {
		known[o.ID] = true
	}
	n := 0
	for _, m := range matches {
		if !known[m.ID] {
			continue
		}
		if t.Observe(m.ID, chapterID, min(max(m.Confidence, 0), 1)) {
			n++
		}
	}
	return n
}
