// Package pdftext extracts per-page plain text from PDF files.
//
// Page N of the result is physical page N of the document. Each page is
// rendered with an ordered list of text strategies (row-reconstructed text,
// which keeps line breaks for the line-based anchor and footer heuristics,
// then the library's plain-text rendering); a page on which every strategy
// fails yields an empty string. Documents that cannot be opened at all
// produce a [*ParseError] so callers can skip that source and continue.
package pdftext

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/54b3r/chapterdex/internal/fallback"
)

// ParseError reports a document that could not be parsed.
type ParseError struct {
	// Path is the source file path or label.
	Path string
	// Err is the underlying parser failure.
	Err error
}

// Error implements error.
func (e *ParseError) Error() string {
	return fmt.Sprintf("pdftext: cannot parse %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error { return e.Err }

// Extractor renders PDF pages to text. The zero value extracts every page.
type Extractor struct {
	// MaxPages limits extraction to the first MaxPages pages when > 0.
	MaxPages int
}

// Pages opens the PDF at path and returns its per-page text.
func (e Extractor) Pages(ctx context.Context, path string) ([]string, error) {
	f, r, err := openPDF(path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	defer f.Close()
	return e.render(ctx, r, path)
}

// PagesFromReader is like Pages for an in-memory or already opened
// document. source labels the document in errors.
func (e Extractor) PagesFromReader(ctx context.Context, ra io.ReaderAt, size int64, source string) ([]string, error) {
	r, err := newReader(ra, size)
	if err != nil {
		return nil, &ParseError{Path: source, Err: err}
	}
	return e.render(ctx, r, source)
}

func (e Extractor) render(ctx context.Context, r *pdf.Reader, source string) (pages []string, err error) {
	defer func() {
		if p := recover(); p != nil {
			pages, err = nil, &ParseError{Path: source, Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	n := r.NumPage()
	if e.MaxPages > 0 && e.MaxPages < n {
		n = e.MaxPages
	}

	// pdf.Reader is not safe for concurrent use, so pages are rendered in
	// sequence. Each result goes into its own slot by page index.
	out := make([]string, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i-1] = pageText(ctx, r.Page(i))
	}
	return out, nil
}

// pageText returns the text of one page, or "" when nothing can be read.
func pageText(ctx context.Context, p pdf.Page) (text string) {
	defer func() {
		if recover() != nil {
			text = ""
		}
	}()
	if p.V.IsNull() {
		return ""
	}

	res, err := fallback.First(ctx,
		fallback.Strategy[string]{Name: "rows", Run: func(context.Context) (string, error) {
			return rowsText(p)
		}},
		fallback.Strategy[string]{Name: "plain", Run: func(context.Context) (string, error) {
			return p.GetPlainText(nil)
		}},
	)
	if err != nil {
		return ""
	}
	return res.Value
}

// rowsText joins the page's text rows top to bottom, one row per line.
func rowsText(p pdf.Page) (string, error) {
	rows, err := p.GetTextByRow()
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, row := range rows {
		var line strings.Builder
		for _, t := range row.Content {
			line.WriteString(t.S)
		}
		if s := strings.TrimSpace(line.String()); s != "" {
			b.WriteString(s)
			b.WriteByte('\n')
		}
	}
	if b.Len() == 0 {
		return "", fallback.ErrSkip
	}
	return b.String(), nil
}

// openPDF wraps pdf.Open, converting library panics on malformed input
// into errors.
func openPDF(path string) (f io.Closer, r *pdf.Reader, err error) {
	defer func() {
		if p := recover(); p != nil {
			f, r, err = nil, nil, fmt.Errorf("panic: %v", p)
		}
	}()
	file, reader, err := pdf.Open(path)
	if err != nil {
		return nil, nil, err
	}
	if reader == nil {
		file.Close()
		return nil, nil, errors.New("no document")
	}
	return file, reader, nil
}

func newReader(ra io.ReaderAt, size int64) (r *pdf.Reader, err error) {
	defer func() {
		if p := recover(); p != nil {
			r, err = nil, fmt.Errorf("panic: %v", p)
		}
	}()
	return pdf.NewReader(ra, size)
}
