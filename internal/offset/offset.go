// Package offset resolves the difference between physical PDF page numbers
// and the page numbers printed in the book.
//
// A chapter's offset satisfies printed = pdf + offset. The footer heuristic
// reads the printed number off the first content page; manual calibration
// with an observed (printed, pdf) pair is the only way to replace an offset
// that is already set.
package offset

import (
	"context"
	"strconv"
	"strings"

	"github.com/54b3r/chapterdex/internal/catalog"
	"github.com/54b3r/chapterdex/internal/fallback"
)

// Sources reported in a [Resolution].
const (
	SourceExisting = "existing"
	SourceFooter   = "footer"
	SourceNone     = "none"
	SourceManual   = "manual"
)

// maxPrintedPage bounds the numeric-only lines accepted as page footers.
const maxPrintedPage = 900

// Resolution is the outcome of resolving one chapter's offset.
type Resolution struct {
	Offset int
	Source string
}

// GuessPrintedStart returns the printed page number of the first content
// page, taken from the last numeric-only line in [1, 900) on that page.
// pdfPage is the 1-based physical page the number was read from.
func GuessPrintedStart(pages []string) (printed, pdfPage int, ok bool) {
	for i, text := range pages {
		if strings.TrimSpace(text) == "" {
			continue
		}
		n, found := lastFooterNumber(text)
		return n, i + 1, found
	}
	return 0, 0, false
}

// Resolve computes the offset for rec from its extracted pages. Strategies
// run in order: keep an existing non-zero offset, derive one from the first
// content page footer, otherwise keep the prior value.
func Resolve(ctx context.Context, rec catalog.ChapterRecord, pages []string) Resolution {
	res, err := fallback.First(ctx,
		fallback.Strategy[int]{Name: SourceExisting, Run: func(context.Context) (int, error) {
			if rec.Offset == 0 {
				return 0, fallback.ErrSkip
			}
			return rec.Offset, nil
		}},
		fallback.Strategy[int]{Name: SourceFooter, Run: func(context.Context) (int, error) {
			printed, pdfPage, ok := GuessPrintedStart(pages)
			if !ok {
				return 0, fallback.ErrSkip
			}
			return printed - pdfPage, nil
		}},
	)
	if err != nil {
		return Resolution{Offset: rec.Offset, Source: SourceNone}
	}
	return Resolution{Offset: res.Value, Source: res.Name}
}

// Calibrate returns the offset implied by observing printed page printed
// on physical page pdfPage.
func Calibrate(printed, pdfPage int) int {
	return printed - pdfPage
}

func lastFooterNumber(text string) (int, bool) {
	n, found := 0, false
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.TrimLeft(line, "0123456789") != "" {
			continue
		}
		v, err := strconv.Atoi(line)
		if err != nil || v < 1 || v >= maxPrintedPage {
			continue
		}
		n, found = v, true
	}
	return n, found
}
