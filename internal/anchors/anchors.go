// Package anchors locates structural markers (exercises, examples, summary
// and keyword sections, in-text question blocks) in per-page chapter text.
package anchors

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/54b3r/chapterdex/internal/catalog"
)

var (
	// numberedRe matches "Exercise 2.3" / "EXAMPLE 4" style markers. Only the
	// capitalised and upper-case spellings count, so prose such as
	// "for example 3" is not mistaken for a marker.
	numberedRe = regexp.MustCompile(`\b(Exercise|EXERCISE|Example|EXAMPLE)\s+(\d+(?:\.\d+)?)`)

	intextRe   = regexp.MustCompile(`(?i)in-text\s+questions`)
	summaryRe  = regexp.MustCompile(`\b(Summary|SUMMARY)\b`)
	keywordsRe = regexp.MustCompile(`\b(Keywords|KEYWORDS)\b`)
)

// Scan returns the deduplicated anchors found in pages, in page order.
// pages[i] is physical page i+1. The first page on which a type:code pair
// appears wins.
func Scan(pages []string, chapterNo int) []catalog.Anchor {
	var found []catalog.Anchor
	for i, text := range pages {
		found = append(found, scanPage(text, i+1, chapterNo)...)
	}
	return dedupe(found)
}

// Merge unions scanned anchors into existing ones; existing entries win.
func Merge(existing, scanned []catalog.Anchor) []catalog.Anchor {
	return catalog.MergeAnchors(existing, scanned)
}

// scanPage returns the page's anchors in a fixed order: exercises block,
// numbered markers in text order, then in-text questions, summary and
// keywords.
func scanPage(text string, page, chapterNo int) []catalog.Anchor {
	var out []catalog.Anchor

	if firstLine(text) == "EXERCISES" {
		out = append(out, catalog.Anchor{
			Type: catalog.AnchorExercisesBlock,
			Code: strconv.Itoa(chapterNo),
			Page: page,
		})
	}

	for _, m := range numberedRe.FindAllStringSubmatch(text, -1) {
		out = append(out, catalog.Anchor{
			Type: strings.ToLower(m[1]),
			Code: m[2],
			Page: page,
		})
	}

	if intextRe.MatchString(text) {
		out = append(out, catalog.Anchor{Type: catalog.AnchorInText, Page: page})
	}
	if summaryRe.MatchString(text) {
		out = append(out, catalog.Anchor{Type: catalog.AnchorSummary, Page: page})
	}
	if keywordsRe.MatchString(text) {
		out = append(out, catalog.Anchor{Type: catalog.AnchorKeywords, Page: page})
	}
	return out
}

// firstLine returns the first non-blank line of text, trimmed.
func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if l := strings.TrimSpace(line); l != "" {
			return l
		}
	}
	return ""
}

func dedupe(in []catalog.Anchor) []catalog.Anchor {
	seen := make(map[string]bool, len(in))
	out := make([]catalog.Anchor, 0, len(in))
	for _, a := range in {
		if seen[a.Key()] {
			continue
		}
		seen[a.Key()] = true
		out = append(out, a)
	}
	return out
}
