// Package chunker splits extracted page text into bounded, sentence-aware
// chunks suitable for embedding and keyword retrieval.
package chunker

import (
	"strings"
	"unicode/utf8"
)

const (
	// DefaultMaxChars is the chunk length limit used when none is configured.
	DefaultMaxChars = 1500

	// MinChars is the smallest accepted limit; lower values are clamped.
	MinChars = 10

	// sentenceFloor is the fraction of maxChars a sentence cut must reach
	// before a plain-space cut is preferred instead.
	sentenceFloor = 0.6
)

// Piece is a chunk tagged with the physical PDF page it was cut from.
type Piece struct {
	Page int
	Text string
}

// Normalize collapses every run of whitespace to one space and trims.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Chunk splits text into pieces of at most maxChars bytes that together
// cover the normalized text in order. Cuts prefer the last ". " inside the
// window, then the last space, then a hard cut at the window end.
func Chunk(text string, maxChars int) []string {
	if maxChars < MinChars {
		maxChars = MinChars
	}
	s := Normalize(text)
	if s == "" {
		return nil
	}
	if len(s) <= maxChars {
		return []string{s}
	}

	floor := int(float64(maxChars) * sentenceFloor)
	var out []string
	start := 0
	for start < len(s) {
		if len(s)-start <= maxChars {
			out = appendNonEmpty(out, s[start:])
			break
		}

		// One extra byte so a ". " whose space sits just past the limit
		// still counts as a sentence end.
		window := s[start:min(start+maxChars+1, len(s))]

		if i := strings.LastIndex(window, ". "); i >= 0 && i+1 >= floor {
			out = appendNonEmpty(out, s[start:start+i+1])
			start += i + 2
			continue
		}
		if i := strings.LastIndexByte(window, ' '); i > 0 {
			out = appendNonEmpty(out, s[start:start+i])
			start += i + 1
			continue
		}

		cut := start + maxChars
		for cut > start+1 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		out = appendNonEmpty(out, s[start:cut])
		start = cut
	}
	return out
}

// ChunkPages applies the page policy: each non-blank page becomes one
// piece, and a page longer than maxChars is chunked on its own. When the
// input has at most one non-blank page the concatenated text is chunked
// instead.
func ChunkPages(pages []string, maxChars int) []Piece {
	if maxChars < MinChars {
		maxChars = MinChars
	}

	nonBlank, page := 0, 0
	for i, p := range pages {
		if strings.TrimSpace(p) != "" {
			nonBlank++
			page = i + 1
		}
	}

	if nonBlank <= 1 {
		var out []Piece
		for _, c := range Chunk(strings.Join(pages, " "), maxChars) {
			out = append(out, Piece{Page: page, Text: c})
		}
		return out
	}

	var out []Piece
	for i, p := range pages {
		for _, c := range Chunk(p, maxChars) {
			out = append(out, Piece{Page: i + 1, Text: c})
		}
	}
	return out
}

func appendNonEmpty(out []string, s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return out
	}
	return append(out, s)
}
