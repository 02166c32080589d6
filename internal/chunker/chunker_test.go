package chunker

import (
	"reflect"
	"strings"
	"testing"
)

func TestChunk_Scenarios(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		text     string
		maxChars int
		want     []string
	}{
		{
			name:     "fits in one chunk",
			text:     "  Hello   world \n\t again ",
			maxChars: 100,
			want:     []string{"Hello world again"},
		},
		{
			name:     "empty input",
			text:     " \n\t ",
			maxChars: 100,
			want:     nil,
		},
		{
			name:     "sentence boundaries",
			text:     "Sentence one. Sentence two. Sentence three.",
			maxChars: 15,
			want:     []string{"Sentence one.", "Sentence two.", "Sentence three."},
		},
		{
			name:     "space fallback when sentence cut is too early",
			text:     "Hi. alpha beta gamma delta epsilon",
			maxChars: 20,
			want:     []string{"Hi. alpha beta gamma", "delta epsilon"},
		},
		{
			name:     "hard cut for a long word",
			text:     "abcdefghijklmnopqrstuvwxyz",
			maxChars: 10,
			want:     []string{"abcdefghij", "klmnopqrst", "uvwxyz"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Chunk(tc.text, tc.maxChars)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("Chunk(%q, %d) = %q, want %q", tc.text, tc.maxChars, got, tc.want)
			}
		})
	}
}

func TestChunk_NeverSplitsWordsInSentenceScenario(t *testing.T) {
	t.Parallel()
	words := map[string]bool{"Sentence": true, "one.": true, "two.": true, "three.": true}
	for _, c := range Chunk("Sentence one. Sentence two. Sentence three.", 15) {
		if len(c) > 15 {
			t.Errorf("chunk %q longer than 15", c)
		}
		for _, w := range strings.Fields(c) {
			if !words[w] {
				t.Errorf("chunk %q contains split word %q", c, w)
			}
		}
	}
}

// TestChunk_CoversText checks that every chunk respects the limit and that
// the chunks reconstruct the normalized text up to whitespace.
func TestChunk_CoversText(t *testing.T) {
	t.Parallel()

	inputs := []string{
		strings.Repeat("The quick brown fox jumps over the lazy dog. ", 40),
		strings.Repeat("word ", 500),
		strings.Repeat("x", 3001),
		"Matter is made of particles. " + strings.Repeat("Ünïcödé ", 100) + "End.",
		"Short.",
	}
	limits := []int{MinChars, 15, 64, 200, DefaultMaxChars}

	for _, in := range inputs {
		for _, m := range limits {
			chunks := Chunk(in, m)
			for _, c := range chunks {
				if len(c) > m {
					t.Fatalf("limit %d: chunk of length %d: %q", m, len(c), c)
				}
				if c == "" {
					t.Fatalf("limit %d: empty chunk", m)
				}
			}
			got := strings.ReplaceAll(strings.Join(chunks, ""), " ", "")
			want := strings.ReplaceAll(Normalize(in), " ", "")
			if got != want {
				t.Fatalf("limit %d: reconstruction mismatch\n got=%q\nwant=%q", m, got, want)
			}
		}
	}
}

func TestChunk_ClampsTinyLimit(t *testing.T) {
	t.Parallel()
	for _, c := range Chunk("one two three four five six seven", 1) {
		if len(c) > MinChars {
			t.Errorf("chunk %q exceeds MinChars", c)
		}
	}
}

func TestChunkPages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		pages    []string
		maxChars int
		want     []Piece
	}{
		{
			name:     "pages become pieces",
			pages:    []string{"Page one text.", "", "Page three text."},
			maxChars: 100,
			want: []Piece{
				{Page: 1, Text: "Page one text."},
				{Page: 3, Text: "Page three text."},
			},
		},
		{
			name:     "oversized page is chunked on its own",
			pages:    []string{"Short.", "Sentence one. Sentence two. Sentence three."},
			maxChars: 15,
			want: []Piece{
				{Page: 1, Text: "Short."},
				{Page: 2, Text: "Sentence one."},
				{Page: 2, Text: "Sentence two."},
				{Page: 2, Text: "Sentence three."},
			},
		},
		{
			name:     "single non-blank page is chunked whole",
			pages:    []string{"", "Sentence one. Sentence two."},
			maxChars: 15,
			want: []Piece{
				{Page: 2, Text: "Sentence one."},
				{Page: 2, Text: "Sentence two."},
			},
		},
		{
			name:     "no pages",
			pages:    nil,
			maxChars: 15,
			want:     nil,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := ChunkPages(tc.pages, tc.maxChars)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("ChunkPages = %+v, want %+v", got, tc.want)
			}
		})
	}
}
