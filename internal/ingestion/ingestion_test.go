package ingestion

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/54b3r/chapterdex/internal/catalog"
	"github.com/54b3r/chapterdex/internal/pdftext"
)

func TestParseFileName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want FileName
		ok   bool
	}{
		// ── chapter files ───────────────────────────────────────────────
		{"iesc102.pdf", FileName{Prefix: "iesc", Series: 1, ChapterNo: 2}, true},
		{"HEMH108.PDF", FileName{Prefix: "hemh", Series: 1, ChapterNo: 8}, true},
		{"jess312.pdf", FileName{Prefix: "jess", Series: 3, ChapterNo: 12}, true},
		// ── non-chapter book files ──────────────────────────────────────
		{"iesc1an.pdf", FileName{}, false},
		{"iesc1ps.pdf", FileName{}, false},
		{"iesc1a1.pdf", FileName{}, false},
		{"iesc1gl.pdf", FileName{}, false},
		{"iesccc.jpg", FileName{}, false},
		// ── naming convention violations ────────────────────────────────
		{"iesc100.pdf", FileName{}, false},
		{"notes.pdf", FileName{}, false},
		{"iesc1022.pdf", FileName{}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ParseFileName(tc.name)
			if ok != tc.ok || got != tc.want {
				t.Errorf("ParseFileName(%q) = (%+v, %v), want (%+v, %v)", tc.name, got, ok, tc.want, tc.ok)
			}
		})
	}
}

func touch(t *testing.T, root string, names ...string) {
	t.Helper()
	for _, n := range names {
		p := filepath.Join(root, filepath.FromSlash(n))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("%PDF-1.4"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
}

func TestScanner_Scan(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	touch(t, root,
		"science9/iesc102.pdf",
		"science9/iesc101.pdf",
		"science9/iesc1an.pdf",
		"math8/hemh108.pdf",
		"math11/kemh101.pdf", // unknown prefix
		"math12/lemh101.pdf", // unknown prefix
		"readme.txt",
	)

	prefixes := DefaultPrefixes()
	prefixes["xxhi"] = PrefixInfo{Grade: 9, Subject: "Hindi"}
	touch(t, root, "hindi/xxhi101.pdf")

	report, err := Scanner{Root: root, Prefixes: prefixes}.Scan()
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	var ids []string
	for _, r := range report.Records {
		ids = append(ids, r.ChapterID)
	}
	if want := []string{"8M-CH08", "9S-CH01", "9S-CH02"}; !reflect.DeepEqual(ids, want) {
		t.Errorf("chapter ids = %v, want %v", ids, want)
	}
	if report.Records[2].File != "science9/iesc102.pdf" || report.Records[2].Subject != catalog.SubjectScience {
		t.Errorf("record = %+v", report.Records[2])
	}
	if want := []string{"kemh", "lemh"}; !reflect.DeepEqual(report.UnknownPrefixes, want) {
		t.Errorf("unknown prefixes = %v, want %v", report.UnknownPrefixes, want)
	}
	if want := []string{"xxhi"}; !reflect.DeepEqual(report.UnknownSubjects, want) {
		t.Errorf("unknown subjects = %v, want %v", report.UnknownSubjects, want)
	}
	if report.Blocked != 1 || report.Ignored != 1 {
		t.Errorf("blocked=%d ignored=%d, want 1 and 1", report.Blocked, report.Ignored)
	}
}

func TestScanner_GradeFilter(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	touch(t, root, "hemh101.pdf", "jemh101.pdf")

	report, err := Scanner{Root: root, Prefixes: DefaultPrefixes(), Grades: []int{10}}.Scan()
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(report.Records) != 1 || report.Records[0].ChapterID != "10M-CH01" {
		t.Errorf("records = %+v, want only 10M-CH01", report.Records)
	}
	if report.FilteredGrade != 1 {
		t.Errorf("FilteredGrade = %d, want 1", report.FilteredGrade)
	}
}

func TestScanner_MissingRoot(t *testing.T) {
	t.Parallel()
	_, err := Scanner{Root: filepath.Join(t.TempDir(), "nope"), Prefixes: DefaultPrefixes()}.Scan()
	if !errors.Is(err, ErrSourceDirMissing) {
		t.Errorf("err = %v, want ErrSourceDirMissing", err)
	}
}

func TestLoadPrefixTable(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "prefixes.json")
	if err := os.WriteFile(path, []byte(`{"KEMH": {"grade": 11, "subject": "Math"}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	table, err := LoadPrefixTable(path)
	if err != nil {
		t.Fatalf("LoadPrefixTable: %v", err)
	}
	if table["kemh"].Grade != 11 || table["iesc"].Grade != 9 {
		t.Errorf("table = %+v", table)
	}
}

// fakePages serves canned page text per file base name.
type fakePages map[string][]string

func (f fakePages) Pages(_ context.Context, path string) ([]string, error) {
	pages, ok := f[filepath.Base(path)]
	if !ok {
		return nil, &pdftext.ParseError{Path: path, Err: errors.New("bad xref")}
	}
	return pages, nil
}

func TestEnricher_Enrich(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	touch(t, root, "iesc102.pdf", "iesc103.pdf")

	cat := catalog.New([]catalog.ChapterRecord{
		{ChapterID: "9S-CH02", File: "iesc102.pdf", Grade: 9, Subject: catalog.SubjectScience, ChapterNo: 2},
		{ChapterID: "9S-CH03", File: "iesc103.pdf", Grade: 9, Subject: catalog.SubjectScience, ChapterNo: 3},
		{ChapterID: "9S-CH04", File: "iesc104.pdf", Grade: 9, Subject: catalog.SubjectScience, ChapterNo: 4, Offset: 40},
	})
	pages := fakePages{
		"iesc102.pdf": {"Is Matter Around Us Pure?\n15", "EXERCISES\nSome intro", "Example 2.1 ...", "12"},
	}

	e := &Enricher{Root: root, Pages: pages, Workers: 2}
	report, err := e.Enrich(context.Background(), cat)
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}

	got, _ := cat.Get("9S-CH02")
	wantAnchors := []catalog.Anchor{
		{Type: catalog.AnchorExercisesBlock, Code: "2", Page: 2},
		{Type: catalog.AnchorExample, Code: "2.1", Page: 3},
	}
	if !reflect.DeepEqual(got.Anchors, wantAnchors) {
		t.Errorf("anchors = %+v, want %+v", got.Anchors, wantAnchors)
	}
	if got.Offset != 14 {
		t.Errorf("offset = %d, want 14", got.Offset)
	}

	if report.Enriched != 1 {
		t.Errorf("Enriched = %d, want 1", report.Enriched)
	}
	if len(report.Failed) != 1 || report.Failed[0].ChapterID != "9S-CH03" {
		t.Errorf("Failed = %+v, want 9S-CH03", report.Failed)
	}
	if !reflect.DeepEqual(report.Missing, []string{"9S-CH04"}) {
		t.Errorf("Missing = %v, want [9S-CH04]", report.Missing)
	}
	if untouched, _ := cat.Get("9S-CH04"); untouched.Offset != 40 {
		t.Errorf("missing chapter offset changed to %d", untouched.Offset)
	}
	if !reflect.DeepEqual(report.NoOffset, []string{"9S-CH03"}) {
		t.Errorf("NoOffset = %v, want [9S-CH03]", report.NoOffset)
	}
}

func TestCalibrate(t *testing.T) {
	t.Parallel()
	cat := catalog.New([]catalog.ChapterRecord{{ChapterID: "9S-CH02", Offset: 14}})

	rec, err := Calibrate(cat, "9S-CH02", 20, 3)
	if err != nil {
		t.Fatalf("Calibrate: %v", err)
	}
	if rec.Offset != 17 {
		t.Errorf("offset = %d, want 17", rec.Offset)
	}
	if stored, _ := cat.Get("9S-CH02"); stored.Offset != 17 {
		t.Errorf("stored offset = %d, want 17", stored.Offset)
	}
	if _, err := Calibrate(cat, "9S-CH99", 1, 1); !errors.Is(err, ErrUnknownChapter) {
		t.Errorf("err = %v, want ErrUnknownChapter", err)
	}
}

func TestEnricher_ZeroFooterOffsetIsNotReported(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	touch(t, root, "iesc101.pdf", "iesc105.pdf")

	cat := catalog.New([]catalog.ChapterRecord{
		{ChapterID: "9S-CH01", File: "iesc101.pdf", Grade: 9, Subject: catalog.SubjectScience, ChapterNo: 1},
		{ChapterID: "9S-CH05", File: "iesc105.pdf", Grade: 9, Subject: catalog.SubjectScience, ChapterNo: 5},
	})
	pages := fakePages{
		// Printed page 1 on PDF page 1.
		"iesc101.pdf": {"Matter in Our Surroundings\n1", "2"},
		"iesc105.pdf": {"The Fundamental Unit of Life", "no footer here"},
	}

	report, err := (&Enricher{Root: root, Pages: pages}).Enrich(context.Background(), cat)
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if got, _ := cat.Get("9S-CH01"); got.Offset != 0 {
		t.Errorf("9S-CH01 offset = %d, want 0", got.Offset)
	}
	if !reflect.DeepEqual(report.NoOffset, []string{"9S-CH05"}) {
		t.Errorf("NoOffset = %v, want [9S-CH05]", report.NoOffset)
	}
}
