// Package ingestion builds and enriches the chapter manifest.
//
// [Scanner] turns a directory of textbook PDFs into chapter records using
// the filename convention (prefix + series digit + chapter number).
// [Enricher] fills in structural anchors and page offsets from the PDF
// text. Both report data-quality problems in an end-of-run summary rather
// than failing the run.
package ingestion

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"

	"github.com/54b3r/chapterdex/internal/catalog"
)

// ErrSourceDirMissing is returned when the source directory does not exist.
var ErrSourceDirMissing = errors.New("ingestion: source directory not found")

// DefaultGrades is the grade filter applied when none is configured.
var DefaultGrades = []int{8, 9, 10}

// Scanner discovers chapter PDFs under a root directory.
type Scanner struct {
	// Root is the content root; record file paths are relative to it.
	Root string
	// Prefixes maps filename prefixes to grade and subject.
	Prefixes PrefixTable
	// Grades restricts the output to these grades. Empty means DefaultGrades.
	Grades []int
}

// ScanReport is the result of a scan.
type ScanReport struct {
	// Records are the chapter records found, sorted.
	Records []catalog.ChapterRecord
	// UnknownPrefixes lists chapter-shaped files whose prefix is not in the table.
	UnknownPrefixes []string
	// Blocked counts non-chapter book files (answers, covers, ...).
	Blocked int
	// Ignored counts files that do not follow the naming convention.
	Ignored int
	// FilteredGrade counts chapters dropped by the grade filter.
	FilteredGrade int
	// UnknownSubjects lists prefixes whose subject has no chapter id code.
	UnknownSubjects []string
	// Collisions lists files that mapped to an already used chapter id.
	Collisions []string
}

// Scan walks Root and returns the chapter records it finds.
func (s Scanner) Scan() (*ScanReport, error) {
	info, err := os.Stat(s.Root)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrSourceDirMissing, s.Root)
	}

	grades := s.Grades
	if len(grades) == 0 {
		grades = DefaultGrades
	}

	report := &ScanReport{}
	unknown := map[string]bool{}
	badSubject := map[string]bool{}
	byID := map[string]catalog.ChapterRecord{}

	err = filepath.WalkDir(s.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		fn, kind := classify(d.Name())
		switch kind {
		case kindBlocked:
			report.Blocked++
			return nil
		case kindOther:
			report.Ignored++
			return nil
		}

		meta, ok := s.Prefixes[fn.Prefix]
		if !ok {
			unknown[fn.Prefix] = true
			return nil
		}
		if !slices.Contains(grades, meta.Grade) {
			report.FilteredGrade++
			return nil
		}
		subject, ok := catalog.NormalizeSubject(meta.Subject)
		if !ok {
			badSubject[fn.Prefix] = true
			return nil
		}
		code, _ := catalog.SubjectCode(subject)

		rel, err := filepath.Rel(s.Root, path)
		if err != nil {
			return err
		}
		rec := catalog.ChapterRecord{
			ChapterID: catalog.ChapterID(meta.Grade, code, fn.ChapterNo),
			File:      filepath.ToSlash(rel),
			Grade:     meta.Grade,
			Subject:   subject,
			ChapterNo: fn.ChapterNo,
			Anchors:   []catalog.Anchor{},
		}
		if prev, dup := byID[rec.ChapterID]; dup {
			report.Collisions = append(report.Collisions, fmt.Sprintf("%s: %s replaced by %s", rec.ChapterID, prev.File, rec.File))
		}
		byID[rec.ChapterID] = rec
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ingestion: walk %s: %w", s.Root, err)
	}

	records := make([]catalog.ChapterRecord, 0, len(byID))
	for _, r := range byID {
		records = append(records, r)
	}
	report.Records = catalog.New(records).Records()
	report.UnknownPrefixes = sortedKeys(unknown)
	report.UnknownSubjects = sortedKeys(badSubject)
	return report, nil
}

// Log writes the end-of-run scan summary.
func (r *ScanReport) Log(log *slog.Logger) {
	log.Info("ingest: scan complete",
		slog.Int("chapters", len(r.Records)),
		slog.Int("blocked", r.Blocked),
		slog.Int("ignored", r.Ignored),
		slog.Int("filtered_grade", r.FilteredGrade),
	)
	if len(r.UnknownPrefixes) > 0 {
		log.Warn("ingest: unknown filename prefixes, extend the prefix table to include them",
			slog.Any("prefixes", r.UnknownPrefixes),
		)
	}
	if len(r.UnknownSubjects) > 0 {
		log.Warn("ingest: prefixes with a subject outside the controlled set were discarded",
			slog.Any("prefixes", r.UnknownSubjects),
		)
	}
	for _, c := range r.Collisions {
		log.Warn("ingest: chapter id collision", slog.String("detail", c))
	}
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
