// Package catalog defines the chapter manifest: the list of chapter records
// that every pipeline stage reads and writes. A [Catalog] is passed
// explicitly between stages and persisted through a [FileStore] only at
// stage boundaries.
package catalog

import (
	"fmt"
	"sort"
	"strings"
)

// Anchor types recognised by the indexer and accepted on merge.
const (
	AnchorExercise       = "exercise"
	AnchorExample        = "example"
	AnchorExercisesBlock = "exercises-block"
	AnchorInText         = "intext"
	AnchorSummary        = "summary"
	AnchorKeywords       = "keywords"
)

// validAnchorTypes is the closed set of anchor types.
var validAnchorTypes = map[string]bool{
	AnchorExercise:       true,
	AnchorExample:        true,
	AnchorExercisesBlock: true,
	AnchorInText:         true,
	AnchorSummary:        true,
	AnchorKeywords:       true,
}

// ValidAnchorType reports whether t is one of the recognised anchor types.
func ValidAnchorType(t string) bool {
	return validAnchorTypes[t]
}

// Anchor is a located structural marker inside a chapter PDF.
type Anchor struct {
	// Type is one of the Anchor* constants.
	Type string `json:"type"`
	// Code is the marker number, e.g. "2.3" for "Exercise 2.3".
	Code string `json:"code"`
	// Page is the 1-based physical PDF page the marker was found on.
	Page int `json:"page"`
}

// Key returns the deduplication key "type:code".
func (a Anchor) Key() string {
	return a.Type + ":" + a.Code
}

// ChapterRecord is one entry of the manifest.
type ChapterRecord struct {
	// ChapterID is the stable identifier, e.g. "9S-CH02".
	ChapterID string `json:"chapterId"`
	// File is the PDF path relative to the content root.
	File string `json:"file"`
	// Title is the chapter title, empty until enrichment fills it.
	Title string `json:"title"`
	// Grade is the school grade.
	Grade int `json:"grade"`
	// Subject is the subject display name, e.g. "Science".
	Subject string `json:"subject"`
	// ChapterNo is the 1-based chapter number.
	ChapterNo int `json:"chapterNo"`
	// Offset maps physical to printed pages: printed = pdf + Offset.
	Offset int `json:"offset"`
	// Anchors are the located structural markers.
	Anchors []Anchor `json:"anchors"`
	// Tags are free-form labels from enrichment.
	Tags []string `json:"tags,omitempty"`
}

// PrintedPage converts a physical PDF page to the printed page number.
func (r ChapterRecord) PrintedPage(pdfPage int) int {
	return pdfPage + r.Offset
}

// PDFPage converts a printed page number to the physical PDF page.
func (r ChapterRecord) PDFPage(printed int) int {
	return printed - r.Offset
}

// Subject display names and their chapter id codes.
const (
	SubjectMath          = "Math"
	SubjectScience       = "Science"
	SubjectEnglish       = "English"
	SubjectSocialScience = "Social Science"
)

var subjectCodes = map[string]string{
	SubjectMath:          "M",
	SubjectScience:       "S",
	SubjectEnglish:       "E",
	SubjectSocialScience: "X",
}

// SubjectCode returns the single-letter code for subject and whether the
// subject is part of the controlled set.
func SubjectCode(subject string) (string, bool) {
	c, ok := subjectCodes[subject]
	return c, ok
}

// NormalizeSubject maps free-form input ("maths", "social-science") onto
// the controlled subject set. ok is false when no mapping exists.
func NormalizeSubject(s string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer("-", " ", "_", " ").Replace(key)
	switch key {
	case "math", "maths", "mathematics":
		return SubjectMath, true
	case "science":
		return SubjectScience, true
	case "english":
		return SubjectEnglish, true
	case "social science", "social sciences", "social studies", "sst":
		return SubjectSocialScience, true
	}
	return "", false
}

// ChapterID builds the stable chapter identifier, e.g. "9S-CH02".
func ChapterID(grade int, subjectCode string, chapterNo int) string {
	return fmt.Sprintf("%d%s-CH%02d", grade, subjectCode, chapterNo)
}

// Catalog is the in-memory manifest keyed by chapter id. The zero value is
// not usable; call [New].
type Catalog struct {
	byID map[string]*ChapterRecord
}

// New returns a catalog holding a copy of records. Later duplicates replace
// earlier ones.
func New(records []ChapterRecord) *Catalog {
	c := &Catalog{byID: make(map[string]*ChapterRecord, len(records))}
	for _, r := range records {
		c.Upsert(r)
	}
	return c
}

// Len returns the number of records.
func (c *Catalog) Len() int {
	return len(c.byID)
}

// Get returns the record for id.
func (c *Catalog) Get(id string) (ChapterRecord, bool) {
	r, ok := c.byID[id]
	if !ok {
		return ChapterRecord{}, false
	}
	return *r, true
}

// Upsert inserts or wholly replaces the record with the same chapter id.
func (c *Catalog) Upsert(r ChapterRecord) {
	rec := r
	c.byID[r.ChapterID] = &rec
}

// Records returns all records sorted by (grade, subject, chapterNo).
func (c *Catalog) Records() []ChapterRecord {
	out := make([]ChapterRecord, 0, len(c.byID))
	for _, r := range c.byID {
		out = append(out, *r)
	}
	sortRecords(out)
	return out
}

// Merge combines existing and fresh records keyed by chapter id. A fresh
// record replaces the existing one entirely. The result is sorted by
// (grade, subject, chapterNo).
func Merge(existing, fresh []ChapterRecord) []ChapterRecord {
	c := New(existing)
	for _, r := range fresh {
		c.Upsert(r)
	}
	return c.Records()
}

// MergeAnchors returns existing followed by every anchor in add whose
// type:code key is not already present. Anchors with an unknown type are
// dropped.
func MergeAnchors(existing, add []Anchor) []Anchor {
	seen := make(map[string]bool, len(existing)+len(add))
	out := make([]Anchor, 0, len(existing)+len(add))
	for _, list := range [][]Anchor{existing, add} {
		for _, a := range list {
			if !ValidAnchorType(a.Type) || seen[a.Key()] {
				continue
			}
			seen[a.Key()] = true
			out = append(out, a)
		}
	}
	return out
}

func sortRecords(rs []ChapterRecord) {
	sort.SliceStable(rs, func(i, j int) bool {
		a, b := rs[i], rs[j]
		if a.Grade != b.Grade {
			return a.Grade < b.Grade
		}
		if a.Subject != b.Subject {
			return a.Subject < b.Subject
		}
		if a.ChapterNo != b.ChapterNo {
			return a.ChapterNo < b.ChapterNo
		}
		return a.ChapterID < b.ChapterID
	})
}
