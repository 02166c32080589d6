package ingestion

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// PrefixInfo is what a 4-letter filename prefix says about a book.
type PrefixInfo struct {
	// Grade is the school grade.
	Grade int `json:"grade"`
	// Subject is the subject display name.
	Subject string `json:"subject"`
}

// PrefixTable maps lower-case 4-letter filename prefixes to book metadata.
type PrefixTable map[string]PrefixInfo

// DefaultPrefixes covers the grade 8 to 10 English-medium textbooks.
func DefaultPrefixes() PrefixTable {
	return PrefixTable{
		"hemh": {Grade: 8, Subject: "Math"},
		"iemh": {Grade: 9, Subject: "Math"},
		"jemh": {Grade: 10, Subject: "Math"},
		"hesc": {Grade: 8, Subject: "Science"},
		"iesc": {Grade: 9, Subject: "Science"},
		"jesc": {Grade: 10, Subject: "Science"},
		"hehd": {Grade: 8, Subject: "English"},
		"iebe": {Grade: 9, Subject: "English"},
		"jeff": {Grade: 10, Subject: "English"},
		"hess": {Grade: 8, Subject: "Social Science"},
		"iess": {Grade: 9, Subject: "Social Science"},
		"jess": {Grade: 10, Subject: "Social Science"},
	}
}

// LoadPrefixTable reads a JSON object of prefix → {grade, subject} from
// path and layers it over the defaults.
func LoadPrefixTable(path string) (PrefixTable, error) {
	table := DefaultPrefixes()
	if path == "" {
		return table, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ingestion: read prefix table %s: %w", path, err)
	}
	var extra map[string]PrefixInfo
	if err := json.Unmarshal(data, &extra); err != nil {
		return nil, fmt.Errorf("ingestion: parse prefix table %s: %w", path, err)
	}
	for k, v := range extra {
		table[strings.ToLower(k)] = v
	}
	return table, nil
}

var (
	// chapterFileRe is prefix + series digit + two-digit chapter number.
	chapterFileRe = regexp.MustCompile(`(?i)^([a-z]{4})(\d)(\d{2})\.pdf$`)

	// blockedFileRe matches book files that are not chapter content:
	// answer keys, prelims, appendices, glossaries and cover images.
	blockedFileRe = regexp.MustCompile(`(?i)^[a-z]{4}\d?(an|ans|ps|pr|a\d|gl|cc|cover)\.(pdf|jpe?g|png)$|\.(jpe?g|png|gif)$`)
)

// FileName is a parsed chapter filename.
type FileName struct {
	Prefix    string
	Series    int
	ChapterNo int
}

// fileKind classifies a filename during a scan.
type fileKind int

const (
	kindChapter fileKind = iota
	kindBlocked
	kindOther
)

// ParseFileName parses a chapter filename such as "iesc102.pdf". ok is
// false for anything that is not chapter content.
func ParseFileName(name string) (FileName, bool) {
	fn, kind := classify(name)
	return fn, kind == kindChapter
}

func classify(name string) (FileName, fileKind) {
	if blockedFileRe.MatchString(name) {
		return FileName{}, kindBlocked
	}
	m := chapterFileRe.FindStringSubmatch(name)
	if m == nil {
		return FileName{}, kindOther
	}
	series, _ := strconv.Atoi(m[2])
	chapter, _ := strconv.Atoi(m[3])
	if chapter == 0 {
		return FileName{}, kindOther
	}
	return FileName{Prefix: strings.ToLower(m[1]), Series: series, ChapterNo: chapter}, kindChapter
}
