package llmenrich

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/54b3r/chapterdex/internal/catalog"
)

// Objective is one learning objective from the curriculum bank.
type Objective struct {
	ID      string `json:"id"`
	Grade   int    `json:"grade"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

// LoadObjectives reads a JSON array of objectives. Subjects are normalized
// into the controlled set; objectives with an unknown subject are kept and
// simply never match a chapter.
func LoadObjectives(path string) ([]Objective, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("llmenrich: read objectives: %w", err)
	}
	var objs []Objective
	if err := json.Unmarshal(data, &objs); err != nil {
		return nil, fmt.Errorf("llmenrich: parse objectives %s: %w", path, err)
	}
	for i := range objs {
		if s, ok := catalog.NormalizeSubject(objs[i].Subject); ok {
			objs[i].Subject = s
		}
	}
	return objs, nil
}

// Candidates returns the objectives with the record's grade and subject.
func Candidates(objs []Objective, rec catalog.ChapterRecord) []Objective {
	var out []Objective
	for _, o := range objs {
		if o.Grade == rec.Grade && o.Subject == rec.Subject {
			out = append(out, o)
		}
	}
	return out
}

// Route is the best chapter match seen for one objective.
type Route struct {
	ChapterID  string  `json:"chapterId"`
	Confidence float64 `json:"confidence"`
}

// RoutingTable maps objective ids to their single best chapter.
type RoutingTable map[string]Route

// Observe records a match, keeping it only when its confidence is strictly
// greater than the current best. It reports whether the table changed.
func (t RoutingTable) Observe(objectiveID, chapterID string, confidence float64) bool {
	if cur, ok := t[objectiveID]; ok && confidence <= cur.Confidence {
		return false
	}
	t[objectiveID] = Route{ChapterID: chapterID, Confidence: confidence}
	return true
}

// IDs returns the objective ids in sorted order.
func (t RoutingTable) IDs() []string {
	ids := make([]string, 0, len(t))
	for id := range t {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Save writes the table as indented JSON.
func (t RoutingTable) Save(path string) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("llmenrich: encode routing table: %w", err)
	}
	return catalog.WriteFileAtomic(path, append(data, '\n'))
}
