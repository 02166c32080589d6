package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
	metric:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && lp.GetValue() != want {
					continue metric
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return 0
}

func TestPipeline_Counters(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	p := NewPipeline(reg)

	p.Chapter(OutcomeOK)
	p.Chapter(OutcomeOK)
	p.Chapter(OutcomeSkipped)
	p.Chunks("keyword", 7)
	p.EmbedBatch(OutcomeFailed)
	p.Enrich("llm", OutcomeOK)

	if got := counterValue(t, reg, "chapterdex_index_chapters_total", map[string]string{"outcome": "ok"}); got != 2 {
		t.Errorf("chapters ok = %v, want 2", got)
	}
	if got := counterValue(t, reg, "chapterdex_index_chunks_total", map[string]string{"mode": "keyword"}); got != 7 {
		t.Errorf("chunks keyword = %v, want 7", got)
	}
	if got := counterValue(t, reg, "chapterdex_embedding_batches_total", map[string]string{"outcome": "failed"}); got != 1 {
		t.Errorf("embedding failed = %v, want 1", got)
	}
	if got := counterValue(t, reg, "chapterdex_enrich_chapters_total", map[string]string{"stage": "llm", "outcome": "ok"}); got != 1 {
		t.Errorf("enrich llm ok = %v, want 1", got)
	}
}

func TestPipeline_NilIsNoop(t *testing.T) {
	t.Parallel()
	var p *Pipeline
	p.Chapter(OutcomeOK)
	p.Chunks("vector", 3)
	p.EmbedBatch(OutcomeOK)
	p.Enrich("heuristic", OutcomeOK)
}

func TestWriteTextfile(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	NewPipeline(reg).Chapter(OutcomeOK)

	path := filepath.Join(t.TempDir(), "chapterdex.prom")
	if err := WriteTextfile(path, reg); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `chapterdex_index_chapters_total{outcome="ok"} 1`) {
		t.Errorf("textfile missing counter:\n%s", data)
	}
}
