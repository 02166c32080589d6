package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/chapterdex/internal/rag"
)

func Test_Metrics_EndpointReturns200(t *testing.T) {
	t.Parallel()
	s, _ := newHandlerTestServer(t, &fakeRetriever{}, nil)

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL+"/metrics", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("want 200, got %d", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("want text/plain content-type, got %q", ct)
	}
}

func Test_Metrics_RetrieveCounterByMode(t *testing.T) {
	t.Parallel()
	ret := &fakeRetriever{hits: []rag.Hit{{Mode: rag.ModeKeyword, Score: 2}}}
	s, reg := newHandlerTestServer(t, ret, nil)

	for range 2 {
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/retrieve?q=photosynthesis", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
	}

	if got := counterValue(t, reg, "chapterdex_retrieve_requests_total", "outcome", "keyword"); got != 2 {
		t.Errorf("retrieve keyword counter = %v, want 2", got)
	}
	if got := counterValue(t, reg, "chapterdex_http_requests_total", labelHandler, "retrieve"); got != 2 {
		t.Errorf("http retrieve counter = %v, want 2", got)
	}
}

func Test_Metrics_EmptyOutcome(t *testing.T) {
	t.Parallel()
	s, reg := newHandlerTestServer(t, &fakeRetriever{}, nil)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/retrieve?q=nothing", nil))

	if got := counterValue(t, reg, "chapterdex_retrieve_requests_total", "outcome", "empty"); got != 1 {
		t.Errorf("retrieve empty counter = %v, want 1", got)
	}
}

// counterValue sums the counter samples of family name whose label key
// equals value.
func counterValue(t *testing.T, reg *prometheus.Registry, name, key, value string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var total float64
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == key && lp.GetValue() == value {
					total += m.GetCounter().GetValue()
				}
			}
		}
	}
	return total
}
