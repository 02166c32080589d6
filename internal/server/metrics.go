package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// labelHandler is the "handler" label used to partition metrics by the
// logical endpoint name rather than the raw URL path.
const labelHandler = "handler"

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New so that tests can inject a fresh
// prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// retrieveRequestsTotal counts /api/retrieve requests by outcome: the
	// mode of the winning strategy ("qdrant", "vector", "keyword"),
	// "empty" or "error".
	retrieveRequestsTotal *prometheus.CounterVec

	// retrieveDurationSeconds records retrieval latency by outcome.
	retrieveDurationSeconds *prometheus.HistogramVec

	// httpRequestsTotal counts all instrumented HTTP requests,
	// partitioned by method, handler, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all instrumented requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// newServerMetrics registers all server metrics against reg.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		retrieveRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chapterdex",
			Subsystem: "retrieve",
			Name:      "requests_total",
			Help:      "Total number of /api/retrieve requests, partitioned by outcome.",
		}, []string{"outcome"}),

		retrieveDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chapterdex",
			Subsystem: "retrieve",
			Name:      "duration_seconds",
			Help:      "Latency of /api/retrieve requests, partitioned by outcome.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"outcome"}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chapterdex",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chapterdex",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}

// instrument wraps next with the per-handler HTTP counters.
func (s *Server) instrument(handler string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rw, r)

		s.metrics.httpRequestsTotal.WithLabelValues(r.Method, handler, strconv.Itoa(rw.status)).Inc()
		s.metrics.httpDurationSeconds.WithLabelValues(r.Method, handler).Observe(time.Since(start).Seconds())
	})
}
