// Package server implements the read-only HTTP API over a built chunk
// index: passage retrieval with citations, the chapter list, the source
// PDFs the citations link to, and health, readiness and metrics endpoints.
// The server is started by the `chapterdex serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/chapterdex/internal/catalog"
	"github.com/54b3r/chapterdex/internal/logging"
	"github.com/54b3r/chapterdex/internal/rag"
)

// defaultMaxTopK caps the k parameter when Config.MaxTopK is unset.
const defaultMaxTopK = 50

// New constructs a Server from the provided retriever, catalog and config.
// cat may be nil, in which case /api/chapters returns an empty list.
func New(ret retriever, cat *catalog.Catalog, cfg *Config) (*Server, error) {
	if ret == nil {
		return nil, fmt.Errorf("server: retriever must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 60 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.MaxTopK == 0 {
		cfg.MaxTopK = defaultMaxTopK
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	s := &Server{
		retriever: ret,
		catalog:   cat,
		cfg:       cfg,
		log:       log,
		pingers:   cfg.Pingers,
		metrics:   newServerMetrics(cfg.MetricsRegistry),
	}

	rl, stop := newRateLimiter(cfg.RateLimit, cfg.RateBurst, log)
	s.stopRL = stop

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.routes(rl),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// routes builds the mux with middleware applied. Only /api/retrieve is
// rate limited; every route is logged and instrumented.
func (s *Server) routes(rl *rateLimiter) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /api/retrieve", s.instrument("retrieve", rl.middleware(http.HandlerFunc(s.handleRetrieve))))
	mux.Handle("GET /api/chapters", s.instrument("chapters", http.HandlerFunc(s.handleChapters)))
	mux.Handle("GET /api/health", s.instrument("health", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /api/ready", s.instrument("ready", http.HandlerFunc(s.handleReady)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.cfg.MetricsGatherer, promhttp.HandlerOpts{}))
	if s.cfg.ContentRoot != "" {
		files := http.StripPrefix("/files/", http.FileServer(http.Dir(s.cfg.ContentRoot)))
		mux.Handle("GET /files/", s.instrument("files", files))
	}
	return requestLogger(s.log, mux)
}

// Handler returns the fully wrapped HTTP handler. Used by tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()

	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleRetrieve handles GET /api/retrieve?q=&chapter=&k=.
func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	start := time.Now()

	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		http.Error(w, "q is required", http.StatusBadRequest)
		return
	}
	chapterID := strings.TrimSpace(r.URL.Query().Get("chapter"))

	k := 0
	if raw := r.URL.Query().Get("k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "k must be a positive integer", http.StatusBadRequest)
			return
		}
		k = min(n, s.cfg.MaxTopK)
	}

	hits, err := s.retriever.Retrieve(r.Context(), q, chapterID, k)
	if err != nil {
		s.metrics.retrieveRequestsTotal.WithLabelValues("error").Inc()
		log.Error("retrieve failed", slog.String("chapter_id", chapterID), slog.Any("error", err))
		if errors.Is(err, rag.ErrIndexNotFound) {
			http.Error(w, "index not built", http.StatusServiceUnavailable)
			return
		}
		http.Error(w, "retrieve failed", http.StatusInternalServerError)
		return
	}

	outcome := "empty"
	if len(hits) > 0 {
		outcome = hits[0].Mode
	}
	s.metrics.retrieveRequestsTotal.WithLabelValues(outcome).Inc()
	s.metrics.retrieveDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())

	log.Debug("retrieve",
		slog.String("chapter_id", chapterID),
		slog.Int("hits", len(hits)),
		slog.String("mode", outcome),
	)

	writeJSON(w, http.StatusOK, retrieveResponse{Query: q, ChapterID: chapterID, Hits: hits}, log)
}

// handleChapters handles GET /api/chapters.
func (s *Server) handleChapters(w http.ResponseWriter, r *http.Request) {
	resp := chaptersResponse{Chapters: []chapterSummary{}}
	if s.catalog != nil {
		for _, rec := range s.catalog.Records() {
			resp.Chapters = append(resp.Chapters, chapterSummary{
				ChapterID: rec.ChapterID,
				Title:     rec.Title,
				Grade:     rec.Grade,
				Subject:   rec.Subject,
				ChapterNo: rec.ChapterNo,
				Offset:    rec.Offset,
				Anchors:   len(rec.Anchors),
			})
		}
	}
	writeJSON(w, http.StatusOK, resp, logging.FromContext(r.Context()))
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, logging.FromContext(r.Context()))
}

// writeJSON writes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any, log *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("response encode error", slog.Any("error", err))
	}
}
