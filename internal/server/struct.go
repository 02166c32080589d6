package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/chapterdex/internal/catalog"
	"github.com/54b3r/chapterdex/internal/rag"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [slog.Default] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on
	// /api/retrieve (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// ContentRoot is the directory served under /files/. Citation links
	// point here. Empty disables the file route.
	ContentRoot string
	// MaxTopK caps the k parameter. Defaults to 50.
	MaxTopK int
	// MetricsRegistry receives the server metrics. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to
	// prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// retriever is the interface handleRetrieve calls. *rag.Retriever
// satisfies it; tests inject a fake.
type retriever interface {
	Retrieve(ctx context.Context, query, chapterID string, topK int) ([]rag.Hit, error)
}

// Server is the read-only HTTP front end over a built index.
type Server struct {
	// retriever answers /api/retrieve.
	retriever retriever
	// catalog answers /api/chapters. May be nil.
	catalog *catalog.Catalog
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus collectors for this server.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// retrieveResponse is the JSON response for GET /api/retrieve.
type retrieveResponse struct {
	// Query echoes the trimmed query string.
	Query string `json:"query"`
	// ChapterID echoes the chapter scope, if any.
	ChapterID string `json:"chapterId,omitempty"`
	// Hits are the ranked passages, best first.
	Hits []rag.Hit `json:"hits"`
}

// chapterSummary is one entry of the GET /api/chapters response.
type chapterSummary struct {
	ChapterID string `json:"chapterId"`
	Title     string `json:"title"`
	Grade     int    `json:"grade"`
	Subject   string `json:"subject"`
	ChapterNo int    `json:"chapterNo"`
	Offset    int    `json:"offset"`
	Anchors   int    `json:"anchors"`
}

// chaptersResponse is the JSON response for GET /api/chapters.
type chaptersResponse struct {
	Chapters []chapterSummary `json:"chapters"`
}
