package commands

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/54b3r/chapterdex/internal/config"
	"github.com/54b3r/chapterdex/internal/logging"
	"github.com/54b3r/chapterdex/internal/server"
)

// NewServeCmd constructs the `chapterdex serve` command, which starts the
// read-only HTTP retrieval API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int
	var global bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP retrieval API",
		Long: `Start the HTTP server over the built index.

Endpoints:
  GET /api/retrieve?q=&chapter=&k=   ranked passages with citations
  GET /api/chapters                  chapters in the manifest
  GET /files/<path>                  source PDFs (citation link target)
  GET /api/health                    liveness
  GET /api/ready                     readiness (index, qdrant, embedding cache)
  GET /metrics                       Prometheus metrics

Citation URLs use PUBLIC_BASE_URL, defaulting to http://<host>:<port>.
/api/retrieve is rate limited per client IP (RETRIEVE_RPS, RETRIEVE_BURST).

Examples:
  chapterdex serve
  chapterdex serve --port 9090
  PUBLIC_BASE_URL=https://books.example.org chapterdex serve --host 0.0.0.0`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.FromContext(ctx)

			s, err := config.LoadSettings()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				s.Host = host
			}
			if cmd.Flags().Changed("port") {
				s.Port = port
			}
			baseURL := s.PublicBaseURL
			if baseURL == "" {
				baseURL = "http://" + s.Addr()
			}

			stack, err := buildRetrieval(ctx, s, baseURL, global, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer stack.Close()

			// Load eagerly so a missing index shows up at startup, not on
			// the first request.
			if idx, err := stack.Loader(); err != nil {
				log.Warn("serve: index not loaded, /api/retrieve will fail until build-index runs", slog.Any("error", err))
			} else {
				log.Info("serve: index loaded", slog.Int("chunks", len(idx.List)), slog.Int("vectors", idx.VectorCount()))
			}

			pingers := []server.Pinger{server.NewIndexPinger(stack.Loader)}
			if stack.Qdrant != nil {
				pingers = append(pingers, server.NewNamedPinger("qdrant", stack.Qdrant))
			}
			if stack.Cache != nil {
				pingers = append(pingers, server.NewNamedPinger("embedding-cache", stack.Cache))
			}

			srv, err := server.New(stack.Retriever, stack.Catalog, &server.Config{
				Host:        s.Host,
				Port:        s.Port,
				Logger:      log,
				Pingers:     pingers,
				RateLimit:   s.RetrieveRPS,
				RateBurst:   s.RetrieveBurst,
				ContentRoot: s.ContentRoot,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			log.Info("serve starting", slog.String("addr", s.Addr()), slog.String("public_base_url", baseURL))
			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to (overrides CHAPTERDEX_HOST)")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on (overrides CHAPTERDEX_PORT)")
	cmd.Flags().BoolVar(&global, "global-fallback", false, "Search the whole index when the requested chapter has no chunks")

	return cmd
}
