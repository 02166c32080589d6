package embedder

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"

	"github.com/54b3r/chapterdex/internal/fallback"
	"github.com/54b3r/chapterdex/internal/metrics"
)

// DefaultBatchSize is the number of texts sent per embedding request.
const DefaultBatchSize = 8

// Cache stores vectors by (model, text). Implementations must be safe for
// concurrent use.
type Cache interface {
	Get(ctx context.Context, model, text string) ([]float32, bool)
	Put(ctx context.Context, model, text string, vec []float32) error
}

// ClientConfig configures a [Client].
type ClientConfig struct {
	// Backend performs the remote calls. nil means no credential is
	// configured and every text is keyword-only.
	Backend Embedder
	// Model keys the cache. Required when Cache is set.
	Model string
	// Disabled turns embedding off without touching the network.
	Disabled bool
	// BatchSize is the chunking unit used by EmbedAll. Defaults to 8.
	BatchSize int
	// RequestsPerSecond paces backend calls when > 0.
	RequestsPerSecond float64
	// Cache is an optional vector cache consulted before the backend.
	Cache Cache
	// Metrics records batch outcomes. May be nil.
	Metrics *metrics.Pipeline
	// Logger receives degrade-mode and failure logs. Defaults to slog.Default.
	Logger *slog.Logger
}

// Client embeds text batches and never fails: any text it cannot embed
// gets a nil vector, which downstream means keyword-only retrieval.
type Client struct {
	backend   Embedder
	model     string
	disabled  bool
	batchSize int
	limiter   *rate.Limiter
	cache     Cache
	metrics   *metrics.Pipeline
	log       *slog.Logger

	degradedOnce sync.Once
}

// NewClient constructs a Client from cfg.
func NewClient(cfg ClientConfig) *Client {
	c := &Client{
		backend:   cfg.Backend,
		model:     cfg.Model,
		disabled:  cfg.Disabled,
		batchSize: cfg.BatchSize,
		cache:     cfg.Cache,
		metrics:   cfg.Metrics,
		log:       cfg.Logger,
	}
	if c.batchSize <= 0 {
		c.batchSize = DefaultBatchSize
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return c
}

// Enabled reports whether the client can produce vectors at all.
func (c *Client) Enabled() bool {
	return !c.disabled && c.backend != nil
}

// BatchSize returns the configured batch size.
func (c *Client) BatchSize() int {
	return c.batchSize
}

// EmbedBatch returns one vector per text, in order. Entries are nil when
// embedding is disabled, no credential is configured, or the backend call
// fails; backend failures are logged as warnings and absorbed.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) [][]float32 {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out
	}

	res, err := fallback.First(ctx,
		fallback.Strategy[string]{Name: "disabled", Run: func(context.Context) (string, error) {
			if c.disabled {
				return metrics.OutcomeDisabled, nil
			}
			return "", fallback.ErrSkip
		}},
		fallback.Strategy[string]{Name: "no-credential", Run: func(context.Context) (string, error) {
			if c.backend == nil {
				return metrics.OutcomeDisabled, nil
			}
			return "", fallback.ErrSkip
		}},
		fallback.Strategy[string]{Name: "remote", Run: func(ctx context.Context) (string, error) {
			return c.embedRemote(ctx, texts, out)
		}},
	)
	if err != nil {
		// The remote strategy failed: nothing but cache hits survive.
		c.metrics.EmbedBatch(metrics.OutcomeFailed)
		return out
	}
	if res.Name != "remote" {
		c.degradedOnce.Do(func() {
			c.log.Info("embedder: embeddings unavailable, using keyword-only retrieval",
				slog.String("reason", res.Name),
			)
		})
	}
	c.metrics.EmbedBatch(res.Value)
	return out
}

// EmbedAll embeds texts in batches of BatchSize and returns the
// concatenated results.
func (c *Client) EmbedAll(ctx context.Context, texts []string) [][]float32 {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := min(start+c.batchSize, len(texts))
		out = append(out, c.EmbedBatch(ctx, texts[start:end])...)
	}
	return out
}

// EmbedQuery embeds a single query. It returns nil when no vector is
// available.
func (c *Client) EmbedQuery(ctx context.Context, query string) []float32 {
	return c.EmbedBatch(ctx, []string{query})[0]
}

// embedRemote fills out from the cache and then the backend. It returns
// the batch outcome label, or an error when the backend call failed.
func (c *Client) embedRemote(ctx context.Context, texts []string, out [][]float32) (string, error) {
	var missIdx []int
	var missTexts []string
	for i, t := range texts {
		if c.cache != nil {
			if v, ok := c.cache.Get(ctx, c.model, t); ok {
				out[i] = v
				continue
			}
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}
	if len(missIdx) == 0 {
		return metrics.OutcomeCached, nil
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			c.log.Warn("embedder: rate limiter wait aborted", slog.String("error", err.Error()))
			return "", err
		}
	}

	vecs, err := c.backend.Embed(ctx, missTexts)
	if err != nil {
		attrs := []any{
			slog.Int("batch_size", len(missTexts)),
			slog.String("error", err.Error()),
		}
		var serr *StatusError
		if errors.As(err, &serr) {
			attrs = append(attrs, slog.Int("status", serr.StatusCode))
		}
		c.log.Warn("embedder: embedding request failed, batch falls back to keyword-only", attrs...)
		return "", err
	}

	for j, i := range missIdx {
		out[i] = vecs[j]
		if c.cache != nil && len(vecs[j]) > 0 {
			if err := c.cache.Put(ctx, c.model, texts[i], vecs[j]); err != nil {
				c.log.Debug("embedder: cache write failed", slog.String("error", err.Error()))
			}
		}
	}
	return metrics.OutcomeOK, nil
}
