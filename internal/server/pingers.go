package server

import (
	"context"
	"fmt"

	"github.com/54b3r/chapterdex/internal/rag"
)

// IndexPinger reports the chunk index as ready once it loads and holds at
// least one chunk. It satisfies the Pinger interface.
type IndexPinger struct {
	// load is the memoized index loader shared with the retriever.
	load func() (*rag.Index, error)
}

// NewIndexPinger constructs an IndexPinger over load, typically [rag.NewLoader].
func NewIndexPinger(load func() (*rag.Index, error)) *IndexPinger {
	return &IndexPinger{load: load}
}

// Name returns the dependency label used in readiness responses.
func (p *IndexPinger) Name() string { return "index" }

// Ping loads the index through the shared loader.
func (p *IndexPinger) Ping(_ context.Context) error {
	idx, err := p.load()
	if err != nil {
		return err
	}
	if len(idx.List) == 0 {
		return fmt.Errorf("index is empty")
	}
	return nil
}

// pingable is anything exposing a context-aware Ping, such as
// *rag.QdrantStore or *store.EmbeddingCache.
type pingable interface {
	Ping(ctx context.Context) error
}

// namedPinger adapts a pingable dependency to the Pinger interface.
type namedPinger struct {
	name string
	dep  pingable
}

// NewNamedPinger labels dep as name in readiness responses.
func NewNamedPinger(name string, dep pingable) Pinger {
	return &namedPinger{name: name, dep: dep}
}

// Name returns the dependency label.
func (p *namedPinger) Name() string { return p.name }

// Ping delegates to the wrapped dependency.
func (p *namedPinger) Ping(ctx context.Context) error {
	if err := p.dep.Ping(ctx); err != nil {
		return fmt.Errorf("%s ping failed: %w", p.name, err)
	}
	return nil
}
