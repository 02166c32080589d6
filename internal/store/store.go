// Package store provides a SQLite-backed embedding cache. Index rebuilds
// look up each chunk's vector by (model, text) before calling the remote
// embedding service, so unchanged chapters cost no embedding requests.
//
// The cache is a disposable accelerator: deleting the database file only
// makes the next build slower.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// EmbeddingCache stores float32 vectors keyed by sha256(model, text).
// It is safe for concurrent use.
type EmbeddingCache struct {
	db *sql.DB
}

// Open opens (or creates) the cache at path and runs the schema migration.
// Use ":memory:" in tests.
func Open(path string) (*EmbeddingCache, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: create dir for %s: %w", path, err)
		}
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Single connection: one writer, and ":memory:" databases are
	// per-connection.
	db.SetMaxOpenConns(1)

	c := &EmbeddingCache{db: db}
	if err := c.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

func (c *EmbeddingCache) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS embeddings (
    key         TEXT    PRIMARY KEY,
    model       TEXT    NOT NULL,
    dims        INTEGER NOT NULL,
    vector      BLOB    NOT NULL,
    created_at  INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_embeddings_model ON embeddings (model);
`
	if _, err := c.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Get returns the cached vector for (model, text).
func (c *EmbeddingCache) Get(ctx context.Context, model, text string) ([]float32, bool) {
	const q = `SELECT dims, vector FROM embeddings WHERE key = ?`
	var dims int
	var blob []byte
	if err := c.db.QueryRowContext(ctx, q, cacheKey(model, text)).Scan(&dims, &blob); err != nil {
		return nil, false
	}
	vec, ok := decodeVector(blob, dims)
	return vec, ok
}

// Put stores vec for (model, text), replacing any previous entry.
func (c *EmbeddingCache) Put(ctx context.Context, model, text string, vec []float32) error {
	const q = `INSERT OR REPLACE INTO embeddings (key, model, dims, vector, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := c.db.ExecContext(ctx, q, cacheKey(model, text), model, len(vec), encodeVector(vec), time.Now().Unix()); err != nil {
		return fmt.Errorf("store: put: %w", err)
	}
	return nil
}

// Count returns the number of cached vectors for model.
func (c *EmbeddingCache) Count(ctx context.Context, model string) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings WHERE model = ?`, model).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}

// Ping checks the database connection. It satisfies the readiness pinger
// interface used by the HTTP server.
func (c *EmbeddingCache) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close releases the database connection pool.
func (c *EmbeddingCache) Close() error {
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}

func cacheKey(model, text string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// encodeVector packs vec as little-endian float32s.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(blob []byte, dims int) ([]float32, bool) {
	if dims <= 0 || len(blob) != 4*dims {
		return nil, false
	}
	vec := make([]float32, dims)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[4*i:]))
	}
	return vec, true
}
