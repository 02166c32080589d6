package store

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
)

// openTestCache opens an in-memory cache for use in tests.
func openTestCache(t *testing.T) *EmbeddingCache {
	t.Helper()
	c, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open in-memory cache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func Test_Cache_PutAndGet(t *testing.T) {
	t.Parallel()
	c := openTestCache(t)
	ctx := context.Background()

	vec := []float32{0.25, -1.5, 3e-7}
	if err := c.Put(ctx, "text-embedding-3-small", "Matter is made of particles.", vec); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, ok := c.Get(ctx, "text-embedding-3-small", "Matter is made of particles.")
	if !ok {
		t.Fatal("get: miss after put")
	}
	if !reflect.DeepEqual(got, vec) {
		t.Errorf("get = %v, want %v", got, vec)
	}
}

func Test_Cache_KeyedByModel(t *testing.T) {
	t.Parallel()
	c := openTestCache(t)
	ctx := context.Background()

	if err := c.Put(ctx, "model-a", "same text", []float32{1}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, ok := c.Get(ctx, "model-b", "same text"); ok {
		t.Error("vector for model-a returned for model-b")
	}
	if n, err := c.Count(ctx, "model-a"); err != nil || n != 1 {
		t.Errorf("Count(model-a) = (%d, %v), want 1", n, err)
	}
}

func Test_Cache_Replace(t *testing.T) {
	t.Parallel()
	c := openTestCache(t)
	ctx := context.Background()

	_ = c.Put(ctx, "m", "t", []float32{1, 2})
	_ = c.Put(ctx, "m", "t", []float32{3})
	got, ok := c.Get(ctx, "m", "t")
	if !ok || !reflect.DeepEqual(got, []float32{3}) {
		t.Errorf("get after replace = (%v, %v), want [3]", got, ok)
	}
}

func Test_Cache_PersistsOnDisk(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "cache", "embeddings.db")
	ctx := context.Background()

	c, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := c.Put(ctx, "m", "persisted", []float32{7}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = reopened.Close() })
	if err := reopened.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if _, ok := reopened.Get(ctx, "m", "persisted"); !ok {
		t.Error("vector lost after reopen")
	}
}
