package app

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/seanblong/geoscore/internal/cache"
	"github.com/seanblong/geoscore/internal/chunker"
	"github.com/seanblong/geoscore/internal/config"
	"github.com/seanblong/geoscore/internal/rag"
	"github.com/seanblong/geoscore/internal/scoring"
	"github.com/seanblong/geoscore/internal/store"
)

func stubSpec() config.Specification {
	return config.Specification{
		Embedding: config.EmbeddingSpecification{Provider: "stub", Dim: 32},
		LLM:       config.LLMSpecification{Provider: "stub"},
		Chunk:     config.ChunkSpecification{Strategy: "paragraph", Size: 600, Overlap: 100},
		RateLimit: config.RateLimitSpecification{Requests: 100, BatchRequests: 10, Window: time.Minute},
		Cache:     config.CacheSpecification{Enabled: true},
	}
}

func TestNewWithStubProviders(t *testing.T) {
	a, err := New(context.Background(), stubSpec(), zerolog.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer a.Close()

	if a.Engine == nil || a.Search == nil || a.Enhancer == nil {
		t.Fatalf("Expected all services, got %+v", a)
	}
	if !a.Enhancer.Enabled() {
		t.Error("Expected enhancer to be enabled with stub providers")
	}
	if _, ok := a.Store.(*store.Memory); !ok {
		t.Errorf("Expected in-memory store without a database url, got %T", a.Store)
	}
	if a.Search.Strategy != chunker.Paragraph || a.Search.Chunker.Size() != 600 || a.Search.Chunker.Overlap() != 100 {
		t.Errorf("Chunk settings not applied: %s %d %d", a.Search.Strategy, a.Search.Chunker.Size(), a.Search.Chunker.Overlap())
	}

	ctx := context.Background()
	in := scoring.ScanInput{
		HTML: `<html><head><title>Apples</title></head><body><h1>Apples</h1>
<p>An apple is a sweet, edible fruit produced by an apple tree. Apple trees are cultivated worldwide.</p></body></html>`,
		URL: "https://example.com/apples",
	}
	res, err := a.Enhancer.ScorePageEnhanced(ctx, "acme", in)
	if err != nil {
		t.Fatalf("ScorePageEnhanced failed: %v", err)
	}
	if res.Grade == "" {
		t.Error("Expected a graded base score")
	}
	if res.Status != rag.StatusOK {
		t.Errorf("Expected status %q, got %q (%s)", rag.StatusOK, res.Status, res.Reason)
	}
}

func TestNewWithoutCredentials(t *testing.T) {
	cfg := stubSpec()
	cfg.Embedding.Provider = "openai"

	a, err := New(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("Missing credentials should not fail startup: %v", err)
	}
	defer a.Close()

	if a.Search != nil || a.Store != nil {
		t.Error("Expected the vector store to be disabled")
	}
	if a.Enhancer.Enabled() {
		t.Error("Expected the enhancer to be disabled")
	}
	res, err := a.Enhancer.ScorePageEnhanced(context.Background(), "acme", scoring.ScanInput{HTML: "<p>hi</p>"})
	if err != nil || res.Status != rag.StatusDisabled {
		t.Errorf("Expected disabled base result, got %q, %v", res.Status, err)
	}
}

func TestNewLLMWithoutCredentials(t *testing.T) {
	cfg := stubSpec()
	cfg.LLM.Provider = "anthropic"

	a, err := New(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer a.Close()

	if a.Search == nil {
		t.Error("Expected search to stay available")
	}
	if a.Enhancer.Enabled() {
		t.Error("Expected the enhancer to be disabled without an llm")
	}
}

func TestNewWithSQLiteCache(t *testing.T) {
	cfg := stubSpec()
	cfg.Cache.Path = filepath.Join(t.TempDir(), "cache.db")

	a, err := New(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer a.Close()

	if _, err := a.Search.AddDocument(context.Background(), "acme", "T", "some content to embed", nil, false); err != nil {
		t.Errorf("AddDocument failed: %v", err)
	}
}

func TestNewPurgesExpiredCacheEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	sq, err := cache.OpenSQLite(path, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if err := sq.Set(context.Background(), "fresh", []float32{1}); err != nil {
		t.Fatal(err)
	}
	sq.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if _, err := db.Exec(`INSERT INTO embeddings (key, vector, expires_at) VALUES ('stale', x'', 1)`); err != nil {
		t.Fatal(err)
	}

	cfg := stubSpec()
	cfg.Cache.Path = path
	a, err := New(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer a.Close()

	var keys []string
	rows, err := db.Query(`SELECT key FROM embeddings ORDER BY key`)
	if err != nil {
		t.Fatal(err)
	}
	defer rows.Close()
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			t.Fatal(err)
		}
		keys = append(keys, k)
	}
	if len(keys) != 1 || keys[0] != "fresh" {
		t.Errorf("cache keys after startup = %v, want [fresh]", keys)
	}
}

func TestNewRejectsBadWeights(t *testing.T) {
	cfg := stubSpec()
	cfg.Scoring.Weights = map[string]float64{"speed": 1}
	if _, err := New(context.Background(), cfg, zerolog.Nop()); err == nil {
		t.Error("Expected an error for an unknown pillar weight")
	}
}
