// Package app builds the scoring, search and enhancement services from a
// config.Specification. Both binaries share it.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/seanblong/geoscore/internal/ai"
	"github.com/seanblong/geoscore/internal/cache"
	"github.com/seanblong/geoscore/internal/chunker"
	"github.com/seanblong/geoscore/internal/config"
	"github.com/seanblong/geoscore/internal/embedding"
	"github.com/seanblong/geoscore/internal/rag"
	"github.com/seanblong/geoscore/internal/ratelimit"
	"github.com/seanblong/geoscore/internal/scoring"
	"github.com/seanblong/geoscore/internal/search"
	"github.com/seanblong/geoscore/internal/store"
)

// App holds the wired services. Search is nil when no embedding provider
// is configured; the enhancer then reports itself disabled.
type App struct {
	Engine   *scoring.Engine
	Search   *search.Service
	Enhancer *rag.Enhancer
	Store    store.DocumentStore

	cache cache.Store
}

// New wires every component. Missing provider credentials disable the
// optional features instead of failing: base scoring always works.
func New(ctx context.Context, cfg config.Specification, logger zerolog.Logger) (*App, error) {
	weights, err := cfg.Scoring.PillarWeights()
	if err != nil {
		return nil, err
	}
	engine, err := scoring.NewEngine(scoring.Options{
		Weights:    weights,
		AICrawlers: cfg.Scoring.AICrawlers,
		Logger:     &logger,
	})
	if err != nil {
		return nil, fmt.Errorf("scoring engine: %w", err)
	}
	a := &App{Engine: engine}

	emb, err := ai.NewEmbedder(ctx, cfg.EmbeddingClient())
	switch {
	case errors.Is(err, ai.ErrNotConfigured):
		logger.Warn().Err(err).Msg("embedding provider not configured; vector store disabled")
		a.Enhancer = rag.NewEnhancer(engine, nil, nil)
		return a, nil
	case err != nil:
		return nil, fmt.Errorf("embedding provider: %w", err)
	}
	logger.Info().Str("provider", cfg.Embedding.Provider).
		Str("model", emb.Model()).
		Int("dim", emb.Dim()).
		Msg("embedding provider initialized")

	st, err := openStore(ctx, cfg.Database, emb.Dim())
	if err != nil {
		return nil, err
	}
	a.Store = st

	if cfg.Cache.Enabled {
		if a.cache, err = openCache(ctx, cfg.Cache, logger); err != nil {
			st.Close()
			return nil, err
		}
	}

	svc := embedding.New(emb, embedding.Options{
		Cache:        a.cache,
		Limiter:      window(cfg.RateLimit.Requests, cfg.RateLimit),
		BatchLimiter: window(cfg.RateLimit.BatchRequests, cfg.RateLimit),
		Logger:       &logger,
	})

	strategy, err := chunker.ParseStrategy(cfg.Chunk.Strategy)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Search = search.NewService(svc, st)
	a.Search.Chunker = chunker.New(chunker.WithChunkSize(cfg.Chunk.Size), chunker.WithOverlap(cfg.Chunk.Overlap))
	a.Search.Strategy = strategy
	a.Search.Log = logger

	var llm ai.LLM
	llm, err = ai.NewLLM(ctx, cfg.LLMClient())
	switch {
	case errors.Is(err, ai.ErrNotConfigured):
		logger.Warn().Err(err).Msg("llm provider not configured; enhanced scoring disabled")
		// the constructors return typed nil pointers
		llm = nil
	case err != nil:
		a.Close()
		return nil, fmt.Errorf("llm provider: %w", err)
	default:
		logger.Info().Str("provider", cfg.LLM.Provider).Str("model", llm.Model()).Msg("llm provider initialized")
	}
	a.Enhancer = rag.NewEnhancer(engine, a.Search, llm)
	a.Enhancer.Log = logger
	return a, nil
}

// Close releases the store and cache.
func (a *App) Close() {
	if a.Store != nil {
		a.Store.Close()
	}
	if a.cache != nil {
		_ = a.cache.Close()
	}
}

// openStore connects to Postgres when url is set, otherwise keeps
// documents in memory.
func openStore(ctx context.Context, url string, dim int) (store.DocumentStore, error) {
	if url == "" {
		return store.NewMemory(), nil
	}
	pg, err := store.NewPostgres(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pg.Migrate(ctx, dim); err != nil {
		pg.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return pg, nil
}

func openCache(ctx context.Context, c config.CacheSpecification, logger zerolog.Logger) (cache.Store, error) {
	if c.Path == "" {
		return cache.NewMemory(c.TTL), nil
	}
	sq, err := cache.OpenSQLite(c.Path, c.TTL)
	if err != nil {
		return nil, fmt.Errorf("open embedding cache: %w", err)
	}
	// entries from earlier runs may have expired while the process was down
	n, err := sq.Purge(ctx)
	if err != nil {
		logger.Warn().Err(err).Str("path", c.Path).Msg("failed to purge expired cache entries")
	} else if n > 0 {
		logger.Info().Int64("purged", n).Str("path", c.Path).Msg("purged expired cache entries")
	}
	return sq, nil
}

func window(limit int, rl config.RateLimitSpecification) *ratelimit.Window {
	if limit <= 0 {
		return nil
	}
	return ratelimit.NewWindow(limit, rl.Window)
}
