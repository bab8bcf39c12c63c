// Package embedding turns text into vectors with truncation, caching and
// per-tenant rate limiting in front of an ai.Embedder.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/seanblong/geoscore/internal/ai"
	"github.com/seanblong/geoscore/internal/cache"
	"github.com/seanblong/geoscore/internal/ratelimit"
	"github.com/seanblong/geoscore/internal/textutil"
)

const (
	DefaultMaxTokens     = 7500
	DefaultCharsPerToken = 3
	// MaxBatchSize is the largest batch EmbedBatch accepts.
	MaxBatchSize = 100
	// DefaultProviderBatch is how many texts go to the provider per request.
	DefaultProviderBatch = 50
)

var (
	ErrEmptyText         = errors.New("embedding: text is empty")
	ErrBatchTooLarge     = fmt.Errorf("embedding: batch exceeds %d texts", MaxBatchSize)
	ErrDimensionMismatch = errors.New("embedding: dimension mismatch")
)

// Scope identifies who is asking, for cache isolation and rate limiting.
type Scope struct {
	TenantID string
	ClientIP string
	// NoCache skips both cache reads and writes.
	NoCache bool
}

type clientIPKey struct{}

// WithClientIP returns a copy of ctx carrying the caller's address. It keys
// the rate limit for requests without a tenant.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// ClientIPFromContext returns the address stored by WithClientIP, or "".
func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}

func (s Scope) suffix() string {
	if s.TenantID == "" {
		return "global"
	}
	return "tenant:" + s.TenantID
}

// Options configures a Service. Zero values select the defaults; nil cache
// and limiters disable those features.
type Options struct {
	Cache         cache.Store
	Limiter       *ratelimit.Window
	BatchLimiter  *ratelimit.Window
	MaxTokens     int
	CharsPerToken int
	ProviderBatch int
	Logger        *zerolog.Logger
}

// Service is safe for concurrent use.
type Service struct {
	provider      ai.Embedder
	cache         cache.Store
	limiter       *ratelimit.Window
	batchLimiter  *ratelimit.Window
	maxChars      int
	providerBatch int
	log           zerolog.Logger
}

func New(provider ai.Embedder, opts Options) *Service {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	cpt := opts.CharsPerToken
	if cpt <= 0 {
		cpt = DefaultCharsPerToken
	}
	pb := opts.ProviderBatch
	if pb <= 0 || pb > MaxBatchSize {
		pb = DefaultProviderBatch
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Service{
		provider:      provider,
		cache:         opts.Cache,
		limiter:       opts.Limiter,
		batchLimiter:  opts.BatchLimiter,
		maxChars:      maxTokens * cpt,
		providerBatch: pb,
		log:           logger,
	}
}

// Dim returns the provider's vector dimension.
func (s *Service) Dim() int { return s.provider.Dim() }

// Model returns the provider's model id.
func (s *Service) Model() string { return s.provider.Model() }

// prepare truncates, normalises and truncates again.
func (s *Service) prepare(text string) string {
	text = textutil.Truncate(text, s.maxChars)
	text = strings.TrimSpace(textutil.CollapseWhitespace(text))
	return textutil.Truncate(text, s.maxChars)
}

// CacheKey is sha256 over the prepared text, model and tenant scope.
func (s *Service) CacheKey(prepared string, scope Scope) string {
	h := sha256.New()
	h.Write([]byte(prepared))
	h.Write([]byte{0})
	h.Write([]byte(s.provider.Model()))
	h.Write([]byte{0})
	h.Write([]byte(scope.suffix()))
	return "emb:" + hex.EncodeToString(h.Sum(nil))
}

// Embed returns the vector for text. Cache hits never touch the limiter.
func (s *Service) Embed(ctx context.Context, text string, scope Scope) ([]float32, error) {
	prepared := s.prepare(text)
	if prepared == "" {
		return nil, ErrEmptyText
	}
	key := s.CacheKey(prepared, scope)
	if vec, ok := s.lookup(ctx, key, scope); ok {
		return vec, nil
	}

	if err := s.limiter.Allow(ratelimit.Key(scope.TenantID, scope.ClientIP), 1); err != nil {
		return nil, err
	}
	vecs, err := s.provider.Embed(ctx, []string{prepared})
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed: provider returned %d vectors for 1 text", len(vecs))
	}
	if err := s.checkDim(vecs[0]); err != nil {
		return nil, err
	}
	s.store(ctx, key, vecs[0], scope)
	return vecs[0], nil
}

// EmbedBatch embeds texts preserving order. Batches over MaxBatchSize are
// rejected before any work; only cache misses reach the provider, in
// sequential pages.
func (s *Service) EmbedBatch(ctx context.Context, texts []string, scope Scope) ([][]float32, error) {
	if len(texts) > MaxBatchSize {
		return nil, ErrBatchTooLarge
	}
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	prepared := make([]string, len(texts))
	keys := make([]string, len(texts))
	var misses []int
	for i, t := range texts {
		prepared[i] = s.prepare(t)
		if prepared[i] == "" {
			return nil, fmt.Errorf("text %d: %w", i, ErrEmptyText)
		}
		keys[i] = s.CacheKey(prepared[i], scope)
		if vec, ok := s.lookup(ctx, keys[i], scope); ok {
			out[i] = vec
			continue
		}
		misses = append(misses, i)
	}
	if len(misses) == 0 {
		return out, nil
	}

	if err := s.batchLimiter.Allow(ratelimit.Key(scope.TenantID, scope.ClientIP), 1); err != nil {
		return nil, err
	}

	for start := 0; start < len(misses); start += s.providerBatch {
		page := misses[start:min(start+s.providerBatch, len(misses))]
		inputs := make([]string, len(page))
		for j, idx := range page {
			inputs[j] = prepared[idx]
		}
		vecs, err := s.provider.Embed(ctx, inputs)
		if err != nil {
			return nil, fmt.Errorf("embed batch: %w", err)
		}
		if len(vecs) != len(page) {
			return nil, fmt.Errorf("embed batch: provider returned %d vectors for %d texts", len(vecs), len(page))
		}
		for j, idx := range page {
			if err := s.checkDim(vecs[j]); err != nil {
				return nil, err
			}
			out[idx] = vecs[j]
			s.store(ctx, keys[idx], vecs[j], scope)
		}
	}
	s.log.Debug().
		Int("texts", len(texts)).
		Int("misses", len(misses)).
		Str("scope", scope.suffix()).
		Msg("embedded batch")
	return out, nil
}

func (s *Service) checkDim(v []float32) error {
	if want := s.provider.Dim(); want > 0 && len(v) != want {
		return fmt.Errorf("%w: provider returned %d, want %d", ErrDimensionMismatch, len(v), want)
	}
	return nil
}

func (s *Service) lookup(ctx context.Context, key string, scope Scope) ([]float32, bool) {
	if s.cache == nil || scope.NoCache {
		return nil, false
	}
	vec, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.log.Warn().Err(err).Msg("embedding cache read failed")
		return nil, false
	}
	return vec, ok
}

func (s *Service) store(ctx context.Context, key string, vec []float32, scope Scope) {
	if s.cache == nil || scope.NoCache {
		return
	}
	if err := s.cache.Set(ctx, key, vec); err != nil {
		s.log.Warn().Err(err).Msg("embedding cache write failed")
	}
}
