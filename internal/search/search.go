// Package search is the tenant-scoped vector store: it chunks and embeds
// documents on the way in and ranks them on the way out.
package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog"

	"github.com/seanblong/geoscore/internal/chunker"
	"github.com/seanblong/geoscore/internal/embedding"
	"github.com/seanblong/geoscore/internal/ratelimit"
	"github.com/seanblong/geoscore/internal/store"
	"github.com/seanblong/geoscore/pkg/models"
)

var (
	ErrNoEmbedding     = errors.New("search: document has no embedding")
	ErrFiltersRequired = errors.New("search: delete requires at least one filter")
	ErrInvalidWeight   = errors.New("search: semantic weight must be within [0,1]")
)

// Metadata keys written by AddDocument.
const (
	MetaParentTitle = "parent_title"
	MetaTotalChunks = "total_chunks"
	MetaChunkIndex  = "chunk_index"
	MetaChunkType   = "chunk_type"
	MetaHeading     = "section_heading"
	MetaIsSummary   = "is_summary"
	MetaSourceType  = "source_type"
)

// Embedder is the subset of embedding.Service the search service needs.
type Embedder interface {
	Embed(ctx context.Context, text string, scope embedding.Scope) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string, scope embedding.Scope) ([][]float32, error)
}

type Service struct {
	Embedder Embedder
	Store    store.DocumentStore
	Chunker  *chunker.Chunker
	Strategy chunker.Strategy
	Log      zerolog.Logger
}

// NewService creates a search service using the default chunker.
func NewService(emb Embedder, st store.DocumentStore) *Service {
	return &Service{
		Embedder: emb,
		Store:    st,
		Chunker:  chunker.New(),
		Strategy: chunker.Semantic,
		Log:      zerolog.Nop(),
	}
}

func scope(ctx context.Context, tenant string) embedding.Scope {
	return embedding.Scope{TenantID: tenant, ClientIP: embedding.ClientIPFromContext(ctx)}
}

// AddDocument stores content for tenant. With chunk set it stores one
// document per chunk plus a summary document, embedded together; every
// document carries the parent title and the total chunk count. Adding the
// same content twice stores it twice.
func (s *Service) AddDocument(ctx context.Context, tenant, title, content string, metadata map[string]any, chunk bool) ([]models.Document, error) {
	if tenant == "" {
		return nil, store.ErrTenantRequired
	}
	if strings.TrimSpace(content) == "" {
		return nil, embedding.ErrEmptyText
	}

	var docs []models.Document
	if chunk {
		docs = s.chunkDocuments(tenant, title, content, metadata)
	}
	if len(docs) == 0 {
		md := copyMeta(metadata)
		md[MetaParentTitle] = title
		md[MetaTotalChunks] = 1
		docs = []models.Document{{
			TenantID: tenant,
			Title:    title,
			Content:  content,
			Metadata: md,
		}}
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	vecs, err := s.embedAll(ctx, texts, scope(ctx, tenant))
	if err != nil {
		return nil, err
	}
	for i := range docs {
		docs[i].Embedding = vecs[i]
	}
	if err := s.Store.Insert(ctx, docs); err != nil {
		return nil, fmt.Errorf("insert documents: %w", err)
	}
	s.Log.Debug().
		Str("tenant", tenant).
		Str("title", title).
		Int("documents", len(docs)).
		Msg("added document")
	return docs, nil
}

func (s *Service) chunkDocuments(tenant, title, content string, metadata map[string]any) []models.Document {
	ch := s.Chunker
	if ch == nil {
		ch = chunker.New()
	}
	sourceType, _ := metadata[MetaSourceType].(string)
	chunks := ch.Chunk(content, models.ChunkMetadata{SourceTitle: title, SourceType: sourceType}, s.Strategy)
	if len(chunks) == 0 {
		return nil
	}

	summary := ch.Summary(title, content)
	summary.Metadata.SourceType = sourceType
	all := append([]models.Chunk{summary}, chunks...)

	docs := make([]models.Document, len(all))
	for i, c := range all {
		md := copyMeta(metadata)
		md[MetaParentTitle] = title
		md[MetaTotalChunks] = len(all)
		md[MetaChunkIndex] = i
		md[MetaChunkType] = string(c.Metadata.ChunkType)
		md[MetaIsSummary] = c.Metadata.IsSummary
		if c.Metadata.SectionHeading != "" {
			md[MetaHeading] = c.Metadata.SectionHeading
		}
		docs[i] = models.Document{
			TenantID: tenant,
			Title:    title,
			Content:  c.Content,
			Metadata: md,
		}
	}
	return docs
}

// embedAll embeds texts in batches no larger than embedding.MaxBatchSize.
func (s *Service) embedAll(ctx context.Context, texts []string, sc embedding.Scope) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += embedding.MaxBatchSize {
		vecs, err := s.Embedder.EmbedBatch(ctx, texts[start:min(start+embedding.MaxBatchSize, len(texts))], sc)
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// Search embeds query and returns tenant documents at or above threshold,
// most similar first.
func (s *Service) Search(ctx context.Context, tenant, query string, limit int, threshold float64, filters models.Filters) ([]models.RankedDocument, error) {
	if tenant == "" {
		return nil, store.ErrTenantRequired
	}
	vec, err := s.Embedder.Embed(ctx, query, scope(ctx, tenant))
	if err != nil {
		return nil, err
	}
	return s.Store.Search(ctx, tenant, vec, store.Query{Limit: limit, Threshold: threshold, Filters: filters})
}

// HybridSearch ranks by semanticWeight*semantic + (1-semanticWeight)*keyword.
// If the query cannot be embedded for any reason other than rate limiting
// the ranking falls back to keywords alone.
func (s *Service) HybridSearch(ctx context.Context, tenant, query string, limit int, semanticWeight float64, filters models.Filters) ([]models.RankedDocument, error) {
	if tenant == "" {
		return nil, store.ErrTenantRequired
	}
	if semanticWeight < 0 || semanticWeight > 1 || math.IsNaN(semanticWeight) {
		return nil, ErrInvalidWeight
	}
	vec, err := s.Embedder.Embed(ctx, query, scope(ctx, tenant))
	switch {
	case err == nil:
	case ratelimit.IsLimited(err), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, err
	default:
		s.Log.Warn().Err(err).Str("tenant", tenant).Msg("query embedding failed, ranking by keywords only")
		vec = nil
	}
	return s.Store.HybridSearch(ctx, tenant, vec, query, semanticWeight, store.Query{Limit: limit, Filters: filters})
}

// FindSimilar ranks tenant documents against the stored embedding of
// documentID, excluding the document itself.
func (s *Service) FindSimilar(ctx context.Context, tenant, documentID string, limit int, threshold float64) ([]models.RankedDocument, error) {
	seed, err := s.seed(ctx, tenant, documentID)
	if err != nil {
		return nil, err
	}
	return s.Store.Search(ctx, tenant, seed.Embedding, store.Query{
		Limit:      limit,
		Threshold:  threshold,
		ExcludeIDs: []string{seed.ID},
	})
}

// GetCluster is FindSimilar around centroidID with the centroid itself
// first at similarity 1.
func (s *Service) GetCluster(ctx context.Context, tenant, centroidID string, threshold float64, limit int) ([]models.RankedDocument, error) {
	seed, err := s.seed(ctx, tenant, centroidID)
	if err != nil {
		return nil, err
	}
	similar, err := s.Store.Search(ctx, tenant, seed.Embedding, store.Query{
		Limit:      limit,
		Threshold:  threshold,
		ExcludeIDs: []string{seed.ID},
	})
	if err != nil {
		return nil, err
	}
	out := make([]models.RankedDocument, 0, len(similar)+1)
	out = append(out, models.RankedDocument{Document: seed, Similarity: 1, Score: 1})
	return append(out, similar...), nil
}

func (s *Service) seed(ctx context.Context, tenant, id string) (models.Document, error) {
	if tenant == "" {
		return models.Document{}, store.ErrTenantRequired
	}
	d, err := s.Store.Get(ctx, tenant, id)
	if err != nil {
		return models.Document{}, err
	}
	if len(d.Embedding) == 0 {
		return models.Document{}, fmt.Errorf("%s: %w", id, ErrNoEmbedding)
	}
	return d, nil
}

// TopicCoherence is the mean pairwise cosine similarity of the embedded
// documents among ids. Fewer than two ids is perfectly coherent; fewer than
// two embedded documents is 0.
func (s *Service) TopicCoherence(ctx context.Context, tenant string, ids []string) (float64, error) {
	if tenant == "" {
		return 0, store.ErrTenantRequired
	}
	if len(ids) < 2 {
		return 1, nil
	}
	docs, err := s.Store.GetMany(ctx, tenant, ids)
	if err != nil {
		return 0, err
	}
	var vecs [][]float32
	for _, d := range docs {
		if len(d.Embedding) > 0 {
			vecs = append(vecs, d.Embedding)
		}
	}
	if len(vecs) < 2 {
		return 0, nil
	}
	var sum float64
	pairs := 0
	for i := 0; i < len(vecs); i++ {
		for j := i + 1; j < len(vecs); j++ {
			sim, err := embedding.CosineSimilarity(vecs[i], vecs[j])
			if err != nil {
				return 0, err
			}
			sum += sim
			pairs++
		}
	}
	return sum / float64(pairs), nil
}

// SiteSimilarity compares text with the centroid of the tenant's nearest
// documents. ok is false when the tenant has nothing to compare against.
func (s *Service) SiteSimilarity(ctx context.Context, tenant, text string, sample int) (sim float64, ok bool, err error) {
	if tenant == "" {
		return 0, false, store.ErrTenantRequired
	}
	vec, err := s.Embedder.Embed(ctx, text, scope(ctx, tenant))
	if err != nil {
		return 0, false, err
	}
	near, err := s.Store.Search(ctx, tenant, vec, store.Query{Limit: sample, Threshold: -1})
	if err != nil {
		return 0, false, err
	}
	vecs := make([][]float32, 0, len(near))
	for _, r := range near {
		vecs = append(vecs, r.Document.Embedding)
	}
	if len(vecs) == 0 {
		return 0, false, nil
	}
	sim, err = embedding.CosineSimilarity(vec, embedding.Centroid(vecs))
	if err != nil {
		return 0, false, err
	}
	return sim, true, nil
}

// DeleteDocuments removes the tenant's documents matching filters.
func (s *Service) DeleteDocuments(ctx context.Context, tenant string, filters models.Filters) (int, error) {
	if tenant == "" {
		return 0, store.ErrTenantRequired
	}
	if len(filters) == 0 {
		return 0, ErrFiltersRequired
	}
	return s.Store.Delete(ctx, tenant, filters)
}

// DeleteTenant removes every document the tenant owns.
func (s *Service) DeleteTenant(ctx context.Context, tenant string) (int, error) {
	return s.Store.DeleteTenant(ctx, tenant)
}

func copyMeta(in map[string]any) map[string]any {
	out := make(map[string]any, len(in)+6)
	for k, v := range in {
		out[k] = v
	}
	return out
}
