package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/seanblong/geoscore/internal/embedding"
	"github.com/seanblong/geoscore/pkg/models"
)

// Memory is an in-process DocumentStore for tests, local runs and the
// indexer's dry-run mode. Writes are visible to the next read.
type Memory struct {
	mu      sync.RWMutex
	tenants map[string]*tenantDocs
	now     func() time.Time
}

type tenantDocs struct {
	order []string
	docs  map[string]models.Document
}

func NewMemory() *Memory {
	return &Memory{tenants: make(map[string]*tenantDocs), now: time.Now}
}

var _ DocumentStore = (*Memory)(nil)

func (m *Memory) Insert(_ context.Context, docs []models.Document) error {
	batch := make([]models.Document, len(docs))
	for i, d := range docs {
		batch[i] = clone(d)
	}
	if err := prepare(batch, m.now()); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i, d := range batch {
		t, ok := m.tenants[d.TenantID]
		if !ok {
			t = &tenantDocs{docs: make(map[string]models.Document)}
			m.tenants[d.TenantID] = t
		}
		if _, exists := t.docs[d.ID]; !exists {
			t.order = append(t.order, d.ID)
		}
		t.docs[d.ID] = d
		docs[i].ID = d.ID
		docs[i].CreatedAt = d.CreatedAt
	}
	return nil
}

func (m *Memory) Get(_ context.Context, tenantID, id string) (models.Document, error) {
	if tenantID == "" {
		return models.Document{}, ErrTenantRequired
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tenants[tenantID]
	if !ok {
		return models.Document{}, ErrNotFound
	}
	d, ok := t.docs[id]
	if !ok {
		return models.Document{}, ErrNotFound
	}
	return clone(d), nil
}

// GetMany returns the documents that exist, in the order of ids.
func (m *Memory) GetMany(_ context.Context, tenantID string, ids []string) ([]models.Document, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tenants[tenantID]
	if !ok {
		return nil, nil
	}
	var out []models.Document
	for _, id := range ids {
		if d, ok := t.docs[id]; ok {
			out = append(out, clone(d))
		}
	}
	return out, nil
}

// candidates returns a tenant's documents matching q, in insertion order.
func (m *Memory) candidates(tenantID string, q Query) []models.Document {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tenants[tenantID]
	if !ok {
		return nil
	}
	var out []models.Document
	for _, id := range t.order {
		d := t.docs[id]
		if q.excluded(d.ID) || !q.Filters.Match(d.Metadata) {
			continue
		}
		out = append(out, clone(d))
	}
	return out
}

func (m *Memory) Search(_ context.Context, tenantID string, vec []float32, q Query) ([]models.RankedDocument, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}
	var out []models.RankedDocument
	for _, d := range m.candidates(tenantID, q) {
		if len(d.Embedding) == 0 {
			continue
		}
		sim, err := embedding.CosineSimilarity(vec, d.Embedding)
		if err != nil {
			return nil, err
		}
		if sim < q.Threshold {
			continue
		}
		out = append(out, models.RankedDocument{Document: d, Similarity: sim, Score: sim})
	}
	return rank(out, q.limit()), nil
}

func (m *Memory) HybridSearch(_ context.Context, tenantID string, vec []float32, text string, semanticWeight float64, q Query) ([]models.RankedDocument, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}
	docs := m.candidates(tenantID, q)
	corpus := make([]string, len(docs))
	for i, d := range docs {
		corpus[i] = d.Title + " " + d.Content
	}
	keyword := bm25(text, corpus)

	out := make([]models.RankedDocument, 0, len(docs))
	for i, d := range docs {
		var sim float64
		if len(d.Embedding) > 0 && len(vec) > 0 {
			s, err := embedding.CosineSimilarity(vec, d.Embedding)
			if err != nil {
				return nil, err
			}
			sim = clamp01(s)
		}
		out = append(out, models.RankedDocument{
			Document:     d,
			Similarity:   sim,
			KeywordScore: keyword[i],
			Score:        semanticWeight*sim + (1-semanticWeight)*keyword[i],
		})
	}
	return rank(out, q.limit()), nil
}

func (m *Memory) Delete(_ context.Context, tenantID string, filters models.Filters) (int, error) {
	if tenantID == "" {
		return 0, ErrTenantRequired
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[tenantID]
	if !ok {
		return 0, nil
	}
	kept := t.order[:0]
	n := 0
	for _, id := range t.order {
		if filters.Match(t.docs[id].Metadata) {
			delete(t.docs, id)
			n++
			continue
		}
		kept = append(kept, id)
	}
	t.order = kept
	return n, nil
}

func (m *Memory) DeleteTenant(_ context.Context, tenantID string) (int, error) {
	if tenantID == "" {
		return 0, ErrTenantRequired
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[tenantID]
	if !ok {
		return 0, nil
	}
	delete(m.tenants, tenantID)
	return len(t.docs), nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() {}

// rank sorts by score descending, ties by creation time then id, and
// truncates to limit.
func rank(docs []models.RankedDocument, limit int) []models.RankedDocument {
	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].Score != docs[j].Score {
			return docs[i].Score > docs[j].Score
		}
		return docs[i].Document.CreatedAt.Before(docs[j].Document.CreatedAt)
	})
	if len(docs) > limit {
		docs = docs[:limit]
	}
	return docs
}

func clone(d models.Document) models.Document {
	if d.Metadata != nil {
		md := make(map[string]any, len(d.Metadata))
		for k, v := range d.Metadata {
			md[k] = v
		}
		d.Metadata = md
	}
	if d.Embedding != nil {
		d.Embedding = append([]float32(nil), d.Embedding...)
	}
	return d
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
