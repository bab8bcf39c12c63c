package search

import (
	"context"
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/seanblong/geoscore/internal/chunker"
	"github.com/seanblong/geoscore/internal/embedding"
	"github.com/seanblong/geoscore/internal/ratelimit"
	"github.com/seanblong/geoscore/internal/store"
	"github.com/seanblong/geoscore/pkg/models"
)

// MockEmbedder implements Embedder. The default vector counts topic words
// so that related texts land close together.
type MockEmbedder struct {
	EmbedFunc      func(ctx context.Context, text string, scope embedding.Scope) ([]float32, error)
	EmbedBatchFunc func(ctx context.Context, texts []string, scope embedding.Scope) ([][]float32, error)
	BatchCalls     [][]string
}

func topicVec(text string) []float32 {
	lower := strings.ToLower(text)
	return []float32{
		float32(strings.Count(lower, "apple")),
		float32(strings.Count(lower, "engine")),
		0.1,
	}
}

func (m *MockEmbedder) Embed(ctx context.Context, text string, scope embedding.Scope) ([]float32, error) {
	if m.EmbedFunc != nil {
		return m.EmbedFunc(ctx, text, scope)
	}
	return topicVec(text), nil
}

func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string, scope embedding.Scope) ([][]float32, error) {
	m.BatchCalls = append(m.BatchCalls, texts)
	if m.EmbedBatchFunc != nil {
		return m.EmbedBatchFunc(ctx, texts, scope)
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = topicVec(t)
	}
	return out, nil
}

// MockStore wraps a Memory store and lets individual methods be replaced.
type MockStore struct {
	*store.Memory
	SearchFunc       func(ctx context.Context, tenantID string, vec []float32, q store.Query) ([]models.RankedDocument, error)
	HybridSearchFunc func(ctx context.Context, tenantID string, vec []float32, text string, w float64, q store.Query) ([]models.RankedDocument, error)
}

func (m *MockStore) Search(ctx context.Context, tenantID string, vec []float32, q store.Query) ([]models.RankedDocument, error) {
	if m.SearchFunc != nil {
		return m.SearchFunc(ctx, tenantID, vec, q)
	}
	return m.Memory.Search(ctx, tenantID, vec, q)
}

func (m *MockStore) HybridSearch(ctx context.Context, tenantID string, vec []float32, text string, w float64, q store.Query) ([]models.RankedDocument, error) {
	if m.HybridSearchFunc != nil {
		return m.HybridSearchFunc(ctx, tenantID, vec, text, w, q)
	}
	return m.Memory.HybridSearch(ctx, tenantID, vec, text, w, q)
}

const article = `# Apples

An apple is a sweet fruit grown on trees across temperate regions of the world.

## Growing apples

Apple trees need cold winters, well drained soil and plenty of sun to fruit well.

## Engines

An engine converts fuel into motion and has nothing to do with apple orchards at all.
`

func TestAddDocumentChunked(t *testing.T) {
	emb := &MockEmbedder{}
	svc := NewService(emb, store.NewMemory())

	docs, err := svc.AddDocument(context.Background(), "t1", "Apple guide", article,
		map[string]any{"url": "https://example.com/apples"}, true)
	if err != nil {
		t.Fatalf("AddDocument: %v", err)
	}
	// three sections plus the summary
	if len(docs) != 4 {
		t.Fatalf("got %d documents, want 4", len(docs))
	}
	if len(emb.BatchCalls) != 1 || len(emb.BatchCalls[0]) != 4 {
		t.Errorf("expected one batch of 4, got %v", emb.BatchCalls)
	}
	if docs[0].Metadata[MetaIsSummary] != true || docs[0].Metadata[MetaChunkType] != string(models.ChunkSummary) {
		t.Errorf("first document should be the summary: %+v", docs[0].Metadata)
	}
	for i, d := range docs {
		if d.ID == "" || d.TenantID != "t1" || len(d.Embedding) != 3 {
			t.Errorf("doc %d not persisted correctly: %+v", i, d)
		}
		if d.Metadata[MetaParentTitle] != "Apple guide" || d.Metadata[MetaTotalChunks] != 4 {
			t.Errorf("doc %d traceability metadata = %v", i, d.Metadata)
		}
		if d.Metadata["url"] != "https://example.com/apples" {
			t.Errorf("doc %d lost caller metadata", i)
		}
		if d.Metadata[MetaChunkIndex] != i {
			t.Errorf("doc %d chunk_index = %v", i, d.Metadata[MetaChunkIndex])
		}
	}
	if docs[2].Metadata[MetaHeading] != "Growing apples" {
		t.Errorf("section heading = %v", docs[2].Metadata[MetaHeading])
	}
}

func TestScopeCarriesClientIP(t *testing.T) {
	var got []embedding.Scope
	emb := &MockEmbedder{
		EmbedFunc: func(ctx context.Context, text string, scope embedding.Scope) ([]float32, error) {
			got = append(got, scope)
			return topicVec(text), nil
		},
		EmbedBatchFunc: func(ctx context.Context, texts []string, scope embedding.Scope) ([][]float32, error) {
			got = append(got, scope)
			out := make([][]float32, len(texts))
			for i, t := range texts {
				out[i] = topicVec(t)
			}
			return out, nil
		},
	}
	svc := NewService(emb, store.NewMemory())
	ctx := embedding.WithClientIP(context.Background(), "203.0.113.9")

	if _, err := svc.AddDocument(ctx, "t1", "Apples", "apple", nil, false); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Search(ctx, "t1", "apple", 5, 0, nil); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 embed calls, got %d", len(got))
	}
	for i, sc := range got {
		if sc.TenantID != "t1" || sc.ClientIP != "203.0.113.9" {
			t.Errorf("call %d scope = %+v", i, sc)
		}
	}
}

func TestAddDocumentUnchunked(t *testing.T) {
	svc := NewService(&MockEmbedder{}, store.NewMemory())
	docs, err := svc.AddDocument(context.Background(), "t1", "Short", "apple", nil, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 || docs[0].Content != "apple" || docs[0].Metadata[MetaTotalChunks] != 1 {
		t.Errorf("docs = %+v", docs)
	}

	// content too short to chunk is stored whole
	docs, err = svc.AddDocument(context.Background(), "t1", "Short", "apple pie", nil, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 {
		t.Errorf("short chunked content produced %d documents", len(docs))
	}
}

func TestAddDocumentErrors(t *testing.T) {
	boom := errors.New("provider down")
	svc := NewService(&MockEmbedder{
		EmbedBatchFunc: func(ctx context.Context, texts []string, scope embedding.Scope) ([][]float32, error) {
			return nil, boom
		},
	}, store.NewMemory())

	tests := []struct {
		name    string
		tenant  string
		content string
		want    error
	}{
		{"no tenant", "", "apple", store.ErrTenantRequired},
		{"empty content", "t", "  ", embedding.ErrEmptyText},
		{"provider error", "t", "apple", boom},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AddDocument(context.Background(), tt.tenant, "x", tt.content, nil, false)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
	if n, _ := svc.Store.DeleteTenant(context.Background(), "t"); n != 0 {
		t.Errorf("failed adds persisted %d documents", n)
	}
}

func TestAddDocumentBatchesLargeDocuments(t *testing.T) {
	emb := &MockEmbedder{}
	svc := NewService(emb, store.NewMemory())
	svc.Chunker = chunker.New(chunker.WithChunkSize(250), chunker.WithOverlap(0))
	svc.Strategy = chunker.Fixed

	content := strings.TrimSpace(strings.Repeat("alpha ", 150*50))
	docs, err := svc.AddDocument(context.Background(), "t", "Big", content, nil, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 151 {
		t.Fatalf("got %d documents, want 151", len(docs))
	}
	if len(emb.BatchCalls) != 2 || len(emb.BatchCalls[0]) != embedding.MaxBatchSize || len(emb.BatchCalls[1]) != 51 {
		t.Errorf("batch sizes = %d calls", len(emb.BatchCalls))
	}
}

func TestAddDocumentTwice(t *testing.T) {
	ctx := context.Background()
	svc := NewService(&MockEmbedder{}, store.NewMemory())

	first, err := svc.AddDocument(ctx, "t", "Apples", article, nil, true)
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.AddDocument(ctx, "t", "Apples", article, nil, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != len(second) {
		t.Fatalf("sets differ in size: %d vs %d", len(first), len(second))
	}
	seen := map[string]bool{}
	for _, d := range append(first, second...) {
		if seen[d.ID] {
			t.Fatalf("duplicate id %s", d.ID)
		}
		seen[d.ID] = true
	}
	n, _ := svc.DeleteTenant(ctx, "t")
	if n != len(first)*2 {
		t.Errorf("store held %d documents, want %d", n, len(first)*2)
	}
}

func TestSearchTenantIsolation(t *testing.T) {
	ctx := context.Background()
	svc := NewService(&MockEmbedder{}, store.NewMemory())

	if _, err := svc.AddDocument(ctx, "A", "Engines", "engine engine apple", nil, false); err != nil {
		t.Fatal(err)
	}
	// tenant B holds the perfect match
	if _, err := svc.AddDocument(ctx, "B", "Apples", "apple apple apple", nil, false); err != nil {
		t.Fatal(err)
	}

	res, err := svc.Search(ctx, "A", "apple", 10, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 1 {
		t.Fatalf("got %d results, want 1", len(res))
	}
	for _, r := range res {
		if r.Document.TenantID != "A" {
			t.Errorf("tenant A search returned tenant %s document", r.Document.TenantID)
		}
	}

	res, err = svc.HybridSearch(ctx, "A", "apple", 10, 0.5, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range res {
		if r.Document.TenantID != "A" {
			t.Errorf("hybrid search leaked tenant %s", r.Document.TenantID)
		}
	}

	if _, err := svc.Search(ctx, "", "apple", 10, 0, nil); !errors.Is(err, store.ErrTenantRequired) {
		t.Errorf("empty tenant err = %v", err)
	}
}

func TestSearchPassesQuery(t *testing.T) {
	filters := models.Filters{"source_type": "scan"}
	st := &MockStore{
		Memory: store.NewMemory(),
		SearchFunc: func(ctx context.Context, tenantID string, vec []float32, q store.Query) ([]models.RankedDocument, error) {
			want := store.Query{Limit: 7, Threshold: 0.3, Filters: filters}
			if !reflect.DeepEqual(q, want) {
				t.Errorf("query = %+v, want %+v", q, want)
			}
			if tenantID != "t" || !reflect.DeepEqual(vec, topicVec("apple")) {
				t.Errorf("tenant %q vec %v", tenantID, vec)
			}
			return nil, nil
		},
	}
	svc := NewService(&MockEmbedder{}, st)
	if _, err := svc.Search(context.Background(), "t", "apple", 7, 0.3, filters); err != nil {
		t.Fatal(err)
	}
}

func TestHybridSearchEmbeddingFailure(t *testing.T) {
	tests := []struct {
		name     string
		embedErr error
		wantErr  bool
		wantNil  bool
	}{
		{"provider error falls back to keywords", errors.New("upstream down"), false, true},
		{"rate limit propagates", &ratelimit.LimitError{Key: "tenant:t", Limit: 1, RetryAfter: time.Second}, true, false},
		{"cancellation propagates", context.Canceled, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			st := &MockStore{
				Memory: store.NewMemory(),
				HybridSearchFunc: func(ctx context.Context, tenantID string, vec []float32, text string, w float64, q store.Query) ([]models.RankedDocument, error) {
					called = true
					if tt.wantNil && vec != nil {
						t.Errorf("expected nil vector, got %v", vec)
					}
					return nil, nil
				},
			}
			svc := NewService(&MockEmbedder{
				EmbedFunc: func(ctx context.Context, text string, scope embedding.Scope) ([]float32, error) {
					return nil, tt.embedErr
				},
			}, st)
			_, err := svc.HybridSearch(context.Background(), "t", "apple", 5, 0.7, nil)
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if called == tt.wantErr {
				t.Errorf("store called = %v", called)
			}
		})
	}
}

func TestHybridSearchWeight(t *testing.T) {
	svc := NewService(&MockEmbedder{}, store.NewMemory())
	for _, w := range []float64{-0.1, 1.1, math.NaN()} {
		if _, err := svc.HybridSearch(context.Background(), "t", "q", 5, w, nil); !errors.Is(err, ErrInvalidWeight) {
			t.Errorf("weight %v err = %v", w, err)
		}
	}
}

func seedTopics(t *testing.T, svc *Service) map[string]string {
	t.Helper()
	ctx := context.Background()
	ids := map[string]string{}
	for name, content := range map[string]string{
		"apple1": "apple apple",
		"apple2": "apple apple apple engine",
		"engine": "engine engine",
	} {
		docs, err := svc.AddDocument(ctx, "t", name, content, nil, false)
		if err != nil {
			t.Fatal(err)
		}
		ids[name] = docs[0].ID
	}
	return ids
}

func TestFindSimilarAndCluster(t *testing.T) {
	ctx := context.Background()
	svc := NewService(&MockEmbedder{}, store.NewMemory())
	ids := seedTopics(t, svc)

	sim, err := svc.FindSimilar(ctx, "t", ids["apple1"], 10, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if len(sim) != 1 || sim[0].Document.ID != ids["apple2"] {
		t.Errorf("FindSimilar = %+v", sim)
	}

	cluster, err := svc.GetCluster(ctx, "t", ids["apple1"], 0.5, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(cluster) != 2 || cluster[0].Document.ID != ids["apple1"] || cluster[0].Similarity != 1 {
		t.Errorf("GetCluster = %+v", cluster)
	}

	if _, err := svc.FindSimilar(ctx, "other", ids["apple1"], 10, 0); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("cross-tenant seed err = %v", err)
	}
}

func TestFindSimilarWithoutEmbedding(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	docs := []models.Document{{TenantID: "t", Content: "bare"}}
	if err := mem.Insert(ctx, docs); err != nil {
		t.Fatal(err)
	}
	svc := NewService(&MockEmbedder{}, mem)
	if _, err := svc.GetCluster(ctx, "t", docs[0].ID, 0, 5); !errors.Is(err, ErrNoEmbedding) {
		t.Errorf("err = %v, want ErrNoEmbedding", err)
	}
}

func TestTopicCoherence(t *testing.T) {
	ctx := context.Background()
	svc := NewService(&MockEmbedder{}, store.NewMemory())
	ids := seedTopics(t, svc)

	bare := []models.Document{{TenantID: "t", Content: "bare"}}
	if err := svc.Store.Insert(ctx, bare); err != nil {
		t.Fatal(err)
	}

	a1, _ := embedding.CosineSimilarity(topicVec("apple apple"), topicVec("apple apple apple engine"))

	tests := []struct {
		name string
		ids  []string
		want float64
	}{
		{"none", nil, 1},
		{"single", []string{ids["apple1"]}, 1},
		{"one embedded", []string{ids["apple1"], bare[0].ID}, 0},
		{"unknown ids", []string{"x", "y"}, 0},
		{"pair", []string{ids["apple1"], ids["apple2"], bare[0].ID}, a1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.TopicCoherence(ctx, "t", tt.ids)
			if err != nil {
				t.Fatal(err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	related, _ := svc.TopicCoherence(ctx, "t", []string{ids["apple1"], ids["apple2"]})
	unrelated, _ := svc.TopicCoherence(ctx, "t", []string{ids["apple1"], ids["engine"]})
	if related <= unrelated {
		t.Errorf("related %v should exceed unrelated %v", related, unrelated)
	}
}

func TestSiteSimilarity(t *testing.T) {
	ctx := context.Background()
	svc := NewService(&MockEmbedder{}, store.NewMemory())

	if _, ok, err := svc.SiteSimilarity(ctx, "t", "apple", 5); err != nil || ok {
		t.Errorf("empty tenant: ok=%v err=%v", ok, err)
	}
	seedTopics(t, svc)
	apple, ok, err := svc.SiteSimilarity(ctx, "t", "apple", 2)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if apple < 0.9 {
		t.Errorf("apple page vs apple-heavy site = %v", apple)
	}
}

func TestDeleteDocuments(t *testing.T) {
	ctx := context.Background()
	svc := NewService(&MockEmbedder{}, store.NewMemory())
	if _, err := svc.AddDocument(ctx, "t", "A", article, map[string]any{"url": "a"}, true); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AddDocument(ctx, "t", "B", "apple", map[string]any{"url": "b"}, false); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.DeleteDocuments(ctx, "t", nil); !errors.Is(err, ErrFiltersRequired) {
		t.Errorf("empty filters err = %v", err)
	}
	n, err := svc.DeleteDocuments(ctx, "t", models.Filters{"url": "a"})
	if err != nil || n != 4 {
		t.Errorf("DeleteDocuments = %d, %v", n, err)
	}
	res, _ := svc.Search(ctx, "t", "apple", 10, 0, nil)
	if len(res) != 1 || res[0].Document.Metadata["url"] != "b" {
		t.Errorf("remaining = %+v", res)
	}
}
