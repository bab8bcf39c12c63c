package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/seanblong/geoscore/internal/app"
	"github.com/seanblong/geoscore/internal/auth"
	"github.com/seanblong/geoscore/internal/config"
	"github.com/seanblong/geoscore/internal/embedding"
	"github.com/seanblong/geoscore/internal/rag"
	"github.com/seanblong/geoscore/pkg/models"
)

const testPage = `<html><head><title>What is an apple?</title></head><body>
<h1>What is an apple?</h1>
<p>An apple is a sweet, edible fruit produced by an apple tree. Apple trees are cultivated worldwide and are the most widely grown species in the genus Malus.</p>
<h2>How are apples grown?</h2>
<p>Apples are grown in orchards. Growers graft cultivars onto rootstocks, which control the size of the resulting tree and its yield.</p>
</body></html>`

func testConfig() config.Specification {
	return config.Specification{
		Embedding: config.EmbeddingSpecification{Provider: "stub", Dim: 32},
		LLM:       config.LLMSpecification{Provider: "stub"},
		Chunk:     config.ChunkSpecification{Strategy: "semantic", Size: 1000, Overlap: 200},
		Cache:     config.CacheSpecification{Enabled: true},
	}
}

func newTestServer(t *testing.T, cfg config.Specification) *server {
	t.Helper()
	auth.InitializeAuth("secret", "geoscore", time.Hour, false)
	a, err := app.New(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("app.New failed: %v", err)
	}
	t.Cleanup(a.Close)
	s := newServer(a, zerolog.Nop())
	s.now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }
	return s
}

func do(t *testing.T, s *server, method, target, tenant, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if tenant != "" {
		req.Header.Set(auth.TenantHeader, tenant)
	}
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	return w
}

func scanBody(t *testing.T, html, url string, index bool) string {
	t.Helper()
	b, err := json.Marshal(map[string]any{"html": html, "url": url, "index": index})
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, testConfig())
	w := do(t, s, "GET", "/healthz", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["search"] != true || body["enhanced"] != true {
		t.Errorf("Unexpected health body %v", body)
	}
}

func TestScore(t *testing.T) {
	s := newTestServer(t, testConfig())

	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{"valid page", scanBody(t, testPage, "https://example.com/apples", false), http.StatusOK},
		{"missing html", `{"url": "https://example.com"}`, http.StatusBadRequest},
		{"invalid json", `{"html":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s, "POST", "/score", "", tt.body)
			if w.Code != tt.wantCode {
				t.Fatalf("Expected %d, got %d: %s", tt.wantCode, w.Code, w.Body.String())
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			var res struct {
				Grade      string                     `json:"grade"`
				Percentage float64                    `json:"percentage"`
				Pillars    map[string]json.RawMessage `json:"pillars"`
			}
			if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
				t.Fatal(err)
			}
			if res.Grade == "" || res.Percentage <= 0 || len(res.Pillars) != 12 {
				t.Errorf("Unexpected score %+v", res)
			}
		})
	}
}

func TestScoreEnhanced(t *testing.T) {
	s := newTestServer(t, testConfig())

	// No tenant: base score only.
	w := do(t, s, "POST", "/score/enhanced", "", scanBody(t, testPage, "https://example.com/apples", true))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var res rag.EnhancedResult
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	if res.Status != rag.StatusDisabled || res.RAG != nil {
		t.Errorf("Expected disabled review, got %q", res.Status)
	}

	// With a tenant the page is reviewed and indexed.
	w = do(t, s, "POST", "/score/enhanced", "acme", scanBody(t, testPage, "https://example.com/apples", true))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	res = rag.EnhancedResult{}
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	if res.Status != rag.StatusOK || res.RAG == nil || res.RAG.Model == "" {
		t.Fatalf("Expected a review, got %q (%s)", res.Status, res.Reason)
	}

	w = do(t, s, "GET", "/search?q=apple&threshold=-1&meta.source_type=scan", "acme", "")
	var hits []models.RankedDocument
	if err := json.NewDecoder(w.Body).Decode(&hits); err != nil {
		t.Fatal(err)
	}
	if len(hits) == 0 {
		t.Fatal("Expected the scanned page to be indexed")
	}
	if hits[0].Document.Metadata["url"] != "https://example.com/apples" || hits[0].Document.Metadata["grade"] != res.Grade {
		t.Errorf("Unexpected indexed metadata %v", hits[0].Document.Metadata)
	}
}

func TestDocumentsLifecycle(t *testing.T) {
	s := newTestServer(t, testConfig())

	w := do(t, s, "POST", "/documents", "acme",
		`{"title": "Pears", "content": "A pear is a sweet fruit with a narrow top.", "metadata": {"source_type": "upload"}}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var added struct {
		Documents []models.Document `json:"documents"`
	}
	if err := json.NewDecoder(w.Body).Decode(&added); err != nil {
		t.Fatal(err)
	}
	if len(added.Documents) != 1 || added.Documents[0].ID == "" {
		t.Fatalf("Unexpected documents %+v", added.Documents)
	}
	pear := added.Documents[0].ID

	w = do(t, s, "POST", "/documents", "acme", `{"title": "Plums", "content": "A plum is a stone fruit."}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", w.Code)
	}
	if err := json.NewDecoder(w.Body).Decode(&added); err != nil {
		t.Fatal(err)
	}
	plum := added.Documents[0].ID

	// Exact content embeds to the same vector.
	w = do(t, s, "GET", "/search?q=A+pear+is+a+sweet+fruit+with+a+narrow+top.&limit=1", "acme", "")
	var hits []models.RankedDocument
	if err := json.NewDecoder(w.Body).Decode(&hits); err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].Document.ID != pear {
		t.Errorf("Expected the pear document, got %+v", hits)
	}

	w = do(t, s, "GET", "/search/hybrid?q=plum&weight=0", "acme", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	hits = nil
	if err := json.NewDecoder(w.Body).Decode(&hits); err != nil {
		t.Fatal(err)
	}
	if len(hits) == 0 || hits[0].Document.ID != plum {
		t.Errorf("Expected keyword match on plum first, got %+v", hits)
	}

	w = do(t, s, "GET", "/documents/"+pear+"/cluster?threshold=-1", "acme", "")
	hits = nil
	if err := json.NewDecoder(w.Body).Decode(&hits); err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 || hits[0].Document.ID != pear || hits[0].Similarity != 1 {
		t.Errorf("Expected centroid first then plum, got %+v", hits)
	}

	w = do(t, s, "GET", "/documents/"+pear+"/similar?threshold=-1", "acme", "")
	hits = nil
	if err := json.NewDecoder(w.Body).Decode(&hits); err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].Document.ID != plum {
		t.Errorf("Expected only plum, got %+v", hits)
	}

	w = do(t, s, "POST", "/coherence", "acme", `{"ids": ["`+pear+`"]}`)
	var coh map[string]float64
	if err := json.NewDecoder(w.Body).Decode(&coh); err != nil {
		t.Fatal(err)
	}
	if coh["coherence"] != 1 {
		t.Errorf("Expected coherence 1 for a single id, got %v", coh)
	}

	// Other tenants see nothing.
	w = do(t, s, "GET", "/documents/"+pear+"/similar", "other", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 across tenants, got %d", w.Code)
	}

	w = do(t, s, "DELETE", "/documents?meta.source_type=upload", "acme", "")
	var del map[string]int
	if err := json.NewDecoder(w.Body).Decode(&del); err != nil {
		t.Fatal(err)
	}
	if del["deleted"] != 1 {
		t.Errorf("Expected 1 deleted, got %v", del)
	}
}

func TestRequestErrors(t *testing.T) {
	s := newTestServer(t, testConfig())

	tests := []struct {
		name     string
		method   string
		target   string
		tenant   string
		body     string
		wantCode int
	}{
		{"no tenant", "GET", "/search?q=x", "", "", http.StatusUnauthorized},
		{"invalid tenant", "GET", "/search?q=x", "a b", "", http.StatusBadRequest},
		{"missing query", "GET", "/search", "acme", "", http.StatusBadRequest},
		{"bad threshold", "GET", "/search?q=x&threshold=abc", "acme", "", http.StatusBadRequest},
		{"weight out of range", "GET", "/search/hybrid?q=x&weight=1.5", "acme", "", http.StatusBadRequest},
		{"unknown document", "GET", "/documents/nope/cluster", "acme", "", http.StatusNotFound},
		{"empty content", "POST", "/documents", "acme", `{"title": "t", "content": "  "}`, http.StatusBadRequest},
		{"delete without filters", "DELETE", "/documents", "acme", "", http.StatusBadRequest},
		{"coherence bad body", "POST", "/coherence", "acme", `[`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s, tt.method, tt.target, tt.tenant, tt.body)
			if w.Code != tt.wantCode {
				t.Errorf("Expected %d, got %d: %s", tt.wantCode, w.Code, w.Body.String())
			}
		})
	}
}

func TestRateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = config.RateLimitSpecification{Requests: 2, Window: time.Hour}
	s := newTestServer(t, cfg)

	for _, q := range []string{"first", "second"} {
		if w := do(t, s, "GET", "/search?q="+q, "acme", ""); w.Code != http.StatusOK {
			t.Fatalf("Expected 200 for %q, got %d", q, w.Code)
		}
	}
	// Cache hits are not limited.
	if w := do(t, s, "GET", "/search?q=first", "acme", ""); w.Code != http.StatusOK {
		t.Errorf("Expected cached query to pass, got %d", w.Code)
	}

	w := do(t, s, "GET", "/search?q=third", "acme", "")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Expected a Retry-After header")
	}

	// Another tenant has its own window.
	if w := do(t, s, "GET", "/search?q=third", "other", ""); w.Code != http.StatusOK {
		t.Errorf("Expected 200 for another tenant, got %d", w.Code)
	}
}

func TestSearchNotConfigured(t *testing.T) {
	cfg := testConfig()
	cfg.Embedding.Provider = "openai"
	s := newTestServer(t, cfg)

	if w := do(t, s, "GET", "/search?q=x", "acme", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", w.Code)
	}
	// Base scoring keeps working.
	if w := do(t, s, "POST", "/score", "", scanBody(t, testPage, "", false)); w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		header string
		value  string
		want   string
	}{
		{"remote address", "192.0.2.1:1234", "", "", "192.0.2.1"},
		{"real ip header", "10.0.0.1:80", "X-Real-IP", "198.51.100.4", "198.51.100.4"},
		{"forwarded for", "10.0.0.1:80", "X-Forwarded-For", "203.0.113.5, 10.0.0.1", "203.0.113.5"},
		{"bad header ignored", "192.0.2.1:1234", "X-Real-IP", "nonsense", "192.0.2.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := middleware.RealIP(clientIP(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = embedding.ClientIPFromContext(r.Context())
			})))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			if got != tt.want {
				t.Errorf("client ip = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFilters(t *testing.T) {
	req := httptest.NewRequest("GET", "/search?q=x&meta.grade=A&meta.grade=B&meta.url=u&limit=5&meta.=skip", nil)
	f := filters(req)
	if len(f) != 2 || f["url"] != "u" {
		t.Errorf("Unexpected filters %v", f)
	}
	if vs, ok := f["grade"].([]string); !ok || len(vs) != 2 {
		t.Errorf("Expected a value list for grade, got %v", f["grade"])
	}

	tests := map[string]int{"": defaultLimit, "abc": defaultLimit, "-1": defaultLimit, "7": 7, "1000": maxLimit}
	for v, want := range tests {
		r := httptest.NewRequest("GET", "/search?limit="+v, nil)
		if got := limit(r); got != want {
			t.Errorf("limit(%q) = %d, want %d", v, got, want)
		}
	}
}
