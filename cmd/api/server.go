package main

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/seanblong/geoscore/internal/ai"
	"github.com/seanblong/geoscore/internal/app"
	"github.com/seanblong/geoscore/internal/auth"
	"github.com/seanblong/geoscore/internal/embedding"
	"github.com/seanblong/geoscore/internal/ratelimit"
	"github.com/seanblong/geoscore/internal/scoring"
	"github.com/seanblong/geoscore/internal/search"
	"github.com/seanblong/geoscore/internal/store"
	"github.com/seanblong/geoscore/pkg/models"
)

const (
	defaultLimit     = 10
	maxLimit         = 100
	defaultThreshold = 0.7
	defaultWeight    = 0.7
	// metaPrefix marks query parameters that filter on document metadata,
	// e.g. ?meta.source_type=scan.
	metaPrefix = "meta."
	// maxBody caps request bodies; pages are scored from raw HTML.
	maxBody = 8 << 20
)

type server struct {
	app    *app.App
	log    zerolog.Logger
	now    func() time.Time
	router chi.Router
}

func newServer(a *app.App, logger zerolog.Logger) *server {
	s := &server{app: a, log: logger, now: time.Now}
	s.routes()
	return s
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(clientIP)
	r.Use(middleware.Recoverer)
	r.Use(hlog.NewHandler(s.log))
	r.Use(hlog.RequestIDHandler("req_id", "X-Request-Id"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, dur time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("dur", dur).
			Msg("http")
	}))

	r.Get("/healthz", s.handleHealth)

	// Scoring works without a tenant; the enhanced pass needs one.
	r.Group(func(r chi.Router) {
		r.Use(auth.TenantMiddleware(false))
		r.Post("/score", s.handleScore)
		r.Post("/score/enhanced", s.handleScoreEnhanced)
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.TenantMiddleware(true))
		r.Use(s.requireSearch)
		r.Post("/documents", s.handleAddDocument)
		r.Delete("/documents", s.handleDeleteDocuments)
		r.Get("/documents/{id}/similar", s.handleSimilar)
		r.Get("/documents/{id}/cluster", s.handleCluster)
		r.Get("/search", s.handleSearch)
		r.Get("/search/hybrid", s.handleHybridSearch)
		r.Post("/coherence", s.handleCoherence)
	})

	s.router = r
}

// clientIP stores the caller's address, as resolved by RealIP, for the
// embedding rate limiter.
func clientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		next.ServeHTTP(w, r.WithContext(embedding.WithClientIP(r.Context(), ip)))
	})
}

func (s *server) requireSearch(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.app.Search == nil {
			jsonError(w, "vector store is not configured", http.StatusServiceUnavailable)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.app.Store != nil {
		if err := s.app.Store.Ping(r.Context()); err != nil {
			jsonError(w, "store unavailable: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"search":   s.app.Search != nil,
		"enhanced": s.app.Enhancer.Enabled(),
	})
}

// scanRequest is a page to score; index stores it for later comparisons.
type scanRequest struct {
	scoring.ScanInput
	Index bool `json:"index,omitempty"`
}

func (s *server) decodeScan(w http.ResponseWriter, r *http.Request) (scanRequest, bool) {
	var req scanRequest
	if !decode(w, r, &req) {
		return req, false
	}
	if strings.TrimSpace(req.HTML) == "" {
		jsonError(w, "html is required", http.StatusBadRequest)
		return req, false
	}
	if req.FetchedAt.IsZero() {
		req.FetchedAt = s.now().UTC()
	}
	return req, true
}

func (s *server) handleScore(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeScan(w, r)
	if !ok {
		return
	}
	res, err := s.app.Engine.ScorePage(r.Context(), req.ScanInput)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleScoreEnhanced always answers with the base score. A failed review
// is reported in rag_status; rate limits also set Retry-After.
func (s *server) handleScoreEnhanced(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeScan(w, r)
	if !ok {
		return
	}
	tenant := auth.TenantID(r)
	res, err := s.app.Enhancer.ScorePageEnhanced(r.Context(), tenant, req.ScanInput)
	if err != nil {
		// no status: the base score itself failed
		if res.Status == "" {
			s.fail(w, r, err)
			return
		}
		hlog.FromRequest(r).Warn().Err(err).Str("tenant", tenant).Msg("enhanced pass failed")
		var le *ratelimit.LimitError
		if errors.As(err, &le) {
			w.Header().Set("Retry-After", strconv.Itoa(le.RetryAfterSeconds()))
		}
	}
	if req.Index && tenant != "" && s.app.Search != nil {
		if _, err := s.app.Enhancer.IndexAfterScoring(r.Context(), tenant, req.ScanInput, res.ScoreResult); err != nil {
			hlog.FromRequest(r).Warn().Err(err).Str("tenant", tenant).Msg("index after scoring failed")
		}
	}
	writeJSON(w, http.StatusOK, res)
}

type addDocumentRequest struct {
	Title    string         `json:"title"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Chunk    bool           `json:"chunk"`
}

func (s *server) handleAddDocument(w http.ResponseWriter, r *http.Request) {
	var req addDocumentRequest
	if !decode(w, r, &req) {
		return
	}
	docs, err := s.app.Search.AddDocument(r.Context(), auth.TenantID(r), req.Title, req.Content, req.Metadata, req.Chunk)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"documents": docs})
}

func (s *server) handleDeleteDocuments(w http.ResponseWriter, r *http.Request) {
	n, err := s.app.Search.DeleteDocuments(r.Context(), auth.TenantID(r), filters(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q, ok := query(w, r)
	if !ok {
		return
	}
	threshold, err := floatParam(r, "threshold", defaultThreshold)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := s.app.Search.Search(r.Context(), auth.TenantID(r), q, limit(r), threshold, filters(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeResults(w, res)
}

func (s *server) handleHybridSearch(w http.ResponseWriter, r *http.Request) {
	q, ok := query(w, r)
	if !ok {
		return
	}
	weight, err := floatParam(r, "weight", defaultWeight)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := s.app.Search.HybridSearch(r.Context(), auth.TenantID(r), q, limit(r), weight, filters(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeResults(w, res)
}

func (s *server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	threshold, err := floatParam(r, "threshold", defaultThreshold)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := s.app.Search.FindSimilar(r.Context(), auth.TenantID(r), chi.URLParam(r, "id"), limit(r), threshold)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeResults(w, res)
}

func (s *server) handleCluster(w http.ResponseWriter, r *http.Request) {
	threshold, err := floatParam(r, "threshold", defaultThreshold)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := s.app.Search.GetCluster(r.Context(), auth.TenantID(r), chi.URLParam(r, "id"), threshold, limit(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeResults(w, res)
}

func (s *server) handleCoherence(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if !decode(w, r, &req) {
		return
	}
	c, err := s.app.Search.TopicCoherence(r.Context(), auth.TenantID(r), req.IDs)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"coherence": c})
}

// fail maps err to a status code. Provider and unexpected errors are logged.
func (s *server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		le *ratelimit.LimitError
		pe *ai.ProviderError
	)
	switch {
	case errors.As(err, &le):
		w.Header().Set("Retry-After", strconv.Itoa(le.RetryAfterSeconds()))
		jsonError(w, err.Error(), http.StatusTooManyRequests)
	case errors.Is(err, store.ErrNotFound):
		jsonError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, search.ErrNoEmbedding):
		jsonError(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, search.ErrInvalidWeight),
		errors.Is(err, search.ErrFiltersRequired),
		errors.Is(err, store.ErrTenantRequired),
		errors.Is(err, embedding.ErrEmptyText),
		errors.Is(err, embedding.ErrBatchTooLarge):
		jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &pe):
		hlog.FromRequest(r).Error().Err(err).Bool("retryable", pe.Retryable).Msg("provider error")
		jsonError(w, err.Error(), http.StatusBadGateway)
	case errors.Is(err, context.DeadlineExceeded):
		jsonError(w, err.Error(), http.StatusGatewayTimeout)
	default:
		hlog.FromRequest(r).Error().Err(err).Msg("request failed")
		jsonError(w, "internal error", http.StatusInternalServerError)
	}
}

// ---------- helpers ----------

func decode(w http.ResponseWriter, r *http.Request, into any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(into); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func query(w http.ResponseWriter, r *http.Request) (string, bool) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		jsonError(w, "missing query parameter q", http.StatusBadRequest)
		return "", false
	}
	return q, true
}

func limit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return defaultLimit
	}
	return min(n, maxLimit)
}

func floatParam(r *http.Request, name string, def float64) (float64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.New("invalid " + name)
	}
	return f, nil
}

// filters reads meta.<key> parameters; a repeated key matches any value.
func filters(r *http.Request) models.Filters {
	f := models.Filters{}
	for k, vs := range r.URL.Query() {
		key, ok := strings.CutPrefix(k, metaPrefix)
		if !ok || key == "" || len(vs) == 0 {
			continue
		}
		if len(vs) == 1 {
			f[key] = vs[0]
		} else {
			f[key] = vs
		}
	}
	return f
}

func writeResults(w http.ResponseWriter, res []models.RankedDocument) {
	if res == nil {
		res = []models.RankedDocument{}
	}
	for i := range res {
		if math.IsNaN(res[i].Score) || math.IsInf(res[i].Score, 0) {
			res[i].Score = 0
		}
	}
	writeJSON(w, http.StatusOK, res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}
