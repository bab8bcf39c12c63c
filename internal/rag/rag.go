// Package rag layers an LLM review over the heuristic score, using the
// tenant's previously scored pages as comparison material.
package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/seanblong/geoscore/internal/ai"
	"github.com/seanblong/geoscore/internal/preprocess"
	"github.com/seanblong/geoscore/internal/scoring"
	"github.com/seanblong/geoscore/pkg/models"
)

// Status reports what happened to the enhanced pass.
type Status string

const (
	// StatusDisabled means no tenant, LLM or search service was available.
	StatusDisabled Status = "disabled"
	StatusOK       Status = "ok"
	// StatusUnavailable means the LLM answered but no analysis could be read.
	StatusUnavailable Status = "unavailable"
	// StatusFailed means a provider or rate limit error stopped the pass.
	StatusFailed Status = "failed"
)

const (
	ComparableThreshold = 0.3
	ComparableSearch    = 10
	MaxComparables      = 3
	SourceTypeScan      = "scan"
)

// Metadata keys written by IndexAfterScoring.
const (
	MetaGeoScore  = "geo_score"
	MetaGrade     = "grade"
	MetaURL       = "url"
	MetaScannedAt = "scanned_at"
)

type Scores struct {
	Clarity       float64 `json:"clarity"`
	Structure     float64 `json:"structure"`
	Answerability float64 `json:"answerability"`
}

// Analysis is the LLM's qualitative review.
type Analysis struct {
	Scores           Scores   `json:"scores"`
	Strengths        []string `json:"strengths"`
	Weaknesses       []string `json:"weaknesses"`
	Suggestions      []string `json:"suggestions"`
	QuotableSnippets []string `json:"quotable_snippets"`
	MissingElements  []string `json:"missing_elements"`
}

// Comparable is a previously scored page used as reference.
type Comparable struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	URL        string   `json:"url,omitempty"`
	GeoScore   *float64 `json:"geo_score,omitempty"`
	Similarity float64  `json:"similarity"`
	Excerpt    string   `json:"-"`
}

type RAGAnalysis struct {
	Analysis
	Comparables []Comparable `json:"comparables"`
	Model       string       `json:"model"`
}

// EnhancedResult is the base score plus the optional review. RAG is nil
// unless Status is StatusOK.
type EnhancedResult struct {
	scoring.ScoreResult
	RAG    *RAGAnalysis `json:"rag_analysis,omitempty"`
	Status Status       `json:"rag_status"`
	Reason string       `json:"rag_reason,omitempty"`
}

// Scorer computes the base score.
type Scorer interface {
	ScorePage(ctx context.Context, in scoring.ScanInput) (scoring.ScoreResult, error)
}

// Searcher is the part of search.Service the enhancer uses.
type Searcher interface {
	Search(ctx context.Context, tenant, query string, limit int, threshold float64, filters models.Filters) ([]models.RankedDocument, error)
	AddDocument(ctx context.Context, tenant, title, content string, metadata map[string]any, chunk bool) ([]models.Document, error)
	DeleteDocuments(ctx context.Context, tenant string, filters models.Filters) (int, error)
}

type Enhancer struct {
	Scorer   Scorer
	Searcher Searcher
	LLM      ai.LLM
	Log      zerolog.Logger
}

// NewEnhancer returns an Enhancer. searcher and llm may be nil, which
// disables the review.
func NewEnhancer(scorer Scorer, searcher Searcher, llm ai.LLM) *Enhancer {
	return &Enhancer{Scorer: scorer, Searcher: searcher, LLM: llm, Log: zerolog.Nop()}
}

// Enabled reports whether reviews can run at all.
func (e *Enhancer) Enabled() bool { return e.Searcher != nil && e.LLM != nil }

// ScorePageEnhanced scores the page and, when possible, adds an LLM review.
// The base score is always computed first and is never changed by the
// review. Provider and rate limit errors are returned alongside the base
// result; an unreadable LLM answer is not an error.
func (e *Enhancer) ScorePageEnhanced(ctx context.Context, tenant string, in scoring.ScanInput) (EnhancedResult, error) {
	base, err := e.Scorer.ScorePage(ctx, in)
	if err != nil {
		return EnhancedResult{}, err
	}
	res := EnhancedResult{ScoreResult: base, Status: StatusDisabled}
	switch {
	case tenant == "":
		res.Reason = "no tenant"
		return res, nil
	case !e.Enabled():
		res.Reason = "llm or search not configured"
		return res, nil
	}

	doc := preprocess.ParseWithURL(in.HTML, in.URL)
	page := Page{Title: doc.Title, URL: in.URL, Text: doc.PlainText}
	if strings.TrimSpace(page.Text) == "" {
		res.Status = StatusUnavailable
		res.Reason = "page has no text"
		return res, nil
	}

	query := page.Text
	if page.Title != "" {
		query = page.Title + "\n\n" + page.Text
	}
	hits, err := e.Searcher.Search(ctx, tenant, query, ComparableSearch, ComparableThreshold, nil)
	if err != nil {
		return failed(res, err), fmt.Errorf("search comparables: %w", err)
	}
	comparables := pickComparables(hits, in.URL)

	answer, err := e.LLM.Generate(ctx, systemPrompt, BuildPrompt(page, base, comparables))
	if err != nil {
		return failed(res, err), fmt.Errorf("generate analysis: %w", err)
	}

	analysis, err := parseAnalysis(answer)
	if err != nil {
		e.Log.Warn().Err(err).Str("tenant", tenant).Str("url", in.URL).Msg("llm analysis unreadable")
		res.Status = StatusUnavailable
		res.Reason = err.Error()
		return res, nil
	}
	res.Status = StatusOK
	res.RAG = &RAGAnalysis{Analysis: analysis, Comparables: comparables, Model: e.LLM.Model()}
	e.Log.Debug().
		Str("tenant", tenant).
		Str("url", in.URL).
		Int("comparables", len(comparables)).
		Msg("enhanced scan complete")
	return res, nil
}

func failed(res EnhancedResult, err error) EnhancedResult {
	res.Status = StatusFailed
	res.Reason = err.Error()
	return res
}

func parseAnalysis(answer string) (Analysis, error) {
	raw, ok := ExtractJSON(answer)
	if !ok {
		return Analysis{}, errors.New("no JSON object in response")
	}
	var a Analysis
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return Analysis{}, fmt.Errorf("decode analysis: %w", err)
	}
	a.Scores.Clarity = clamp(a.Scores.Clarity)
	a.Scores.Structure = clamp(a.Scores.Structure)
	a.Scores.Answerability = clamp(a.Scores.Answerability)
	return a, nil
}

func clamp(v float64) float64 {
	return min(10, max(0, v))
}

// pickComparables keeps one hit per source page, skipping the page itself,
// and returns the best scored ones. Pages without a stored score rank last.
func pickComparables(hits []models.RankedDocument, selfURL string) []Comparable {
	seen := make(map[string]bool)
	var out []Comparable
	for _, h := range hits {
		md := h.Document.Metadata
		u, _ := md[MetaURL].(string)
		if selfURL != "" && u == selfURL {
			continue
		}
		key := u
		if key == "" {
			key, _ = md["parent_title"].(string)
		}
		if key == "" {
			key = h.Document.ID
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, Comparable{
			ID:         h.Document.ID,
			Title:      h.Document.Title,
			URL:        u,
			GeoScore:   number(md[MetaGeoScore]),
			Similarity: h.Similarity,
			Excerpt:    h.Document.Content,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].GeoScore, out[j].GeoScore
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return *a > *b
	})
	if len(out) > MaxComparables {
		out = out[:MaxComparables]
	}
	return out
}

// number reads a metadata value that may have been round-tripped through
// JSON.
func number(v any) *float64 {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		x, err := n.Float64()
		if err != nil {
			return nil
		}
		f = x
	case string:
		x, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return nil
		}
		f = x
	default:
		return nil
	}
	return &f
}

// IndexAfterScoring stores a scored page so later scans of the tenant's
// other pages can compare against it. An earlier copy of the same URL is
// replaced.
func (e *Enhancer) IndexAfterScoring(ctx context.Context, tenant string, in scoring.ScanInput, res scoring.ScoreResult) ([]models.Document, error) {
	if e.Searcher == nil {
		return nil, nil
	}
	doc := preprocess.ParseWithURL(in.HTML, in.URL)
	if strings.TrimSpace(doc.PlainText) == "" {
		return nil, nil
	}
	title := doc.Title
	if title == "" {
		title = in.URL
	}
	content := doc.PlainText
	if len(doc.Headings) > 0 {
		content = in.HTML
	}

	md := map[string]any{
		MetaGeoScore:  res.Percentage,
		MetaGrade:     res.Grade,
		"source_type": SourceTypeScan,
	}
	if in.URL != "" {
		md[MetaURL] = in.URL
		n, err := e.Searcher.DeleteDocuments(ctx, tenant, models.Filters{MetaURL: in.URL, "source_type": SourceTypeScan})
		if err != nil {
			return nil, fmt.Errorf("replace previous scan: %w", err)
		}
		if n > 0 {
			e.Log.Debug().Str("url", in.URL).Int("documents", n).Msg("replaced previous scan")
		}
	}
	if !in.FetchedAt.IsZero() {
		md[MetaScannedAt] = in.FetchedAt.UTC().Format(time.RFC3339)
	}
	return e.Searcher.AddDocument(ctx, tenant, title, content, md, true)
}
