// Package scoring runs the pillar analyzers over a page and folds their
// results into a graded composite score.
package scoring

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/seanblong/geoscore/internal/pillars"
	"github.com/seanblong/geoscore/internal/preprocess"
)

// ScanInput is one page to score. Only HTML is required; the other fields
// carry collaborator data fetched by the caller.
type ScanInput struct {
	HTML      string    `json:"html"`
	URL       string    `json:"url,omitempty"`
	FetchedAt time.Time `json:"fetched_at,omitempty"`
	RobotsTxt string    `json:"robots_txt,omitempty"`
	LlmsTxt   string    `json:"llms_txt,omitempty"`
	// SiteSimilarity is the page's similarity to the rest of its site.
	SiteSimilarity *float64 `json:"site_similarity,omitempty"`
}

// Options configures an Engine. Zero values select the defaults.
type Options struct {
	Weights    Weights
	Scale      GradeScale
	AICrawlers []string
	Logger     *zerolog.Logger
}

// Engine scores pages. It holds no per-request state and is safe for
// concurrent use.
type Engine struct {
	weights  Weights
	scale    GradeScale
	crawlers []string
	log      zerolog.Logger
}

// NewEngine validates opts and returns an Engine.
func NewEngine(opts Options) (*Engine, error) {
	scale := opts.Scale
	if len(scale) == 0 {
		scale = DefaultGradeScale
	}
	if err := scale.Validate(); err != nil {
		return nil, err
	}
	for k, w := range opts.Weights {
		if _, ok := pillars.Lookup(k); !ok {
			return nil, fmt.Errorf("unknown pillar weight %q", k)
		}
		if w < 0 {
			return nil, fmt.Errorf("negative weight %v for pillar %q", w, k)
		}
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Engine{
		weights:  opts.Weights,
		scale:    scale,
		crawlers: opts.AICrawlers,
		log:      logger,
	}, nil
}

// Scale returns the engine's grade scale.
func (e *Engine) Scale() GradeScale { return e.scale }

// ScorePage preprocesses the page once, runs every analyzer concurrently and
// composes the result. The error is non-nil only when ctx is done before
// composition.
func (e *Engine) ScorePage(ctx context.Context, in ScanInput) (ScoreResult, error) {
	if err := ctx.Err(); err != nil {
		return ScoreResult{}, err
	}

	doc := preprocess.ParseWithURL(in.HTML, in.URL)
	pctx := pillars.Context{
		URL:            in.URL,
		Host:           hostOf(in.URL),
		FetchedAt:      in.FetchedAt,
		RobotsTxt:      in.RobotsTxt,
		LlmsTxt:        in.LlmsTxt,
		SiteSimilarity: in.SiteSimilarity,
		AICrawlers:     e.crawlers,
	}

	specs := pillars.Registry()
	results := make([]pillars.Result, len(specs))
	g, gctx := errgroup.WithContext(ctx)
	for i, spec := range specs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = e.analyze(spec, doc, in.HTML, pctx)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ScoreResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return ScoreResult{}, err
	}

	byKey := make(map[pillars.Key]pillars.Result, len(results))
	for _, r := range results {
		byKey[r.Key] = r
	}
	res := Composite(byKey, e.weights, e.scale)
	e.log.Debug().
		Str("url", in.URL).
		Float64("percentage", res.Percentage).
		Str("grade", res.Grade).
		Msg("page scored")
	return res, nil
}

// analyze runs one analyzer, turning a panic into a zero result.
func (e *Engine) analyze(spec pillars.Spec, doc *preprocess.Document, raw string, pctx pillars.Context) (r pillars.Result) {
	defer func() {
		if rec := recover(); rec != nil {
			e.log.Error().
				Str("pillar", string(spec.Key)).
				Interface("panic", rec).
				Msg("analyzer panicked")
			r = pillars.Zero(spec.Key, fmt.Sprint(rec))
		}
	}()
	r = spec.Analyze(doc, raw, pctx)
	r.Key = spec.Key
	return r
}

func hostOf(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
