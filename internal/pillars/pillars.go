// Package pillars implements the twelve GEO pillar analyzers. Each analyzer
// is a pure function over a preprocessed page; the Registry table maps a
// pillar key to its analyzer and maximum score.
package pillars

import (
	"math"
	"sort"
	"time"

	"github.com/seanblong/geoscore/internal/preprocess"
)

// Key identifies a pillar.
type Key string

const (
	Definitions      Key = "definitions"
	Structure        Key = "structure"
	Authority        Key = "authority"
	MachineReadable  Key = "machine_readable"
	Answerability    Key = "answerability"
	EEAT             Key = "eeat"
	Citations        Key = "citations"
	AIAccessibility  Key = "ai_accessibility"
	Freshness        Key = "freshness"
	Readability      Key = "readability"
	QuestionCoverage Key = "question_coverage"
	Multimedia       Key = "multimedia"
)

// DefaultAICrawlers are the user agents checked against robots.txt.
var DefaultAICrawlers = []string{
	"GPTBot", "ChatGPT-User", "OAI-SearchBot", "ClaudeBot", "Claude-Web",
	"anthropic-ai", "PerplexityBot", "Perplexity-User", "Google-Extended",
	"CCBot", "Bytespider", "Applebot-Extended", "cohere-ai",
	"Meta-ExternalAgent", "Amazonbot",
}

// Context carries page-level inputs that do not come from the HTML itself.
// Zero values mean the signal is unknown.
type Context struct {
	URL       string
	Host      string
	FetchedAt time.Time
	RobotsTxt string
	LlmsTxt   string
	// SiteSimilarity is the page's similarity to the rest of its site, 0..1.
	SiteSimilarity *float64
	AICrawlers     []string
}

func (c Context) crawlers() []string {
	if len(c.AICrawlers) > 0 {
		return c.AICrawlers
	}
	return DefaultAICrawlers
}

// Result is one pillar's score with its component breakdown and evidence.
type Result struct {
	Key        Key                `json:"key"`
	Score      float64            `json:"score"`
	MaxScore   float64            `json:"max_score"`
	Percentage float64            `json:"percentage"`
	Breakdown  map[string]float64 `json:"breakdown"`
	Details    map[string]any     `json:"details"`
}

// Analyzer scores one pillar. It must not panic or error on any input.
type Analyzer func(doc *preprocess.Document, raw string, ctx Context) Result

// Spec is one row of the strategy table.
type Spec struct {
	Key         Key
	DisplayName string
	MaxScore    float64
	Analyze     Analyzer
}

// maxScores is kept apart from the registry so analyzers can read their
// cap without an initialization cycle.
var maxScores = map[Key]float64{
	Definitions:      20,
	Structure:        20,
	Authority:        25,
	MachineReadable:  13,
	Answerability:    18,
	EEAT:             15,
	Citations:        12,
	AIAccessibility:  8,
	Freshness:        10,
	Readability:      10,
	QuestionCoverage: 10,
	Multimedia:       10,
}

var registry = []Spec{
	{Definitions, "Definitions", maxScores[Definitions], analyzeDefinitions},
	{Structure, "Structure", maxScores[Structure], analyzeStructure},
	{Authority, "Topical Authority", maxScores[Authority], analyzeAuthority},
	{MachineReadable, "Machine Readability", maxScores[MachineReadable], analyzeMachineReadable},
	{Answerability, "Answerability", maxScores[Answerability], analyzeAnswerability},
	{EEAT, "E-E-A-T", maxScores[EEAT], analyzeEEAT},
	{Citations, "Citations", maxScores[Citations], analyzeCitations},
	{AIAccessibility, "AI Accessibility", maxScores[AIAccessibility], analyzeAIAccessibility},
	{Freshness, "Freshness", maxScores[Freshness], analyzeFreshness},
	{Readability, "Readability", maxScores[Readability], analyzeReadability},
	{QuestionCoverage, "Question Coverage", maxScores[QuestionCoverage], analyzeQuestionCoverage},
	{Multimedia, "Multimedia", maxScores[Multimedia], analyzeMultimedia},
}

// Registry returns the pillar table in its canonical order.
func Registry() []Spec {
	out := make([]Spec, len(registry))
	copy(out, registry)
	return out
}

// Lookup returns the spec for key.
func Lookup(key Key) (Spec, bool) {
	for _, s := range registry {
		if s.Key == key {
			return s, true
		}
	}
	return Spec{}, false
}

// MaxTotal is the sum of every pillar's maximum score.
func MaxTotal() float64 {
	var t float64
	for _, s := range registry {
		t += s.MaxScore
	}
	return t
}

// Zero returns an empty result for key, used when an analyzer could not run.
func Zero(key Key, reason string) Result {
	return Result{
		Key:       key,
		MaxScore:  maxScores[key],
		Breakdown: map[string]float64{},
		Details:   map[string]any{"error": reason},
	}
}

// builder accumulates capped components for one pillar.
type builder struct {
	key       Key
	max       float64
	breakdown map[string]float64
	details   map[string]any
}

func newBuilder(key Key) *builder {
	return &builder{
		key:       key,
		max:       maxScores[key],
		breakdown: map[string]float64{},
		details:   map[string]any{},
	}
}

// set records a component's points clamped to [0, limit].
func (b *builder) set(component string, points, limit float64) {
	b.breakdown[component] = clamp(points, 0, limit)
}

func (b *builder) detail(key string, v any) {
	b.details[key] = v
}

func (b *builder) result() Result {
	names := make([]string, 0, len(b.breakdown))
	for name := range b.breakdown {
		names = append(names, name)
	}
	sort.Strings(names)
	var total float64
	for _, name := range names {
		total += b.breakdown[name]
	}
	total = clamp(total, 0, b.max)
	pct := 0.0
	if b.max > 0 {
		pct = round2(total / b.max * 100)
	}
	return Result{
		Key:        b.key,
		Score:      round2(total),
		MaxScore:   b.max,
		Percentage: pct,
		Breakdown:  b.breakdown,
		Details:    b.details,
	}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
