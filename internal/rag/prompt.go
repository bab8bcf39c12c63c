package rag

import (
	"fmt"
	"sort"
	"strings"

	"github.com/seanblong/geoscore/internal/pillars"
	"github.com/seanblong/geoscore/internal/scoring"
	"github.com/seanblong/geoscore/internal/textutil"
)

const (
	maxTargetRunes  = 6000
	maxExcerptRunes = 800
)

const systemPrompt = `You are an expert in generative engine optimization: how well web content
is understood, trusted and quoted by AI answer engines. Reply with a single JSON
object and nothing else.`

// Page is the content under review.
type Page struct {
	Title string
	URL   string
	Text  string
}

// BuildPrompt renders the analysis request for page, its base score and up
// to three comparable pages.
func BuildPrompt(page Page, base scoring.ScoreResult, comparables []Comparable) string {
	var b strings.Builder

	b.WriteString("# Page under review\n")
	if page.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", page.Title)
	}
	if page.URL != "" {
		fmt.Fprintf(&b, "URL: %s\n", page.URL)
	}
	fmt.Fprintf(&b, "Heuristic score: %.1f%% (grade %s)\n", base.Percentage, base.Grade)

	keys := make([]string, 0, len(base.Pillars))
	for k := range base.Pillars {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	for _, k := range keys {
		r := base.Pillars[pillars.Key(k)]
		fmt.Fprintf(&b, "- %s: %.1f/%.0f\n", k, r.Score, r.MaxScore)
	}

	b.WriteString("\n## Content\n")
	b.WriteString(textutil.Truncate(page.Text, maxTargetRunes))
	b.WriteString("\n")

	if len(comparables) > 0 {
		b.WriteString("\n# Comparable pages from the same site\n")
		for i, c := range comparables {
			fmt.Fprintf(&b, "\n## Comparable %d: %s", i+1, c.Title)
			if c.GeoScore != nil {
				fmt.Fprintf(&b, " (score %.1f%%)", *c.GeoScore)
			}
			b.WriteString("\n")
			b.WriteString(textutil.Truncate(c.Excerpt, maxExcerptRunes))
			b.WriteString("\n")
		}
	}

	b.WriteString(`
# Task
Assess how well the page would be understood and cited by AI answer engines.
Use the comparable pages, if any, as reference points. Respond with JSON:
{
  "scores": {"clarity": 0-10, "structure": 0-10, "answerability": 0-10},
  "strengths": ["..."],
  "weaknesses": ["..."],
  "suggestions": ["specific, actionable change"],
  "quotable_snippets": ["sentence an AI engine could quote verbatim"],
  "missing_elements": ["..."]
}
`)
	return b.String()
}
