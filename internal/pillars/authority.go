package pillars

import (
	"regexp"

	"github.com/seanblong/geoscore/internal/preprocess"
	"github.com/seanblong/geoscore/internal/textutil"
)

var explanatoryPhrases = regexp.MustCompile(`(?i)\b(because|for example|for instance|this means|in other words|as a result|therefore|specifically|such as|which means|that is why|the reason|due to|consequently)\b`)

func analyzeAuthority(doc *preprocess.Document, _ string, ctx Context) Result {
	b := newBuilder(Authority)
	text := doc.PlainText

	content := textutil.ContentWords(text)
	unique := map[string]bool{}
	for _, w := range content {
		unique[w] = true
	}
	uniqueRatio := ratio(float64(len(unique)), float64(len(content)))
	top := topTerms(content, 5)
	repeated := 0
	for _, t := range top {
		if t.Count >= 3 {
			repeated++
		}
	}
	coherence := 0.0
	switch {
	case len(content) == 0:
	case uniqueRatio >= 0.3 && uniqueRatio <= 0.6:
		coherence += 3
	case uniqueRatio > 0.6 && uniqueRatio <= 0.75:
		coherence += 1
	}
	coherence += ladder(float64(repeated), rung{3, 3}, rung{1, 1})
	b.set("coherence", coherence, 6)

	wordCount := textutil.WordCount(text)
	density := 0.0
	if len(top) > 0 {
		density = ratio(float64(top[0].Count), float64(wordCount)) * 100
	}
	densityPts := 0.0
	switch {
	case density >= 1 && density <= 3:
		densityPts = 5
	case (density >= 0.5 && density < 1) || (density > 3 && density <= 5):
		densityPts = 2
	}
	b.set("keyword_density", densityPts, 5)

	explanatory := countMatches(text, explanatoryPhrases)
	depth := ladder(float64(wordCount), rung{1500, 4}, rung{800, 3}, rung{300, 2}, rung{100, 1})
	depth += count3(explanatory)
	b.set("depth", depth, 7)

	internal := len(doc.Links.Internal)
	b.set("internal_links", ladder(float64(internal), rung{5, 4}, rung{3, 3}, rung{1, 1}), 4)

	sim := map[string]any{"known": ctx.SiteSimilarity != nil}
	simPts := 0.0
	if ctx.SiteSimilarity != nil {
		v := *ctx.SiteSimilarity
		simPts = ladder(v, rung{0.75, 3}, rung{0.5, 2}, rung{0.3, 1})
		sim["value"] = round2(v)
	}
	b.set("site_similarity", simPts, 3)

	b.detail("coherence", map[string]any{
		"unique_ratio":   round2(uniqueRatio),
		"top_terms":      top,
		"repeated_terms": repeated,
	})
	b.detail("keyword_density", map[string]any{"top_term_percent": round2(density)})
	b.detail("depth", map[string]any{
		"word_count":          wordCount,
		"explanatory_phrases": explanatory,
	})
	b.detail("internal_links", map[string]any{"count": internal})
	b.detail("site_similarity", sim)
	return b.result()
}
