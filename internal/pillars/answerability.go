package pillars

import (
	"regexp"
	"strings"

	"github.com/seanblong/geoscore/internal/preprocess"
	"github.com/seanblong/geoscore/internal/textutil"
)

var (
	hedgePhrases      = regexp.MustCompile(`(?i)\b(might|maybe|perhaps|possibly|could be|may be|it seems|seems to|arguably|somewhat|probably|i think|i believe|in some cases|sort of|kind of|not sure|unclear)\b`)
	confidencePhrases = regexp.MustCompile(`(?i)\b(clearly|definitely|certainly|always|proven|research shows|studies show|in fact|the answer is|without doubt|the key is|importantly|the best way)\b`)
)

func analyzeAnswerability(doc *preprocess.Document, _ string, _ Context) Result {
	b := newBuilder(Answerability)
	text := doc.PlainText
	sentences := textutil.Sentences(text)
	words := textutil.WordCount(text)

	declarative := 0
	for _, s := range sentences {
		if !strings.HasSuffix(s, "?") && textutil.WordCount(s) >= 4 {
			declarative++
		}
	}
	declRatio := ratio(float64(declarative), float64(len(sentences)))
	declPts := ladder(declRatio, rung{0.8, 4}, rung{0.6, 3}, rung{0.4, 2})
	if declPts == 0 && declarative > 0 {
		declPts = 1
	}
	b.set("declarative", declPts, 4)

	hedges := countMatches(text, hedgePhrases)
	hedgeRate := ratio(float64(hedges), float64(words)) * 100
	hedgePts := 0.0
	if words > 0 {
		switch {
		case hedgeRate < 0.5:
			hedgePts = 4
		case hedgeRate < 1:
			hedgePts = 3
		case hedgeRate < 2:
			hedgePts = 2
		case hedgeRate < 3:
			hedgePts = 1
		}
	}
	b.set("hedging", hedgePts, 4)

	confident := countMatches(text, confidencePhrases)
	b.set("confidence", count3(confident), 3)

	var snippets []string
	for _, s := range sentences {
		n := textutil.RuneLen(s)
		if n < 50 || n > 200 || strings.HasSuffix(s, "?") {
			continue
		}
		if textutil.WordCount(s) < 8 || pronounStart.MatchString(s) {
			continue
		}
		snippets = append(snippets, s)
	}
	b.set("snippets", ladder(float64(len(snippets)), rung{5, 4}, rung{3, 3}, rung{2, 2}, rung{1, 1}), 4)

	answerFirst := false
	opening := ""
	if len(doc.Paragraphs) > 0 {
		opening = doc.Paragraphs[0]
	} else if len(sentences) > 0 {
		opening = sentences[0]
	}
	if first := textutil.Sentences(opening); len(first) > 0 {
		s := first[0]
		answerFirst = !strings.HasSuffix(s, "?") && textutil.WordCount(s) <= 40 &&
			(isDefinition(s) || textutil.WordCount(s) >= 6)
	}
	directness := bool1(answerFirst) + bool1(doc.Lists.Total() > 0) + bool1(doc.BoldCount >= 2)
	b.set("directness", directness, 3)

	examples := snippets
	if len(examples) > 3 {
		examples = examples[:3]
	}
	b.detail("declarative", map[string]any{
		"sentences": len(sentences),
		"ratio":     round2(declRatio),
	})
	b.detail("hedging", map[string]any{
		"count":         hedges,
		"per_100_words": round2(hedgeRate),
	})
	b.detail("confidence", map[string]any{"count": confident})
	b.detail("snippets", map[string]any{
		"count":    len(snippets),
		"examples": examples,
	})
	b.detail("directness", map[string]any{
		"answer_first": answerFirst,
		"lists":        doc.Lists.Total(),
		"bold":         doc.BoldCount,
	})
	if words == 0 {
		b.detail("missing", "text")
	}
	return b.result()
}
