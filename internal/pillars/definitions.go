package pillars

import (
	"regexp"
	"strings"

	"github.com/seanblong/geoscore/internal/preprocess"
	"github.com/seanblong/geoscore/internal/textutil"
)

var definitionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(is|are|was|were)\s+(a|an|the|one of the)\s+\S`),
	regexp.MustCompile(`(?i)\b(refers? to|is defined as|are defined as|can be defined as|is known as|is a term for|is the process of|describes)\b`),
	regexp.MustCompile(`(?i)\bmeans\s+(that\s+)?\S`),
}

func isDefinition(sentence string) bool {
	s := strings.TrimSpace(sentence)
	if s == "" || strings.HasSuffix(s, "?") {
		return false
	}
	for _, p := range definitionPatterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

func analyzeDefinitions(doc *preprocess.Document, _ string, _ Context) Result {
	b := newBuilder(Definitions)
	text := doc.PlainText
	totalRunes := textutil.RuneLen(text)

	var defs []string
	firstOffset := -1
	for _, s := range textutil.Sentences(text) {
		if !isDefinition(s) {
			continue
		}
		defs = append(defs, s)
		if firstOffset < 0 {
			if i := strings.Index(text, s); i >= 0 {
				firstOffset = textutil.RuneLen(text[:i])
			}
		}
	}

	b.set("definition_phrases", ladder(float64(len(defs)), rung{3, 10}, rung{2, 7}, rung{1, 4}), 10)

	early := firstOffset >= 0 && totalRunes > 0 && float64(firstOffset) <= 0.2*float64(totalRunes)
	b.set("early_definition", 5*bool1(early), 5)

	entity := mainEntity(doc)
	matched := false
	if entity != "" {
		for _, d := range defs {
			if mentions(d, entity) {
				matched = true
				break
			}
		}
	}
	b.set("entity_match", 5*bool1(matched), 5)

	examples := defs
	if len(examples) > 3 {
		examples = examples[:3]
	}
	b.detail("definitions", map[string]any{
		"count":    len(defs),
		"examples": examples,
	})
	b.detail("early_definition", map[string]any{
		"found":  early,
		"offset": firstOffset,
	})
	b.detail("entity", map[string]any{
		"name":    entity,
		"matched": matched,
	})
	if totalRunes == 0 {
		b.detail("missing", "text")
	}
	return b.result()
}
