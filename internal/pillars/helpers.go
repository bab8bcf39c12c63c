package pillars

import (
	"regexp"
	"sort"
	"strings"

	"github.com/seanblong/geoscore/internal/preprocess"
	"github.com/seanblong/geoscore/internal/textutil"
)

// rung is one step of a descending threshold ladder.
type rung struct {
	min    float64
	points float64
}

// ladder returns the points of the first rung v reaches. Rungs must be
// ordered from the highest threshold down.
func ladder(v float64, rungs ...rung) float64 {
	for _, r := range rungs {
		if v >= r.min {
			return r.points
		}
	}
	return 0
}

// count3 is the common "≥3 → 3, 2 → 2, 1 → 1" ladder.
func count3(n int) float64 {
	return ladder(float64(n), rung{3, 3}, rung{2, 2}, rung{1, 1})
}

func bool1(ok bool) float64 {
	if ok {
		return 1
	}
	return 0
}

var (
	faqHeading      = regexp.MustCompile(`(?i)\b(faqs?|frequently asked questions|common questions)\b`)
	questionStart   = regexp.MustCompile(`(?i)^(what|how|why|when|where|who|which|can|does|do|is|are|should|will|could|would)\b`)
	questionWords   = regexp.MustCompile(`(?i)\b(what|how|why|when|where|who)\b`)
	markdownLink    = regexp.MustCompile(`\[[^\]]+\]\([^)\s]+\)`)
	statisticRe     = regexp.MustCompile(`(?i)\d[\d,]*(\.\d+)?\s*(%|percent\b|per cent\b|million\b|billion\b|trillion\b|thousand\b|times\b|x\b)`)
	yearRe          = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	pronounStart    = regexp.MustCompile(`(?i)^(this|that|it|they|these|those|he|she|we|its|their)\b`)
	filenameAlt     = regexp.MustCompile(`(?i)^[\w\-]+\.(png|jpe?g|gif|webp|svg|avif)$`)
	referenceHeader = regexp.MustCompile(`(?i)\b(references|sources|bibliography|citations|works cited|further reading)\b`)
)

// countMatches counts non-overlapping matches of every pattern in text.
func countMatches(text string, patterns ...*regexp.Regexp) int {
	n := 0
	for _, p := range patterns {
		n += len(p.FindAllStringIndex(text, -1))
	}
	return n
}

// isQuestionHeading reports whether a heading is phrased as a question.
func isQuestionHeading(text string) bool {
	t := strings.TrimSpace(text)
	if t == "" {
		return false
	}
	return strings.HasSuffix(t, "?") || strings.HasSuffix(t, "？") || questionStart.MatchString(t)
}

// hasFAQHeading reports whether any heading names an FAQ section.
func hasFAQHeading(doc *preprocess.Document) bool {
	for _, h := range doc.Headings {
		if faqHeading.MatchString(h.Text) {
			return true
		}
	}
	return false
}

// faqPoints is shared by machine_readable and question_coverage.
func faqPoints(doc *preprocess.Document) (float64, map[string]any) {
	schema := doc.HasSchemaType("FAQPage")
	heading := hasFAQHeading(doc)
	points := 0.0
	switch {
	case schema:
		points = 2
	case heading:
		points = 1
	}
	return points, map[string]any{"schema": schema, "heading": heading}
}

// mainEntity is the first H1, falling back to the title up to its first
// separator.
func mainEntity(doc *preprocess.Document) string {
	if h1 := doc.HeadingsAt(1); len(h1) > 0 && h1[0].Text != "" {
		return h1[0].Text
	}
	t := doc.Title
	for _, sep := range []string{" | ", " - ", " – ", " — ", ": "} {
		if i := strings.Index(t, sep); i > 0 {
			t = t[:i]
		}
	}
	return strings.TrimSpace(t)
}

// stem strips common English plural endings.
func stem(w string) string {
	w = strings.ToLower(w)
	switch {
	case strings.HasSuffix(w, "ies") && len(w) > 4:
		return w[:len(w)-3] + "y"
	case strings.HasSuffix(w, "es") && len(w) > 4 && strings.ContainsAny(w[len(w)-3:len(w)-2], "sxz"):
		return w[:len(w)-2]
	case strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") && len(w) > 3:
		return w[:len(w)-1]
	}
	return w
}

// mentions reports whether text mentions every content word of entity,
// ignoring plural endings.
func mentions(text, entity string) bool {
	words := textutil.ContentWords(entity)
	if len(words) == 0 {
		e := strings.ToLower(strings.TrimSpace(entity))
		return e != "" && strings.Contains(strings.ToLower(text), e)
	}
	have := map[string]bool{}
	for _, w := range textutil.Words(text) {
		have[stem(w)] = true
	}
	for _, w := range words {
		if !have[stem(w)] {
			return false
		}
	}
	return true
}

// termCount is a term and its frequency.
type termCount struct {
	Term  string `json:"term"`
	Count int    `json:"count"`
}

// topTerms returns the n most frequent content words, ties broken
// alphabetically.
func topTerms(words []string, n int) []termCount {
	freq := map[string]int{}
	for _, w := range words {
		freq[w]++
	}
	out := make([]termCount, 0, len(freq))
	for t, c := range freq {
		out = append(out, termCount{t, c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Term < out[j].Term
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// ratio is a/b, or 0 when b is 0.
func ratio(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}
