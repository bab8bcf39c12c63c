package pillars

import (
	"sort"
	"strings"

	"github.com/seanblong/geoscore/internal/preprocess"
	"github.com/seanblong/geoscore/internal/textutil"
)

func analyzeQuestionCoverage(doc *preprocess.Document, _ string, _ Context) Result {
	b := newBuilder(QuestionCoverage)

	var questions []string
	for _, h := range doc.Headings {
		if isQuestionHeading(h.Text) {
			questions = append(questions, h.Text)
		}
	}
	b.set("question_headings", count3(len(questions)), 3)

	answered := 0
	for _, s := range doc.Sections {
		if s.Heading == "" || !isQuestionHeading(s.Heading) {
			continue
		}
		first := textutil.Sentences(s.Text)
		if len(first) == 0 {
			continue
		}
		lead := first[0]
		if !strings.HasSuffix(lead, "?") && textutil.WordCount(lead) >= 3 && textutil.WordCount(lead) <= 60 {
			answered++
		}
	}
	b.set("direct_answers", count3(answered), 3)

	faq, faqDetail := faqPoints(doc)
	b.set("faq", faq, 2)

	kinds := map[string]bool{}
	collect := func(s string) {
		for _, m := range questionWords.FindAllString(s, -1) {
			kinds[strings.ToLower(m)] = true
		}
	}
	for _, q := range questions {
		collect(q)
	}
	for _, s := range textutil.Sentences(doc.PlainText) {
		if strings.HasSuffix(s, "?") {
			collect(s)
		}
	}
	b.set("question_types", ladder(float64(len(kinds)), rung{4, 2}, rung{2, 1}), 2)

	types := make([]string, 0, len(kinds))
	for k := range kinds {
		types = append(types, k)
	}
	sort.Strings(types)
	b.detail("question_headings", map[string]any{
		"count":    len(questions),
		"headings": questions,
	})
	b.detail("direct_answers", map[string]any{"count": answered})
	b.detail("faq", faqDetail)
	b.detail("question_types", types)
	return b.result()
}
