package pillars

import (
	"github.com/seanblong/geoscore/internal/preprocess"
)

func analyzeStructure(doc *preprocess.Document, _ string, _ Context) Result {
	b := newBuilder(Structure)

	h1 := len(doc.HeadingsAt(1))
	h2 := len(doc.HeadingsAt(2))
	h3 := len(doc.HeadingsAt(3))

	headings := 0.0
	switch {
	case h1 == 1:
		headings += 3
	case h1 > 1:
		headings += 1
	}
	headings += ladder(float64(h2), rung{2, 2}, rung{1, 1})
	headings += bool1(h3 > 0)
	b.set("headings", headings, 6)

	lists := ladder(float64(doc.Lists.Total()), rung{3, 3}, rung{1, 2})
	avgItems := ratio(float64(doc.Lists.Items), float64(doc.Lists.Total()))
	if avgItems >= 3 {
		lists += 2
	}
	b.set("lists", lists, 5)

	sections := ladder(float64(doc.Tags["section"]), rung{2, 2}, rung{1, 1})
	sections += bool1(doc.Tags["article"] > 0)
	sections += bool1(doc.Tags["aside"] > 0)
	b.set("sections", sections, 4)

	violations := 0
	for i := 1; i < len(doc.Headings); i++ {
		if doc.Headings[i].Level > doc.Headings[i-1].Level+1 {
			violations++
		}
	}
	hierarchy := 0.0
	if len(doc.Headings) >= 2 {
		switch violations {
		case 0:
			hierarchy = 5
		case 1:
			hierarchy = 3
		case 2:
			hierarchy = 1
		}
	}
	b.set("hierarchy", hierarchy, 5)

	b.detail("headings", map[string]any{
		"h1":    map[string]any{"count": h1},
		"h2":    map[string]any{"count": h2},
		"h3":    map[string]any{"count": h3},
		"total": len(doc.Headings),
	})
	b.detail("lists", map[string]any{
		"ordered":     doc.Lists.Ordered,
		"unordered":   doc.Lists.Unordered,
		"avg_items":   round2(avgItems),
		"total_items": doc.Lists.Items,
	})
	b.detail("sections", map[string]any{
		"section": doc.Tags["section"],
		"article": doc.Tags["article"],
		"aside":   doc.Tags["aside"],
	})
	b.detail("hierarchy", map[string]any{"violations": violations})
	return b.result()
}
