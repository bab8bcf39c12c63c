package pillars

import (
	"strings"

	"github.com/seanblong/geoscore/internal/preprocess"
)

var richSchemaTypes = map[string]bool{
	"faqpage": true, "howto": true, "article": true, "newsarticle": true,
	"blogposting": true, "techarticle": true, "product": true, "recipe": true,
	"review": true, "event": true, "course": true, "qapage": true,
	"videoobject": true, "scholarlyarticle": true, "medicalwebpage": true,
}

var semanticElements = []string{
	"header", "nav", "main", "article", "section", "aside", "footer",
	"figure", "figcaption", "time", "address", "mark", "details", "summary",
}

func analyzeMachineReadable(doc *preprocess.Document, _ string, ctx Context) Result {
	b := newBuilder(MachineReadable)

	types := map[string]bool{}
	typed := false
	for _, block := range doc.SchemaBlocks {
		ts := preprocess.TypesOf(block)
		if len(ts) > 0 {
			typed = true
		}
		for _, t := range ts {
			types[strings.ToLower(t)] = true
		}
	}
	rich := false
	for t := range types {
		if richSchemaTypes[t] {
			rich = true
			break
		}
	}
	schema := 0.0
	if len(doc.SchemaBlocks) > 0 {
		schema += 2
		schema += bool1(typed)
		schema += bool1(rich || len(types) >= 2)
	}
	b.set("schema", schema, 4)

	var present []string
	for _, el := range semanticElements {
		if doc.Tags[el] > 0 {
			present = append(present, el)
		}
	}
	semantic := ladder(float64(len(present)), rung{5, 2}, rung{3, 1})
	withAlt := 0
	for _, img := range doc.Images {
		if img.Alt != "" {
			withAlt++
		}
	}
	altCoverage := ratio(float64(withAlt), float64(len(doc.Images)))
	if len(doc.Images) > 0 && altCoverage >= 0.9 {
		semantic++
	}
	b.set("semantic_html", semantic, 3)

	faq, faqDetail := faqPoints(doc)
	b.set("faq", faq, 2)

	metaPresent := map[string]bool{
		"title":          doc.Title != "",
		"description":    doc.Meta("description") != "",
		"og:title":       doc.Meta("og:title") != "",
		"og:description": doc.Meta("og:description") != "",
		"canonical":      doc.Canonical != "",
	}
	metaCount := 0
	for _, ok := range metaPresent {
		if ok {
			metaCount++
		}
	}
	b.set("meta_tags", ladder(float64(metaCount), rung{4, 2}, rung{2, 1}), 2)

	llms := strings.TrimSpace(ctx.LlmsTxt)
	llmsTitle := false
	for _, line := range strings.Split(llms, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "# ") {
			llmsTitle = true
			break
		}
	}
	llmsLinks := len(markdownLink.FindAllStringIndex(llms, -1))
	llmsPts := 0.0
	if llms != "" {
		llmsPts = 1
		if llmsTitle && llmsLinks >= 3 {
			llmsPts++
		}
	}
	b.set("llms_txt", llmsPts, 2)

	b.detail("schema", map[string]any{
		"valid_blocks":   len(doc.SchemaBlocks),
		"invalid_blocks": doc.InvalidSchemaBlocks,
		"types":          doc.SchemaTypes(),
		"rich":           rich,
	})
	b.detail("semantic_html", map[string]any{
		"elements":     present,
		"alt_coverage": round2(altCoverage),
	})
	b.detail("faq", faqDetail)
	b.detail("meta_tags", metaPresent)
	b.detail("llms_txt", map[string]any{
		"present": llms != "",
		"title":   llmsTitle,
		"links":   llmsLinks,
	})
	return b.result()
}
