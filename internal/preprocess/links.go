package preprocess

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/seanblong/geoscore/internal/textutil"
)

func extractLinks(q *goquery.Document, doc *Document, base *url.URL) {
	q.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(attr(s, "href"))
		lower := strings.ToLower(href)
		switch {
		case href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(lower, "javascript:"):
			return
		case strings.HasPrefix(lower, "mailto:"):
			doc.Links.Mailto++
			return
		case strings.HasPrefix(lower, "tel:"):
			doc.Links.Tel++
			return
		}

		link := Link{
			Href: href,
			Text: textutil.CollapseWhitespace(s.Text()),
			Rel:  strings.ToLower(strings.TrimSpace(attr(s, "rel"))),
		}
		u, err := url.Parse(href)
		if err != nil {
			return
		}
		if base != nil {
			u = base.ResolveReference(u)
			link.Href = u.String()
		}
		if u.Scheme != "" && u.Scheme != "http" && u.Scheme != "https" {
			return
		}
		link.Host = strings.ToLower(u.Hostname())

		if link.Host == "" || (base != nil && sameSite(link.Host, base.Hostname())) {
			doc.Links.Internal = append(doc.Links.Internal, link)
			return
		}
		doc.Links.External = append(doc.Links.External, link)
	})
}

func sameSite(a, b string) bool {
	a = strings.TrimPrefix(strings.ToLower(a), "www.")
	b = strings.TrimPrefix(strings.ToLower(b), "www.")
	return a == b
}

// extractSchema decodes every JSON-LD block. Blocks that fail to decode
// are counted and otherwise ignored; @graph containers are flattened.
func extractSchema(q *goquery.Document, doc *Document) {
	q.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		body := strings.TrimSpace(s.Text())
		if body == "" {
			doc.InvalidSchemaBlocks++
			return
		}
		var v any
		if err := json.Unmarshal([]byte(body), &v); err != nil {
			doc.InvalidSchemaBlocks++
			return
		}
		before := len(doc.SchemaBlocks)
		doc.SchemaBlocks = appendSchema(doc.SchemaBlocks, v)
		if len(doc.SchemaBlocks) == before {
			doc.InvalidSchemaBlocks++
		}
	})
	q.Find("[itemtype]").Each(func(_ int, s *goquery.Selection) {
		t := strings.TrimSpace(attr(s, "itemtype"))
		if t == "" {
			return
		}
		if i := strings.LastIndex(t, "/"); i >= 0 {
			t = t[i+1:]
		}
		doc.ItemTypes = append(doc.ItemTypes, t)
	})
}

func appendSchema(out []map[string]any, v any) []map[string]any {
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			out = appendSchema(out, item)
		}
	case map[string]any:
		if graph, ok := t["@graph"].([]any); ok {
			for _, item := range graph {
				out = appendSchema(out, item)
			}
			if _, typed := t["@type"]; !typed {
				return out
			}
		}
		out = append(out, t)
	}
	return out
}

// SchemaTypes returns every @type value across the valid JSON-LD blocks
// plus microdata item types.
func (d *Document) SchemaTypes() []string {
	var out []string
	for _, b := range d.SchemaBlocks {
		out = append(out, TypesOf(b)...)
	}
	return append(out, d.ItemTypes...)
}

// HasSchemaType reports whether any block declares the given @type,
// compared case-insensitively.
func (d *Document) HasSchemaType(name string) bool {
	for _, t := range d.SchemaTypes() {
		if strings.EqualFold(t, name) {
			return true
		}
	}
	return false
}

// TypesOf returns the @type of a JSON-LD object, which may be a string or
// an array of strings.
func TypesOf(block map[string]any) []string {
	switch t := block["@type"].(type) {
	case string:
		return []string{t}
	case []any:
		var out []string
		for _, x := range t {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
