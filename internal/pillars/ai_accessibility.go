package pillars

import (
	"strings"

	"github.com/seanblong/geoscore/internal/preprocess"
)

// robotsMetaKeys are the meta names whose content carries robots directives.
var robotsMetaKeys = []string{"robots", "googlebot", "bingbot", "gptbot", "claudebot"}

func analyzeAIAccessibility(doc *preprocess.Document, _ string, ctx Context) Result {
	b := newBuilder(AIAccessibility)

	robotsDetail := map[string]any{}
	robotsPts := 0.0
	if strings.TrimSpace(ctx.RobotsTxt) == "" {
		robotsPts = 2
		robotsDetail["found"] = false
		robotsDetail["allows_all_ai"] = true
		robotsDetail["blocked_crawlers"] = []string{}
		robotsDetail["sitemap"] = false
	} else {
		rf := parseRobots(ctx.RobotsTxt)
		crawlers := ctx.crawlers()
		blocked := []string{}
		for _, c := range crawlers {
			if rf.rulesFor(c).blocksRoot() {
				blocked = append(blocked, c)
			}
		}
		switch {
		case len(blocked) == 0:
			robotsPts = 3
		case len(blocked) < len(crawlers):
			robotsPts = 1
		}
		sitemap := len(rf.sitemaps) > 0
		robotsPts += bool1(sitemap)
		robotsDetail["found"] = true
		robotsDetail["allows_all_ai"] = len(blocked) == 0
		robotsDetail["blocked_crawlers"] = blocked
		robotsDetail["sitemap"] = sitemap
	}
	b.set("robots_txt", robotsPts, 4)

	directives := map[string]bool{}
	for _, key := range robotsMetaKeys {
		for _, d := range strings.Split(strings.ToLower(doc.Meta(key)), ",") {
			if d = strings.TrimSpace(d); d != "" {
				directives[d] = true
			}
		}
	}
	noindex := directives["noindex"] || directives["none"]
	nosnippet := directives["nosnippet"] || directives["max-snippet:0"]
	noai := directives["noai"] || directives["noimageai"]
	metaPts := 2.0
	switch {
	case noindex:
		metaPts = 0
	case nosnippet || noai:
		metaPts = 1
	}
	b.set("meta_robots", metaPts, 2)

	friendly := strings.TrimSpace(ctx.LlmsTxt) != ""
	for k := range doc.MetaTags {
		if strings.HasPrefix(k, "ai-") || strings.HasPrefix(k, "ai:") || strings.HasPrefix(k, "llms") {
			friendly = true
			break
		}
	}
	if !friendly {
		for _, l := range doc.Links.Internal {
			if strings.HasSuffix(strings.ToLower(l.Href), "llms.txt") {
				friendly = true
				break
			}
		}
	}
	aiPts := 1.0
	switch {
	case noai:
		aiPts = 0
	case friendly:
		aiPts = 2
	}
	b.set("ai_meta", aiPts, 2)

	b.detail("robots_txt", robotsDetail)
	b.detail("meta_robots", map[string]any{
		"noindex":   noindex,
		"nosnippet": nosnippet,
		"noai":      noai,
	})
	b.detail("ai_meta", map[string]any{
		"ai_friendly": friendly,
		"blocked":     noai,
	})
	return b.result()
}
