package pillars

import (
	"regexp"
	"strings"

	"github.com/seanblong/geoscore/internal/preprocess"
	"github.com/seanblong/geoscore/internal/textutil"
)

var (
	citationPhrases = regexp.MustCompile(`(?i)\b(according to|as reported by|research (by|from)|a (\d{4} )?study (by|from|published)|data from|cited in|published in|source:)`)
	footnoteMarker  = regexp.MustCompile(`\[\d{1,3}\]`)
)

// authoritativeSuffixes are host suffixes counted as primary sources.
var authoritativeSuffixes = []string{".gov", ".edu", ".mil", ".int", ".gov.uk", ".ac.uk", ".edu.au", ".gc.ca", ".europa.eu"}

func isAuthoritative(host string) bool {
	h := strings.ToLower(host)
	for _, s := range authoritativeSuffixes {
		if strings.HasSuffix(h, s) {
			return true
		}
	}
	return false
}

func analyzeCitations(doc *preprocess.Document, _ string, _ Context) Result {
	b := newBuilder(Citations)
	text := doc.PlainText

	authoritative, general := 0, 0
	var authHosts []string
	for _, l := range doc.Links.External {
		if isAuthoritative(l.Host) {
			authoritative++
			authHosts = append(authHosts, l.Host)
		} else {
			general++
		}
	}
	ext := ladder(float64(authoritative), rung{2, 3}, rung{1, 2})
	if general >= 2 {
		ext++
	}
	b.set("external_links", ext, 4)

	phrases := countMatches(text, citationPhrases)
	footnotes := countMatches(text, footnoteMarker)
	inline := phrases + doc.Blockquotes + footnotes
	b.set("inline_citations", count3(inline), 3)

	stats := 0
	for _, s := range textutil.Sentences(text) {
		if statisticRe.MatchString(s) && textutil.WordCount(s) >= 6 {
			stats++
		}
	}
	b.set("statistics", count3(stats), 3)

	references := false
	for _, h := range doc.Headings {
		if referenceHeader.MatchString(h.Text) {
			references = true
			break
		}
	}
	b.set("references", 2*bool1(references), 2)

	b.detail("external_links", map[string]any{
		"authoritative":       authoritative,
		"general":             general,
		"authoritative_hosts": authHosts,
	})
	b.detail("inline_citations", map[string]any{
		"phrases":     phrases,
		"blockquotes": doc.Blockquotes,
		"footnotes":   footnotes,
	})
	b.detail("statistics", map[string]any{"count": stats})
	b.detail("references", map[string]any{"section": references})
	return b.result()
}
