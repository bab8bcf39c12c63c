package pillars

import (
	"regexp"
	"strings"

	"github.com/seanblong/geoscore/internal/preprocess"
)

var (
	bylinePhrase  = regexp.MustCompile(`(?i)\b(written|posted|reviewed|authored|edited|fact[- ]checked)\s+by\b`)
	bylineName    = regexp.MustCompile(`\b[Bb]y\s+\p{Lu}\p{Ll}+(\s+\p{Lu}\.)?\s+\p{Lu}\p{Ll}+`)
	aboutAuthor   = regexp.MustCompile(`(?i)\b(about the author|author bio|meet the author)\b`)
	trustKeywords = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\breviews?\b`),
		regexp.MustCompile(`(?i)\btestimonials?\b`),
		regexp.MustCompile(`(?i)\bcertifi(ed|cation|cations)\b`),
		regexp.MustCompile(`(?i)\baccredited\b`),
		regexp.MustCompile(`(?i)\baward[- ]winning\b|\bawards?\b`),
		regexp.MustCompile(`(?i)\bguarantee[ds]?\b`),
		regexp.MustCompile(`(?i)\bprivacy policy\b`),
		regexp.MustCompile(`(?i)\bterms of (service|use)\b`),
		regexp.MustCompile(`(?i)\btrusted by\b`),
		regexp.MustCompile(`(?i)\bcase stud(y|ies)\b`),
		regexp.MustCompile(`(?i)\bverified\b`),
		regexp.MustCompile(`(?i)\b(rated|ratings?)\b`),
	}
	credentialPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b(PhD|Ph\.D\.|M\.D\.|MD|MBA|CPA|RN|CFA|JD|DDS|PE)\b`),
		regexp.MustCompile(`(?i)\b(board[- ]certified|licensed|certified)\s+\w+`),
		regexp.MustCompile(`(?i)\b\d+\+?\s+years?\s+of\s+(experience|practice)\b`),
		regexp.MustCompile(`(?i)\b(expert|specialist|professor|researcher|practitioner)\s+(in|at|of|with)\b`),
	}
	contactText = regexp.MustCompile(`(?i)\bcontact\b`)
)

func analyzeEEAT(doc *preprocess.Document, _ string, _ Context) Result {
	b := newBuilder(EEAT)
	text := doc.PlainText

	byline := len(doc.Authors) > 0 || bylinePhrase.MatchString(text) || bylineName.MatchString(text)
	bio := doc.AuthorBio != "" || aboutAuthor.MatchString(text) || personWithDescription(doc)
	b.set("author", 3*bool1(byline)+2*bool1(bio), 5)

	var trust []string
	for _, p := range trustKeywords {
		if m := p.FindString(text); m != "" {
			trust = append(trust, strings.ToLower(m))
		}
	}
	b.set("trust_signals", ladder(float64(len(trust)), rung{4, 4}, rung{2, 2}, rung{1, 1}), 4)

	contactLink := doc.Tags["address"] > 0
	for _, l := range append(append([]preprocess.Link{}, doc.Links.Internal...), doc.Links.External...) {
		if contactText.MatchString(l.Href) || contactText.MatchString(l.Text) {
			contactLink = true
			break
		}
	}
	contact := bool1(doc.Links.Mailto > 0) + bool1(doc.Links.Tel > 0) + bool1(contactLink)
	b.set("contact", contact, 3)

	credentials := countMatches(text, credentialPatterns...)
	b.set("credentials", count3(credentials), 3)

	b.detail("author", map[string]any{
		"byline":  byline,
		"bio":     bio,
		"authors": doc.Authors,
	})
	b.detail("trust_signals", map[string]any{
		"count":    len(trust),
		"keywords": trust,
	})
	b.detail("contact", map[string]any{
		"email":   doc.Links.Mailto > 0,
		"phone":   doc.Links.Tel > 0,
		"contact": contactLink,
	})
	b.detail("credentials", map[string]any{"count": credentials})
	return b.result()
}

func personWithDescription(doc *preprocess.Document) bool {
	for _, block := range doc.SchemaBlocks {
		for _, t := range preprocess.TypesOf(block) {
			if strings.EqualFold(t, "Person") {
				if d, ok := block["description"].(string); ok && strings.TrimSpace(d) != "" {
					return true
				}
			}
		}
	}
	return false
}
