package preprocess

import (
	"html"
	"regexp"
	"strings"

	xhtml "golang.org/x/net/html"

	"github.com/seanblong/geoscore/internal/textutil"
)

var (
	scriptTag     = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleTag      = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	noscriptTag   = regexp.MustCompile(`(?is)<noscript[^>]*>.*?</noscript>`)
	templateTag   = regexp.MustCompile(`(?is)<template[^>]*>.*?</template>`)
	headTag       = regexp.MustCompile(`(?is)<head[^>]*>.*?</head>`)
	htmlComments  = regexp.MustCompile(`(?s)<!--.*?-->`)
	blockElements = regexp.MustCompile(`(?i)</(p|div|li|tr|h[1-6]|blockquote|pre|table|section|article|header|footer|ul|ol|dd|dt)\s*>`)
	brTags        = regexp.MustCompile(`(?i)<br\s*/?>`)
	allTags       = regexp.MustCompile(`<[^>]+>`)
	multiSpaces   = regexp.MustCompile(`[ \t\f\v\x{00a0}]+`)
	multiNewlines = regexp.MustCompile(`\n{3,}`)
)

// StripHTML extracts readable text from raw HTML. Script, style and noscript
// bodies and comments are removed entirely; block closings and <br> become
// line breaks.
func StripHTML(content string) string {
	content = scriptTag.ReplaceAllString(content, "")
	content = styleTag.ReplaceAllString(content, "")
	content = noscriptTag.ReplaceAllString(content, "")
	content = templateTag.ReplaceAllString(content, "")
	content = headTag.ReplaceAllString(content, "")
	content = htmlComments.ReplaceAllString(content, "")

	content = blockElements.ReplaceAllString(content, "\n")
	content = brTags.ReplaceAllString(content, "\n")
	content = allTags.ReplaceAllString(content, "")

	content = html.UnescapeString(content)
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = multiSpaces.ReplaceAllString(content, " ")

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	content = strings.Join(lines, "\n")
	content = multiNewlines.ReplaceAllString(content, "\n\n")
	return strings.TrimSpace(content)
}

// extractSections walks the body and splits its text at heading boundaries.
func extractSections(root *xhtml.Node) []Section {
	var (
		sections []Section
		current  = Section{}
		buf      strings.Builder
	)
	flush := func() {
		current.Text = strings.TrimSpace(collapseLines(buf.String()))
		if current.Heading != "" || current.Text != "" {
			sections = append(sections, current)
		}
		buf.Reset()
	}

	var walk func(*xhtml.Node)
	walk = func(n *xhtml.Node) {
		switch n.Type {
		case xhtml.TextNode:
			buf.WriteString(n.Data)
			return
		case xhtml.ElementNode:
			switch n.Data {
			case "script", "style", "noscript", "template", "head":
				return
			}
			if level := headingLevel(n.Data); level > 0 {
				flush()
				current = Section{Heading: textutil.CollapseWhitespace(nodeText(n)), Level: level}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == xhtml.ElementNode && isBlock(n.Data) {
			buf.WriteByte('\n')
		}
	}
	walk(root)
	flush()
	return sections
}

func nodeText(n *xhtml.Node) string {
	var b strings.Builder
	var walk func(*xhtml.Node)
	walk = func(n *xhtml.Node) {
		if n.Type == xhtml.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func isBlock(tag string) bool {
	switch tag {
	case "p", "div", "li", "tr", "br", "blockquote", "pre", "table", "section",
		"article", "ul", "ol", "dd", "dt", "header", "footer", "aside", "figure":
		return true
	}
	return false
}

func collapseLines(s string) string {
	s = multiSpaces.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}
