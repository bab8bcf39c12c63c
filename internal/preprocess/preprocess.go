// Package preprocess turns raw HTML into the structured view every pillar
// analyzer reads from. Parsing is tolerant: malformed markup is repaired by
// the HTML5 parser and empty input yields an empty Document.
package preprocess

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/seanblong/geoscore/internal/textutil"
)

// Heading is an h1-h6 element in document order.
type Heading struct {
	Level    int    `json:"level"`
	Text     string `json:"text"`
	Position int    `json:"position"`
}

// Section is the text between two heading boundaries. The leading section
// of a page may have no heading (Level 0).
type Section struct {
	Heading string `json:"heading"`
	Level   int    `json:"level"`
	Text    string `json:"text"`
}

// Lists summarises <ol>/<ul> usage.
type Lists struct {
	Ordered   int      `json:"ordered"`
	Unordered int      `json:"unordered"`
	Items     int      `json:"items"`
	ItemTexts []string `json:"item_texts,omitempty"`
}

// Total is the number of ordered plus unordered lists.
func (l Lists) Total() int { return l.Ordered + l.Unordered }

// Link is an anchor with an href.
type Link struct {
	Href string `json:"href"`
	Host string `json:"host,omitempty"`
	Text string `json:"text"`
	Rel  string `json:"rel,omitempty"`
}

// Links splits anchors by whether they point at the page's own host.
type Links struct {
	Internal []Link `json:"internal"`
	External []Link `json:"external"`
	Mailto   int    `json:"mailto"`
	Tel      int    `json:"tel"`
}

// Image is an <img> element.
type Image struct {
	Src    string `json:"src"`
	Alt    string `json:"alt"`
	HasAlt bool   `json:"has_alt"`
}

// Table is a <table> element.
type Table struct {
	HasHeaders bool `json:"has_headers"`
	Rows       int  `json:"rows"`
}

// TimeTag is a <time> element.
type TimeTag struct {
	Datetime string `json:"datetime"`
	Itemprop string `json:"itemprop,omitempty"`
	Text     string `json:"text"`
}

// Document is the preprocessed form of one HTML page.
type Document struct {
	PlainText  string
	Title      string
	HTMLLang   string
	Headings   []Heading
	Sections   []Section
	Paragraphs []string
	Lists      Lists
	Links      Links
	Images     []Image
	Tables     []Table
	Times      []TimeTag

	SchemaBlocks        []map[string]any
	InvalidSchemaBlocks int
	ItemTypes           []string

	MetaTags  map[string]string
	Canonical string

	// Tags counts every element by lower-cased tag name.
	Tags map[string]int

	BoldCount   int
	Blockquotes int
	Videos      int
	IFrames     []string

	// Embeds counts iframes and embeds that are not video players.
	Embeds int

	// Authors holds byline candidates from meta tags, rel=author links,
	// itemprop=author and author/byline class names.
	Authors   []string
	AuthorBio string
}

// Meta returns the content of a meta tag by lower-cased name or property.
func (d *Document) Meta(key string) string {
	return d.MetaTags[strings.ToLower(key)]
}

// HeadingsAt returns the headings of the given level.
func (d *Document) HeadingsAt(level int) []Heading {
	var out []Heading
	for _, h := range d.Headings {
		if h.Level == level {
			out = append(out, h)
		}
	}
	return out
}

// Parse preprocesses raw HTML with no page URL; relative links count as
// internal and absolute http(s) links as external.
func Parse(raw string) *Document {
	return ParseWithURL(raw, "")
}

// ParseWithURL preprocesses raw HTML, classifying links against the host of
// pageURL.
func ParseWithURL(raw, pageURL string) *Document {
	doc := &Document{
		MetaTags: map[string]string{},
		Tags:     map[string]int{},
	}
	if strings.TrimSpace(raw) == "" {
		return doc
	}

	doc.PlainText = StripHTML(raw)

	root, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		// x/net/html only fails on reader errors; the text view is still usable.
		return doc
	}
	q := goquery.NewDocumentFromNode(root)

	var base *url.URL
	if pageURL != "" {
		if u, err := url.Parse(pageURL); err == nil && u.Host != "" {
			base = u
		}
	}

	countTags(root, doc.Tags)
	doc.HTMLLang = strings.TrimSpace(attr(q.Find("html").First(), "lang"))
	doc.Title = textutil.CollapseWhitespace(q.Find("title").First().Text())

	extractMeta(q, doc)
	extractHeadings(q, doc)
	doc.Sections = extractSections(root)
	extractParagraphs(q, doc)
	extractLists(q, doc)
	extractLinks(q, doc, base)
	extractMedia(q, doc)
	extractSchema(q, doc)
	extractAuthors(q, doc)

	doc.BoldCount = q.Find("b, strong").Length()
	doc.Blockquotes = q.Find("blockquote").Length()
	q.Find("time").Each(func(_ int, s *goquery.Selection) {
		doc.Times = append(doc.Times, TimeTag{
			Datetime: strings.TrimSpace(attr(s, "datetime")),
			Itemprop: strings.ToLower(attr(s, "itemprop")),
			Text:     textutil.CollapseWhitespace(s.Text()),
		})
	})
	return doc
}

func attr(s *goquery.Selection, name string) string {
	v, _ := s.Attr(name)
	return v
}

func countTags(n *html.Node, tags map[string]int) {
	if n.Type == html.ElementNode {
		tags[strings.ToLower(n.Data)]++
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		countTags(c, tags)
	}
}

func extractMeta(q *goquery.Document, doc *Document) {
	q.Find("meta").Each(func(_ int, s *goquery.Selection) {
		content, ok := s.Attr("content")
		if !ok {
			return
		}
		content = strings.TrimSpace(content)
		for _, key := range []string{"name", "property", "http-equiv", "itemprop"} {
			k := strings.ToLower(strings.TrimSpace(attr(s, key)))
			if k == "" {
				continue
			}
			if _, seen := doc.MetaTags[k]; !seen {
				doc.MetaTags[k] = content
			}
		}
	})
	doc.Canonical = strings.TrimSpace(attr(q.Find(`link[rel="canonical"]`).First(), "href"))
}

func extractHeadings(q *goquery.Document, doc *Document) {
	q.Find("h1, h2, h3, h4, h5, h6").Each(func(i int, s *goquery.Selection) {
		level := headingLevel(goquery.NodeName(s))
		doc.Headings = append(doc.Headings, Heading{
			Level:    level,
			Text:     textutil.CollapseWhitespace(s.Text()),
			Position: i,
		})
	})
}

func extractParagraphs(q *goquery.Document, doc *Document) {
	q.Find("p").Each(func(_ int, s *goquery.Selection) {
		if t := textutil.CollapseWhitespace(s.Text()); t != "" {
			doc.Paragraphs = append(doc.Paragraphs, t)
		}
	})
}

func extractLists(q *goquery.Document, doc *Document) {
	q.Find("ol, ul").Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) == "ol" {
			doc.Lists.Ordered++
		} else {
			doc.Lists.Unordered++
		}
		s.ChildrenFiltered("li").Each(func(_ int, li *goquery.Selection) {
			doc.Lists.Items++
			if t := textutil.CollapseWhitespace(li.Text()); t != "" {
				doc.Lists.ItemTexts = append(doc.Lists.ItemTexts, t)
			}
		})
	})
}

func extractMedia(q *goquery.Document, doc *Document) {
	q.Find("img").Each(func(_ int, s *goquery.Selection) {
		alt, has := s.Attr("alt")
		doc.Images = append(doc.Images, Image{
			Src:    strings.TrimSpace(attr(s, "src")),
			Alt:    strings.TrimSpace(alt),
			HasAlt: has,
		})
	})
	q.Find("table").Each(func(_ int, s *goquery.Selection) {
		doc.Tables = append(doc.Tables, Table{
			HasHeaders: s.Find("th").Length() > 0 || s.Find("thead").Length() > 0,
			Rows:       s.Find("tr").Length(),
		})
	})
	doc.Videos = q.Find("video").Length()
	q.Find("iframe, embed").Each(func(_ int, s *goquery.Selection) {
		src := strings.TrimSpace(attr(s, "src"))
		if src == "" {
			return
		}
		doc.IFrames = append(doc.IFrames, src)
		if isVideoEmbed(src) {
			doc.Videos++
		} else {
			doc.Embeds++
		}
	})
}

var videoHosts = []string{"youtube.com", "youtube-nocookie.com", "youtu.be", "vimeo.com", "wistia", "loom.com", "dailymotion.com"}

func isVideoEmbed(src string) bool {
	l := strings.ToLower(src)
	for _, h := range videoHosts {
		if strings.Contains(l, h) {
			return true
		}
	}
	return false
}

func extractAuthors(q *goquery.Document, doc *Document) {
	seen := map[string]bool{}
	add := func(name string) {
		name = textutil.CollapseWhitespace(name)
		if name == "" || textutil.RuneLen(name) > 120 || seen[strings.ToLower(name)] {
			return
		}
		seen[strings.ToLower(name)] = true
		doc.Authors = append(doc.Authors, name)
	}
	if a := doc.Meta("author"); a != "" {
		add(a)
	}
	if a := doc.Meta("article:author"); a != "" {
		add(a)
	}
	q.Find(`a[rel~="author"], [itemprop="author"], .author, .byline, .post-author`).Each(func(_ int, s *goquery.Selection) {
		add(s.Text())
	})
	bio := q.Find(`.author-bio, .bio, .about-author, .author-description, [itemprop="description"].author`).First()
	doc.AuthorBio = textutil.CollapseWhitespace(bio.Text())
}

func headingLevel(tag string) int {
	if len(tag) == 2 && tag[0] == 'h' && tag[1] >= '1' && tag[1] <= '6' {
		return int(tag[1] - '0')
	}
	return 0
}
