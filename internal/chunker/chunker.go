// Package chunker splits page content into retrieval-sized chunks.
package chunker

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/seanblong/geoscore/internal/preprocess"
	"github.com/seanblong/geoscore/internal/textutil"
	"github.com/seanblong/geoscore/pkg/models"
)

// Strategy selects how content is split.
type Strategy string

const (
	Semantic  Strategy = "semantic"
	Fixed     Strategy = "fixed"
	Sentence  Strategy = "sentence"
	Paragraph Strategy = "paragraph"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200

	// minChunkRunes is the noise floor below which chunks are dropped.
	minChunkRunes = 50
	// minParagraphRunes drops boilerplate fragments in the paragraph strategy.
	minParagraphRunes = 30
	// charsPerWord converts character budgets into fixed-window word counts.
	charsPerWord = 5
	// maxSummaryHeadings caps the heading outline in a summary chunk.
	maxSummaryHeadings = 10
)

// ParseStrategy maps a config string to a Strategy. The empty string is
// Semantic.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", Semantic:
		return Semantic, nil
	case Fixed:
		return Fixed, nil
	case Sentence:
		return Sentence, nil
	case Paragraph:
		return Paragraph, nil
	}
	return "", fmt.Errorf("unknown chunk strategy %q", s)
}

// Chunker splits text using character budgets.
type Chunker struct {
	size    int
	overlap int
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithChunkSize sets the target chunk size in characters.
func WithChunkSize(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.size = n
		}
	}
}

// WithOverlap sets the overlap between fixed windows in characters.
func WithOverlap(n int) Option {
	return func(c *Chunker) {
		if n >= 0 {
			c.overlap = n
		}
	}
}

// New returns a Chunker with the defaults overridden by opts.
func New(opts ...Option) *Chunker {
	c := &Chunker{size: DefaultChunkSize, overlap: DefaultChunkOverlap}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Size returns the configured chunk size.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured overlap.
func (c *Chunker) Overlap() int { return c.overlap }

var (
	htmlTag         = regexp.MustCompile(`(?i)<(html|body|div|p|h[1-6]|section|article|ul|ol|br|span|table)\b`)
	markdownHeading = regexp.MustCompile(`(?m)^#{1,6}[ \t]+(.+?)[ \t#]*$`)
)

func looksLikeHTML(s string) bool {
	return htmlTag.MatchString(s)
}

// plainText returns content with markup removed when it is HTML.
func plainText(content string) string {
	if looksLikeHTML(content) {
		return preprocess.StripHTML(content)
	}
	return strings.TrimSpace(content)
}

// Chunk splits content with the given strategy. Metadata fields other than
// ChunkIndex, ChunkType and SectionHeading are copied onto every chunk.
// Empty content yields nil.
func (c *Chunker) Chunk(content string, meta models.ChunkMetadata, strategy Strategy) []models.Chunk {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	var parts []part
	switch strategy {
	case Fixed:
		parts = tag(c.fixed(plainText(content)), models.ChunkFixed, "")
	case Sentence:
		parts = tag(c.sentences(plainText(content)), models.ChunkSentence, "")
	case Paragraph:
		parts = tag(c.paragraphs(plainText(content)), models.ChunkParagraph, "")
	default:
		parts = c.semantic(content)
	}

	var out []models.Chunk
	for _, p := range parts {
		text := strings.TrimSpace(p.text)
		if textutil.RuneLen(text) < minChunkRunes {
			continue
		}
		m := meta
		m.ChunkIndex = len(out)
		m.ChunkType = p.kind
		m.SectionHeading = p.heading
		m.IsSummary = false
		out = append(out, models.Chunk{Content: text, Metadata: m})
	}
	return out
}

type part struct {
	text    string
	kind    models.ChunkType
	heading string
}

func tag(texts []string, kind models.ChunkType, heading string) []part {
	out := make([]part, 0, len(texts))
	for _, t := range texts {
		out = append(out, part{text: t, kind: kind, heading: heading})
	}
	return out
}

// semantic splits at heading boundaries. Oversized sections are split with
// the fixed window and keep their heading; content without headings falls
// back to fixed chunking.
func (c *Chunker) semantic(content string) []part {
	sections := sectionsOf(content)
	if len(sections) == 0 {
		return tag(c.fixed(plainText(content)), models.ChunkFixed, "")
	}
	var out []part
	for _, s := range sections {
		body := s.Text
		if s.Heading != "" {
			body = s.Heading + "\n" + s.Text
		}
		if textutil.RuneLen(body) <= c.size {
			out = append(out, part{text: body, kind: models.ChunkSection, heading: s.Heading})
			continue
		}
		out = append(out, tag(c.fixed(body), models.ChunkSectionPart, s.Heading)...)
	}
	return out
}

// sectionsOf returns heading-delimited sections, or nil when the content has
// no headings.
func sectionsOf(content string) []preprocess.Section {
	if looksLikeHTML(content) {
		doc := preprocess.Parse(content)
		if len(doc.Headings) == 0 {
			return nil
		}
		return doc.Sections
	}
	locs := markdownHeading.FindAllStringSubmatchIndex(content, -1)
	if len(locs) == 0 {
		return nil
	}
	var out []preprocess.Section
	if lead := strings.TrimSpace(content[:locs[0][0]]); lead != "" {
		out = append(out, preprocess.Section{Text: lead})
	}
	for i, loc := range locs {
		end := len(content)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		level := strings.IndexFunc(content[loc[0]:], func(r rune) bool { return r != '#' })
		out = append(out, preprocess.Section{
			Heading: strings.TrimSpace(content[loc[2]:loc[3]]),
			Level:   level,
			Text:    strings.TrimSpace(content[loc[1]:end]),
		})
	}
	return out
}

// fixed is a word-based sliding window of size/5 words advancing by
// (size-overlap)/5 words. A window that cannot advance ends the loop.
func (c *Chunker) fixed(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	window := c.size / charsPerWord
	if window < 1 {
		window = 1
	}
	step := window - c.overlap/charsPerWord
	var out []string
	for start := 0; start < len(words); start += step {
		end := min(start+window, len(words))
		out = append(out, strings.Join(words[start:end], " "))
		if end == len(words) || step <= 0 {
			break
		}
	}
	return out
}

// sentences greedily groups sentences while the group stays within size.
func (c *Chunker) sentences(text string) []string {
	return c.group(textutil.Sentences(text), " ")
}

// paragraphs greedily groups paragraphs, dropping fragments shorter than
// minParagraphRunes.
func (c *Chunker) paragraphs(text string) []string {
	var kept []string
	for _, p := range textutil.Paragraphs(text) {
		if textutil.RuneLen(p) >= minParagraphRunes {
			kept = append(kept, p)
		}
	}
	return c.group(kept, "\n\n")
}

func (c *Chunker) group(units []string, sep string) []string {
	var (
		out     []string
		current strings.Builder
		length  int
	)
	for _, u := range units {
		n := textutil.RuneLen(u)
		if length > 0 && length+len(sep)+n > c.size {
			out = append(out, current.String())
			current.Reset()
			length = 0
		}
		if length > 0 {
			current.WriteString(sep)
			length += len(sep)
		}
		current.WriteString(u)
		length += n
	}
	if length > 0 {
		out = append(out, current.String())
	}
	return out
}

// Summary builds the document-level summary chunk: the title, the first
// three sentences and up to ten heading texts.
func (c *Chunker) Summary(title, content string) models.Chunk {
	text := plainText(content)
	var headings []string
	if looksLikeHTML(content) {
		for _, h := range preprocess.Parse(content).Headings {
			if h.Text != "" {
				headings = append(headings, h.Text)
			}
		}
	} else {
		for _, m := range markdownHeading.FindAllStringSubmatch(content, -1) {
			headings = append(headings, strings.TrimSpace(m[1]))
		}
		text = markdownHeading.ReplaceAllString(text, "$1")
	}
	if len(headings) > maxSummaryHeadings {
		headings = headings[:maxSummaryHeadings]
	}

	var lead []string
	for _, s := range textutil.Sentences(text) {
		if isHeading(s, headings) {
			continue
		}
		lead = append(lead, s)
		if len(lead) == 3 {
			break
		}
	}

	var b strings.Builder
	if title = strings.TrimSpace(title); title != "" {
		b.WriteString(title)
		b.WriteString("\n\n")
	}
	b.WriteString(strings.Join(lead, " "))
	if len(headings) > 0 {
		b.WriteString("\n\nTopics: ")
		b.WriteString(strings.Join(headings, "; "))
	}
	return models.Chunk{
		Content: strings.TrimSpace(b.String()),
		Metadata: models.ChunkMetadata{
			SourceTitle: title,
			ChunkIndex:  0,
			ChunkType:   models.ChunkSummary,
			IsSummary:   true,
		},
	}
}

func isHeading(s string, headings []string) bool {
	for _, h := range headings {
		if s == h {
			return true
		}
	}
	return false
}
