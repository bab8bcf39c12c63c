// Package textutil holds the Unicode-aware text heuristics shared by the
// pillar analyzers and the chunker: word, sentence and paragraph
// segmentation, syllable estimation and stop-word filtering.
package textutil

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	blankLine  = regexp.MustCompile(`\n[ \t]*\n`)
	whitespace = regexp.MustCompile(`\s+`)
)

// abbreviations never end a sentence.
var abbreviations = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true, "prof": true, "sr": true,
	"jr": true, "st": true, "vs": true, "etc": true, "e.g": true, "i.e": true,
	"inc": true, "ltd": true, "co": true, "no": true, "fig": true, "approx": true,
}

// Words splits text into words. A word is a run of letters, digits, marks
// and in-word apostrophes or hyphens.
func Words(text string) []string {
	var words []string
	start := -1
	runes := []rune(text)
	for i, r := range runes {
		inWord := unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r)
		if !inWord && (r == '\'' || r == '’' || r == '-') && start >= 0 && i+1 < len(runes) {
			next := runes[i+1]
			inWord = unicode.IsLetter(next) || unicode.IsDigit(next)
		}
		switch {
		case inWord && start < 0:
			start = i
		case !inWord && start >= 0:
			words = append(words, string(runes[start:i]))
			start = -1
		}
	}
	if start >= 0 {
		words = append(words, string(runes[start:]))
	}
	return words
}

// WordCount is len(Words(text)) without the allocation of the slice contents.
func WordCount(text string) int {
	return len(Words(text))
}

// Sentences splits text at terminal punctuation followed by whitespace and
// at line breaks. Empty fragments are dropped.
func Sentences(text string) []string {
	var out []string
	runes := []rune(text)
	start := 0
	flush := func(end int) {
		s := strings.TrimSpace(string(runes[start:end]))
		if s != "" {
			out = append(out, s)
		}
		start = end
	}
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '\n' {
			flush(i + 1)
			continue
		}
		if !isTerminal(r) {
			continue
		}
		// swallow closing quotes/brackets and repeated punctuation
		j := i + 1
		for j < len(runes) && (isTerminal(runes[j]) || strings.ContainsRune(`"'”’)]`, runes[j])) {
			j++
		}
		if j < len(runes) && !unicode.IsSpace(runes[j]) && !isCJKTerminal(r) {
			continue
		}
		if r == '.' && isAbbreviation(runes[start:i]) {
			continue
		}
		flush(j)
		i = j - 1
	}
	flush(len(runes))
	return out
}

func isTerminal(r rune) bool {
	switch r {
	case '.', '!', '?', '…', '。', '！', '？':
		return true
	}
	return false
}

func isCJKTerminal(r rune) bool {
	return r == '。' || r == '！' || r == '？'
}

func isAbbreviation(prefix []rune) bool {
	s := strings.TrimSpace(string(prefix))
	if idx := strings.LastIndexFunc(s, unicode.IsSpace); idx >= 0 {
		s = s[idx+1:]
	}
	s = strings.Trim(s, `("'`)
	if s == "" {
		return false
	}
	if abbreviations[strings.ToLower(s)] {
		return true
	}
	// initials such as "J. Smith"
	r, size := utf8.DecodeRuneInString(s)
	return size == len(s) && unicode.IsUpper(r)
}

// Paragraphs splits on blank lines. Text without blank lines is split on
// single newlines instead, which is how block-level HTML flattens.
func Paragraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var parts []string
	if blankLine.MatchString(text) {
		parts = blankLine.Split(text, -1)
	} else {
		parts = strings.Split(text, "\n")
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Syllables estimates English syllables by counting vowel groups.
// Words without ASCII vowels count as one syllable.
func Syllables(word string) int {
	w := strings.ToLower(word)
	count := 0
	prevVowel := false
	for _, r := range w {
		v := strings.ContainsRune("aeiouy", r)
		if v && !prevVowel {
			count++
		}
		prevVowel = v
	}
	if count > 1 && strings.HasSuffix(w, "e") && !strings.HasSuffix(w, "le") && !strings.HasSuffix(w, "ee") {
		count--
	}
	if count == 0 {
		return 1
	}
	return count
}

// CollapseWhitespace replaces every whitespace run with a single space.
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// RuneLen is utf8.RuneCountInString.
func RuneLen(s string) int {
	return utf8.RuneCountInString(s)
}
