package textutil

import "strings"

var stopWords = map[string]bool{}

func init() {
	for _, w := range strings.Fields(`a about above after again against all am an and any are as at be because
		been before being below between both but by can could did do does doing down during each few for
		from further had has have having he her here hers herself him himself his how i if in into is it its
		itself just let me more most my myself no nor not now of off on once only or other our ours ourselves
		out over own same she should so some such than that the their theirs them themselves then there these
		they this those through to too under until up very was we were what when where which while who whom
		why will with would you your yours yourself yourselves also may might must shall us get got one two
		many much every like use used using make made`) {
		stopWords[w] = true
	}
}

// IsStopWord reports whether the lower-cased word is a common function word.
func IsStopWord(w string) bool {
	return stopWords[strings.ToLower(w)]
}

// ContentWords returns lower-cased words that are not stop words and are
// at least three runes long.
func ContentWords(text string) []string {
	words := Words(text)
	out := make([]string, 0, len(words))
	for _, w := range words {
		lw := strings.ToLower(w)
		if RuneLen(lw) < 3 || stopWords[lw] {
			continue
		}
		out = append(out, lw)
	}
	return out
}
