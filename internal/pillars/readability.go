package pillars

import (
	"github.com/seanblong/geoscore/internal/preprocess"
	"github.com/seanblong/geoscore/internal/textutil"
)

// fleschReadingEase is 206.835 - 1.015*(words/sentences) - 84.6*(syllables/words).
func fleschReadingEase(words, sentences, syllables int) float64 {
	if words == 0 || sentences == 0 {
		return 0
	}
	return 206.835 - 1.015*float64(words)/float64(sentences) - 84.6*float64(syllables)/float64(words)
}

func analyzeReadability(doc *preprocess.Document, _ string, _ Context) Result {
	b := newBuilder(Readability)
	text := doc.PlainText

	words := textutil.Words(text)
	sentences := textutil.Sentences(text)
	syllables, complexWords := 0, 0
	for _, w := range words {
		n := textutil.Syllables(w)
		syllables += n
		if n >= 3 {
			complexWords++
		}
	}

	if len(words) == 0 || len(sentences) == 0 {
		b.set("reading_ease", 0, 4)
		b.set("sentence_length", 0, 2)
		b.set("paragraph_length", 0, 2)
		b.set("complex_words", 0, 2)
		b.detail("missing", "text")
		return b.result()
	}

	ease := fleschReadingEase(len(words), len(sentences), syllables)
	easePts := ladder(ease, rung{60, 4}, rung{50, 3}, rung{30, 2})
	if easePts == 0 && ease > 0 {
		easePts = 1
	}
	b.set("reading_ease", easePts, 4)

	avgSentence := float64(len(words)) / float64(len(sentences))
	sentencePts := 0.0
	switch {
	case avgSentence >= 10 && avgSentence <= 20:
		sentencePts = 2
	case avgSentence <= 25:
		sentencePts = 1
	}
	b.set("sentence_length", sentencePts, 2)

	paragraphs := doc.Paragraphs
	if len(paragraphs) == 0 {
		paragraphs = textutil.Paragraphs(text)
	}
	paraWords := 0
	for _, p := range paragraphs {
		paraWords += textutil.WordCount(p)
	}
	avgParagraph := ratio(float64(paraWords), float64(len(paragraphs)))
	paraPts := 0.0
	switch {
	case len(paragraphs) == 0:
	case avgParagraph >= 10 && avgParagraph <= 80:
		paraPts = 2
	case avgParagraph <= 150:
		paraPts = 1
	}
	b.set("paragraph_length", paraPts, 2)

	complexRatio := float64(complexWords) / float64(len(words))
	complexPts := 0.0
	switch {
	case complexRatio < 0.15:
		complexPts = 2
	case complexRatio < 0.25:
		complexPts = 1
	}
	b.set("complex_words", complexPts, 2)

	b.detail("reading_ease", map[string]any{
		"flesch":    round2(ease),
		"words":     len(words),
		"sentences": len(sentences),
		"syllables": syllables,
	})
	b.detail("sentence_length", map[string]any{"average_words": round2(avgSentence)})
	b.detail("paragraph_length", map[string]any{
		"paragraphs":    len(paragraphs),
		"average_words": round2(avgParagraph),
	})
	b.detail("complex_words", map[string]any{
		"count": complexWords,
		"ratio": round2(complexRatio),
	})
	return b.result()
}
