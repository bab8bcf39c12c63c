package store

import (
	"math"

	"github.com/seanblong/geoscore/internal/textutil"
)

const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// bm25 scores each corpus entry against query and normalises the scores to
// [0,1] by the best match. All zeros when nothing matches.
func bm25(query string, corpus []string) []float64 {
	scores := make([]float64, len(corpus))
	terms := uniq(textutil.ContentWords(query))
	if len(terms) == 0 || len(corpus) == 0 {
		return scores
	}

	tfs := make([]map[string]int, len(corpus))
	lengths := make([]int, len(corpus))
	df := make(map[string]int)
	total := 0
	for i, text := range corpus {
		words := textutil.ContentWords(text)
		tf := make(map[string]int, len(words))
		for _, w := range words {
			tf[w]++
		}
		for w := range tf {
			df[w]++
		}
		tfs[i] = tf
		lengths[i] = len(words)
		total += len(words)
	}
	avg := float64(total) / float64(len(corpus))
	if avg == 0 {
		return scores
	}

	n := float64(len(corpus))
	best := 0.0
	for i, tf := range tfs {
		var s float64
		for _, t := range terms {
			f := float64(tf[t])
			if f == 0 {
				continue
			}
			idf := math.Log(1 + (n-float64(df[t])+0.5)/(float64(df[t])+0.5))
			s += idf * f * (bm25K1 + 1) / (f + bm25K1*(1-bm25B+bm25B*float64(lengths[i])/avg))
		}
		scores[i] = s
		best = math.Max(best, s)
	}
	if best > 0 {
		for i := range scores {
			scores[i] /= best
		}
	}
	return scores
}

func uniq(words []string) []string {
	seen := make(map[string]bool, len(words))
	out := words[:0:0]
	for _, w := range words {
		if !seen[w] {
			seen[w] = true
			out = append(out, w)
		}
	}
	return out
}
