package scoring

import (
	"math"
	"sort"

	"github.com/seanblong/geoscore/internal/pillars"
)

// Weights scales each pillar's contribution. Missing keys weigh 1.
type Weights map[pillars.Key]float64

func (w Weights) of(k pillars.Key) float64 {
	if v, ok := w[k]; ok && v >= 0 {
		return v
	}
	return 1
}

// Summary highlights the strongest and weakest pillars.
type Summary struct {
	Strengths  []string `json:"strengths"`
	Weaknesses []string `json:"weaknesses"`
	FocusArea  string   `json:"focus_area"`
	Overall    string   `json:"overall"`
}

// ScoreResult is the composite score of one page.
type ScoreResult struct {
	TotalScore float64                        `json:"total_score"`
	MaxScore   float64                        `json:"max_score"`
	Percentage float64                        `json:"percentage"`
	Grade      string                         `json:"grade"`
	Pillars    map[pillars.Key]pillars.Result `json:"pillars"`
	Summary    Summary                        `json:"summary"`
}

// Composite folds pillar results into a ScoreResult. It is pure: the same
// results always yield the same value.
func Composite(results map[pillars.Key]pillars.Result, weights Weights, scale GradeScale) ScoreResult {
	if len(scale) == 0 {
		scale = DefaultGradeScale
	}
	out := ScoreResult{Pillars: make(map[pillars.Key]pillars.Result, len(results))}
	for _, spec := range pillars.Registry() {
		r, ok := results[spec.Key]
		if !ok {
			continue
		}
		w := weights.of(spec.Key)
		out.TotalScore += w * r.Score
		out.MaxScore += w * r.MaxScore
		out.Pillars[spec.Key] = r
	}
	out.TotalScore = round2(out.TotalScore)
	out.MaxScore = round2(out.MaxScore)
	if out.MaxScore > 0 {
		out.Percentage = round2(math.Min(100, math.Max(0, out.TotalScore/out.MaxScore*100)))
	}
	out.Grade = scale.Grade(out.Percentage)
	out.Summary = summarize(out, scale)
	return out
}

type ranked struct {
	order int
	name  string
	pct   float64
}

func summarize(r ScoreResult, scale GradeScale) Summary {
	var rows []ranked
	for i, spec := range pillars.Registry() {
		if p, ok := r.Pillars[spec.Key]; ok {
			rows = append(rows, ranked{i, spec.DisplayName, p.Percentage})
		}
	}
	s := Summary{Strengths: []string{}, Weaknesses: []string{}}
	if len(rows) == 0 {
		s.Overall = overall(r.Grade, scale)
		return s
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].pct != rows[j].pct {
			return rows[i].pct > rows[j].pct
		}
		return rows[i].order < rows[j].order
	})
	for _, row := range rows {
		if row.pct >= 80 && len(s.Strengths) < 3 {
			s.Strengths = append(s.Strengths, row.name)
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].pct != rows[j].pct {
			return rows[i].pct < rows[j].pct
		}
		return rows[i].order < rows[j].order
	})
	for _, row := range rows {
		if row.pct < 50 && len(s.Weaknesses) < 3 {
			s.Weaknesses = append(s.Weaknesses, row.name)
		}
	}
	s.FocusArea = rows[0].name
	s.Overall = overall(r.Grade, scale)
	return s
}

func overall(grade string, scale GradeScale) string {
	if grade == "" {
		return "No score could be computed for this page."
	}
	switch grade[0] {
	case 'A':
		return "Excellent AI search visibility: this page is well positioned to be cited by AI answers."
	case 'B':
		return "Good AI search visibility with a few gaps worth addressing."
	case 'C':
		return "Moderate AI search visibility: several pillars need work before AI engines will cite this page reliably."
	case 'D':
		return "Weak AI search visibility: significant improvements are needed."
	}
	if scale.Rank(grade) == len(scale)-1 {
		return "Poor AI search visibility: AI engines are unlikely to use this page as a source."
	}
	return "AI search visibility graded " + grade + "."
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
