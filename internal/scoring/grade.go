package scoring

import (
	"errors"
	"fmt"
)

// Band maps a minimum percentage to a letter grade.
type Band struct {
	MinPercentage float64 `json:"min_percentage" yaml:"min_percentage"`
	Grade         string  `json:"grade" yaml:"grade"`
}

// GradeScale is an ordered list of bands, highest threshold first.
type GradeScale []Band

// DefaultGradeScale partitions [0,100] into the eleven letter grades.
var DefaultGradeScale = GradeScale{
	{90, "A+"},
	{85, "A"},
	{80, "A-"},
	{75, "B+"},
	{70, "B"},
	{65, "B-"},
	{60, "C+"},
	{55, "C"},
	{50, "C-"},
	{40, "D"},
	{0, "F"},
}

var ErrInvalidGradeScale = errors.New("invalid grade scale")

// Validate checks that thresholds strictly descend and the last band starts
// at 0, so every percentage in [0,100] maps to exactly one grade.
func (g GradeScale) Validate() error {
	if len(g) == 0 {
		return fmt.Errorf("%w: no bands", ErrInvalidGradeScale)
	}
	for i, b := range g {
		if b.Grade == "" {
			return fmt.Errorf("%w: band %d has no grade", ErrInvalidGradeScale, i)
		}
		if b.MinPercentage < 0 || b.MinPercentage > 100 {
			return fmt.Errorf("%w: band %s threshold %v outside [0,100]", ErrInvalidGradeScale, b.Grade, b.MinPercentage)
		}
		if i > 0 && b.MinPercentage >= g[i-1].MinPercentage {
			return fmt.Errorf("%w: band %s does not descend", ErrInvalidGradeScale, b.Grade)
		}
	}
	if last := g[len(g)-1]; last.MinPercentage != 0 {
		return fmt.Errorf("%w: last band %s starts at %v, want 0", ErrInvalidGradeScale, last.Grade, last.MinPercentage)
	}
	return nil
}

// Grade returns the grade for a 0-100 percentage. Values below 0 take the
// lowest band.
func (g GradeScale) Grade(pct float64) string {
	for _, b := range g {
		if pct >= b.MinPercentage {
			return b.Grade
		}
	}
	if len(g) == 0 {
		return ""
	}
	return g[len(g)-1].Grade
}

// Rank returns the index of the grade's band, 0 being best, or -1.
func (g GradeScale) Rank(grade string) int {
	for i, b := range g {
		if b.Grade == grade {
			return i
		}
	}
	return -1
}
