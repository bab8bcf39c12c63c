package models

import "fmt"

// Match reports whether metadata satisfies every filter.
func (f Filters) Match(metadata map[string]any) bool {
	for key, want := range f {
		got, ok := metadata[key]
		if !ok {
			return false
		}
		if !matchValue(got, want) {
			return false
		}
	}
	return true
}

func matchValue(got, want any) bool {
	switch w := want.(type) {
	case []string:
		for _, v := range w {
			if scalarEqual(got, v) {
				return true
			}
		}
		return false
	case []any:
		for _, v := range w {
			if scalarEqual(got, v) {
				return true
			}
		}
		return false
	default:
		return scalarEqual(got, want)
	}
}

// scalarEqual compares by string form so that JSON round-tripped numbers
// (float64) still match ints supplied by callers.
func scalarEqual(a, b any) bool {
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// Values returns the filter value as a list of strings, used by SQL backends.
func Values(v any) ([]string, bool) {
	switch w := v.(type) {
	case []string:
		return w, true
	case []any:
		out := make([]string, 0, len(w))
		for _, x := range w {
			out = append(out, fmt.Sprint(x))
		}
		return out, true
	default:
		return []string{fmt.Sprint(v)}, false
	}
}
