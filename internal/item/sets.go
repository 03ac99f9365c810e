package item

import "strings"

// UnionStrings merges b into a preserving a's order, appending elements of b
// that a does not already contain. Comparison is exact after trimming;
// empty strings are dropped.
func UnionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	result := make([]string, 0, len(a)+len(b))

	for _, s := range a {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	for _, s := range b {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}

// IsBlank reports whether a string field counts as empty for the merge rule.
// The "Untitled" sentinel is treated the same as an empty string.
func IsBlank(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || s == UntitledSentinel
}

// FillString overwrites *dst with src only when *dst is blank per IsBlank
// and src is not. Reports whether a write happened.
func FillString(dst *string, src string) bool {
	if !IsBlank(*dst) || IsBlank(src) {
		return false
	}
	*dst = src
	return true
}
