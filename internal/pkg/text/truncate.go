package text

import "unicode/utf8"

// Truncate cuts s to at most max bytes, backing off to a character boundary,
// and marks the cut with "...".
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max] + "..."
}
