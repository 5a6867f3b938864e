package utils

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// SanitizeErrorText makes error text safe to store and show to pollers:
// control characters are replaced by spaces, whitespace runs collapse, and
// the result is cut to maxRunes.
func SanitizeErrorText(s string, maxRunes int) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
	cleaned = strings.Join(strings.Fields(cleaned), " ")

	if maxRunes <= 0 || utf8.RuneCountInString(cleaned) <= maxRunes {
		return cleaned
	}
	const ellipsis = "..."
	runes := []rune(cleaned)
	if maxRunes <= len(ellipsis) {
		return string(runes[:maxRunes])
	}
	return string(runes[:maxRunes-len(ellipsis)]) + ellipsis
}
