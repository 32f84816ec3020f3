package util

import (
	"strings"
	"unicode"
)

// SanitizeText drops invalid UTF-8 and NUL bytes.
func SanitizeText(value string) string {
	if value == "" {
		return value
	}

	sanitized := strings.ToValidUTF8(value, "")
	return strings.ReplaceAll(sanitized, "\x00", "")
}

const trimPunct = ".,;:!?\"'"

// NormalizeKey lower-cases s, trims surrounding punctuation and collapses
// internal whitespace. It is the identity key for entity resolution.
func NormalizeKey(s string) string {
	s = strings.ToLower(SanitizeText(s))
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || strings.ContainsRune(trimPunct, r)
	})
}

// TruncateRunes cuts s to at most max characters (runes).
func TruncateRunes(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}
