// Package textnorm canonicalizes user supplied text before classification.
package textnorm

import (
	"regexp"
	"strings"
)

// MaxChars caps the normalized text length in characters.
const MaxChars = 5000

// space matches every rune unicode treats as whitespace plus the
// information separators U+001C..U+001F. RE2 \s alone is ASCII only.
const space = `[\s\v\x{1c}-\x{1f}\x{85}\p{Z}]`

var (
	hyphenBreak = regexp.MustCompile(`-` + space + `+`)
	whitespace  = regexp.MustCompile(space + `+`)
)

// Normalize joins lines, removes hyphenation at line breaks, collapses
// whitespace runs to a single space, trims, and truncates to MaxChars.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\n", " ")
	text = hyphenBreak.ReplaceAllString(text, "")
	text = whitespace.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)
	// A cut can land right after a space.
	return strings.TrimRight(Truncate(text, MaxChars), " ")
}

// Truncate returns at most n characters of s without splitting a rune.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
