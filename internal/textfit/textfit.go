// Package textfit fits reply text into a post's character budget.
// Lengths are counted in runes, which never undercounts Bluesky graphemes.
package textfit

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Ellipsis marks text cut at a word boundary
const Ellipsis = "…"

// Len returns the length of text as counted against the cap
func Len(text string) int {
	return utf8.RuneCountInString(text)
}

// CollapseWhitespace trims text and folds every whitespace run to one space
func CollapseWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Truncate shortens text to at most limit runes. It prefers a sentence end in
// the back half of the budget, then the last word boundary followed by an
// ellipsis. A word is only cut when the first word alone exceeds the budget.
func Truncate(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= limit {
		return string(runes)
	}

	// A sentence ending exactly at or before the cap needs no marker
	if idx := lastSentenceEnd(runes, limit); idx >= 0 && idx+1 > limit/2 {
		return strings.TrimSpace(string(runes[:idx+1]))
	}

	budget := limit - 1 // room for the ellipsis
	if budget < 1 {
		return string(runes[:limit])
	}

	// a space at runes[budget] means the word before it ends exactly on budget
	if idx := lastSpace(runes[:budget+1]); idx > 0 {
		head := strings.TrimRightFunc(string(runes[:idx]), func(r rune) bool {
			return unicode.IsSpace(r) || r == ',' || r == ';' || r == ':'
		})
		if head != "" {
			return head + Ellipsis
		}
	}

	return string(runes[:budget]) + Ellipsis
}

// lastSentenceEnd finds the last . ! ? before end that is followed by whitespace
func lastSentenceEnd(runes []rune, end int) int {
	for i := end - 1; i >= 0; i-- {
		switch runes[i] {
		case '.', '!', '?':
			if i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
				return i
			}
		}
	}
	return -1
}

func lastSpace(runes []rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return -1
}
