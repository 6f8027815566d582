package agent

import (
	"regexp"
	"strings"

	"github.com/FeelPulse/skyoracle/internal/textfit"
)

// citationPattern matches numeric reference markers like [1], [2, 3] or [4-6]
// together with the whitespace before them
var citationPattern = regexp.MustCompile(`\s*\[\s*\d+(?:\s*[,\-–]\s*\d+)*\s*\]`)

var quoteStripper = strings.NewReplacer(`"`, "", "“", "", "”", "", "„", "")

// CleanReply strips citation markers and redundant quotation marks, collapses
// whitespace, and fits the result into limit runes
func CleanReply(text string, limit int) string {
	return textfit.Truncate(tidyReply(text), limit)
}

func tidyReply(text string) string {
	text = citationPattern.ReplaceAllString(text, "")
	text = quoteStripper.Replace(text)
	text = textfit.CollapseWhitespace(text)
	return stripWrappingSingleQuotes(text)
}

func stripWrappingSingleQuotes(s string) string {
	r := []rune(s)
	if len(r) < 2 {
		return s
	}
	first, last := r[0], r[len(r)-1]
	if (first == '\'' && last == '\'') || (first == '‘' && last == '’') {
		return strings.TrimSpace(string(r[1 : len(r)-1]))
	}
	return s
}
