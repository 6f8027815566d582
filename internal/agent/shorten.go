package agent

import (
	"fmt"
	"strings"
)

const shortenTemplateID = "shorten"

// shortenPrompt asks for a rewrite of text within limit characters
func shortenPrompt(text string, limit int, language string) string {
	if language == "" {
		language = "en"
	}
	return fmt.Sprintf(`Rewrite the reply below so it is at most %d characters long, including spaces.
Keep the verdict and the most important fact. Keep the language %q.
Do not add citations, quotation marks, hashtags or commentary.
Respond with JSON only: {"response": "<shortened reply>"}

Reply:
%s`, limit, language, text)
}

// shortenedText pulls the rewrite out of the model output. JSON with a reply
// field is preferred; otherwise the whole output is taken as the reply.
func shortenedText(raw string) string {
	text := stripCodeFence(raw)
	if doc, ok := findObject(text); ok {
		return firstString(doc, replyFields)
	}
	return strings.TrimSpace(text)
}
