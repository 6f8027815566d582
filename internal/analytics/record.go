package analytics

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/FeelPulse/skyoracle/pkg/types"
)

// Source is what the emitter may learn about the evaluated post. The text
// is only scanned for counts and heuristic flags; it never reaches a record.
type Source struct {
	Text     string
	HasMedia bool
}

var (
	linkPattern     = regexp.MustCompile(`(?i)https?://\S+`)
	mentionPattern  = regexp.MustCompile(`(^|\s)@[\w][\w.-]*`)
	hashtagPattern  = regexp.MustCompile(`(^|\s)#\w+`)
	statsPatterns   = compileAll(`\d+%`, `(?i)\d+\s*(million|billion|thousand)`, `\d+\.\d+`, `\$\d+`)
	datePatterns    = compileAll(`\d{4}`, `\d{1,2}/\d{1,2}/\d{2,4}`, `(?i)(january|february|march|april|may|june|july|august|september|october|november|december)`, `(?i)(today|yesterday|tomorrow|last week|next week)`)
	absolutePattern = regexp.MustCompile(`(?i)\b(always|never|all|none|every|no one|everyone|everything|nothing)\b`)
)

var (
	angryWords       = []string{"outrageous", "disgusting", "terrible", "awful", "hate", "angry", "furious"}
	fearfulWords     = []string{"dangerous", "scary", "terrifying", "threat", "warning", "beware"}
	urgentWords      = []string{"urgent", "breaking", "immediate", "alert", "emergency"}
	sensationalWords = []string{"shocking", "unbelievable", "incredible", "amazing", "stunning"}
	urgencyPhrases   = []string{"breaking", "urgent", "immediate", "act now", "don't wait", "hurry", "quickly"}
	authorityPhrases = []string{"experts say", "studies show", "research proves", "scientists confirm", "doctors recommend"}
	anecdotePhrases  = []string{"i know someone", "my friend", "my family", "happened to me", "i saw", "i heard"}
)

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

func matchAny(patterns []*regexp.Regexp, text string) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

func containsAny(lower string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// BuildRecord derives an anonymized analytics record. Flags the AI supplied
// win; missing ones fall back to keyword heuristics over the source text.
func BuildRecord(resp *types.AIResponse, latency time.Duration, src Source, now time.Time) types.AnalyticsRecord {
	now = now.UTC()
	lower := strings.ToLower(src.Text)
	ca := resp.ContentAnalysis

	flag := func(name string, supplied bool, heuristic func() bool) bool {
		if ca.Has(name) {
			return supplied
		}
		return heuristic()
	}

	tone := strings.ToUpper(strings.TrimSpace(ca.EmotionalTone))
	if !ca.Has(types.FlagEmotionalTone) || tone == "" {
		tone = detectTone(lower)
	}

	return types.AnalyticsRecord{
		ID:        uuid.NewString(),
		Timestamp: now,
		Mode:      resp.Mode,
		Status:    resp.Status,
		Category:  resp.Category,
		Model:     resp.Model,
		Cached:    resp.Cached,

		EmotionalTone:      tone,
		ContainsStatistics: flag(types.FlagContainsStatistics, ca.ContainsStatistics, func() bool { return matchAny(statsPatterns, src.Text) }),
		ContainsQuotes:     flag(types.FlagContainsQuotes, ca.ContainsQuotes, func() bool { return strings.ContainsAny(src.Text, "\"“”") || strings.Contains(lower, "said") }),
		ContainsDates:      flag(types.FlagContainsDates, ca.ContainsDates, func() bool { return matchAny(datePatterns, src.Text) }),
		UsesAbsolutes:      flag(types.FlagUsesAbsolutes, ca.UsesAbsolutes, func() bool { return absolutePattern.MatchString(src.Text) }),
		CreatesUrgency:     flag(types.FlagCreatesUrgency, ca.CreatesUrgency, func() bool { return containsAny(lower, urgencyPhrases) }),
		AppealsToAuthority: flag(types.FlagAppealsToAuthority, ca.AppealsToAuthority, func() bool { return containsAny(lower, authorityPhrases) }),
		PersonalAnecdote:   flag(types.FlagPersonalAnecdote, ca.PersonalAnecdote, func() bool { return containsAny(lower, anecdotePhrases) }),

		ResponseTimeMs: latency.Milliseconds(),
		ResponseLength: len([]rune(resp.ReplyText)),

		DayOfWeek: now.Weekday().String(),
		HourOfDay: now.Hour(),
		IsWeekend: now.Weekday() == time.Saturday || now.Weekday() == time.Sunday,

		HasExternalLinks: linkPattern.MatchString(src.Text),
		HasMedia:         src.HasMedia,
		MentionCount:     len(mentionPattern.FindAllString(src.Text, -1)),
		HashtagCount:     len(hashtagPattern.FindAllString(src.Text, -1)),
		QuestionMarks:    strings.Count(src.Text, "?"),
		ExclamationMarks: strings.Count(src.Text, "!"),
		AllCapsWords:     countAllCaps(src.Text),
	}
}

func detectTone(lower string) string {
	switch {
	case containsAny(lower, angryWords):
		return types.ToneAngry
	case containsAny(lower, fearfulWords):
		return types.ToneFearful
	case containsAny(lower, urgentWords):
		return types.ToneUrgent
	case containsAny(lower, sensationalWords):
		return types.ToneSensational
	default:
		return types.ToneNeutral
	}
}

// countAllCaps counts words of two or more letters written entirely in capitals
func countAllCaps(text string) int {
	n := 0
	for _, word := range strings.Fields(text) {
		letters, upper := 0, 0
		for _, r := range word {
			if unicode.IsLetter(r) {
				letters++
				if unicode.IsUpper(r) {
					upper++
				}
			}
		}
		if letters >= 2 && letters == upper {
			n++
		}
	}
	return n
}
