package agent

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/FeelPulse/skyoracle/pkg/types"
)

var (
	replyFields    = []string{"response", "reply_text", "reply"}
	thinkingFields = []string{"thinking", "reasoning"}
	sourceFields   = []string{"sources", "citations"}
	analysisFlags  = []string{
		types.FlagContainsStatistics,
		types.FlagContainsQuotes,
		types.FlagContainsDates,
		types.FlagUsesAbsolutes,
		types.FlagCreatesUrgency,
		types.FlagAppealsToAuthority,
		types.FlagPersonalAnecdote,
	}
)

// ParseResponse decodes raw model text into a structured response. It tries
// the whole text (minus a Markdown fence), then every balanced JSON object or
// array embedded in it, largest first. Each candidate is also retried after
// repairing trailing commas, single-quoted strings and raw control
// characters. Anything else is a malformed response.
func ParseResponse(raw string, mode types.Mode) (*types.AIResponse, error) {
	doc, ok := findObject(stripCodeFence(raw))
	if !ok {
		return nil, malformed("", raw, fmt.Errorf("no JSON object in response"))
	}

	resp, err := decodeObject(doc, mode)
	if err != nil {
		return nil, malformed("", raw, err)
	}
	return resp, nil
}

// findObject returns the first candidate that decodes to a JSON object, or
// to an array whose first element is one
func findObject(text string) (gjson.Result, bool) {
	if text == "" {
		return gjson.Result{}, false
	}
	candidates := append([]string{text}, extractCandidates(text)...)
	for _, c := range candidates {
		for _, attempt := range []string{c, repairJSON(c)} {
			if !gjson.Valid(attempt) {
				continue
			}
			doc := gjson.Parse(attempt)
			if doc.IsArray() {
				doc = doc.Get("0")
			}
			if doc.IsObject() {
				return doc, true
			}
		}
	}
	return gjson.Result{}, false
}

func decodeObject(doc gjson.Result, mode types.Mode) (*types.AIResponse, error) {
	status := normalizeStatus(doc.Get("status").String())
	if status == "" {
		return nil, fmt.Errorf("missing status")
	}
	if !status.ValidFor(mode) {
		return nil, fmt.Errorf("status %q not valid for %s mode", status, mode)
	}

	resp := &types.AIResponse{
		Status:    status,
		Category:  types.NormalizeCategory(doc.Get("category").String()),
		ReplyText: firstString(doc, replyFields),
		Thinking:  firstString(doc, thinkingFields),
		Mode:      mode,
	}

	for _, field := range sourceFields {
		if arr := doc.Get(field); arr.IsArray() {
			for _, item := range arr.Array() {
				if s := strings.TrimSpace(item.String()); s != "" {
					resp.Sources = append(resp.Sources, s)
				}
			}
			break
		}
	}

	resp.ContentAnalysis = decodeAnalysis(doc.Get("content_analysis"))
	return resp, nil
}

func decodeAnalysis(ca gjson.Result) types.ContentAnalysis {
	out := types.ContentAnalysis{Present: map[string]bool{}}
	if !ca.IsObject() {
		return out
	}

	if tone := ca.Get(types.FlagEmotionalTone); tone.Exists() && tone.String() != "" {
		out.EmotionalTone = strings.ToUpper(strings.TrimSpace(tone.String()))
		out.Present[types.FlagEmotionalTone] = true
	}
	for _, flag := range analysisFlags {
		v := ca.Get(flag)
		if !v.Exists() || v.Type == gjson.Null {
			continue
		}
		out.Present[flag] = true
		set := v.Bool()
		switch flag {
		case types.FlagContainsStatistics:
			out.ContainsStatistics = set
		case types.FlagContainsQuotes:
			out.ContainsQuotes = set
		case types.FlagContainsDates:
			out.ContainsDates = set
		case types.FlagUsesAbsolutes:
			out.UsesAbsolutes = set
		case types.FlagCreatesUrgency:
			out.CreatesUrgency = set
		case types.FlagAppealsToAuthority:
			out.AppealsToAuthority = set
		case types.FlagPersonalAnecdote:
			out.PersonalAnecdote = set
		}
	}
	return out
}

func firstString(doc gjson.Result, fields []string) string {
	for _, f := range fields {
		if v := doc.Get(f); v.Exists() && v.Type == gjson.String {
			return v.String()
		}
	}
	return ""
}

func normalizeStatus(s string) types.Status {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	return types.Status(s)
}

// stripCodeFence removes a surrounding ```json ... ``` block
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], "{[") {
		s = s[nl+1:] // language tag line
	}
	if end := strings.LastIndex(s, "```"); end >= 0 {
		s = s[:end]
	}
	return strings.TrimSpace(s)
}

// extractCandidates returns every balanced {...} or [...] substring,
// longest first, ignoring brackets inside string literals
func extractCandidates(s string) []string {
	var out []string
	for i := 0; i < len(s); i++ {
		if s[i] != '{' && s[i] != '[' {
			continue
		}
		if end := matchBracket(s, i); end >= 0 {
			out = append(out, s[i:end+1])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	return out
}

// repairJSON fixes the usual model slips: trailing commas before a closing
// bracket, single-quoted strings and unescaped control characters in strings
func repairJSON(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	var quote byte
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
				b.WriteByte(c)
			case c == '\\' && quote == '\'' && i+1 < len(s) && s[i+1] == '\'':
				b.WriteByte('\'')
				i++
			case c == '\\':
				escaped = true
				b.WriteByte(c)
			case c == quote:
				quote = 0
				b.WriteByte('"')
			case c == '"':
				b.WriteString(`\"`)
			case c == '\n':
				b.WriteString(`\n`)
			case c == '\r':
				b.WriteString(`\r`)
			case c == '\t':
				b.WriteString(`\t`)
			case c < 0x20:
				fmt.Fprintf(&b, `\u%04x`, c)
			default:
				b.WriteByte(c)
			}
			continue
		}

		switch c {
		case '"', '\'':
			quote = c
			b.WriteByte('"')
		case ',':
			j := i + 1
			for j < len(s) && strings.IndexByte(" \t\r\n", s[j]) >= 0 {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// matchBracket returns the index closing the bracket at start, or -1
func matchBracket(s string, start int) int {
	var stack []byte
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return -1
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i
			}
		}
	}
	return -1
}
