// Package pipeline turns a thread into an AI request and an AI response
// into the reply text that gets posted.
package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"text/template"
	"time"

	"github.com/FeelPulse/skyoracle/internal/textfit"
	"github.com/FeelPulse/skyoracle/pkg/types"
)

const (
	defaultMaxContextChars = 6000
	defaultReplyCharCap    = 250
	defaultLanguage        = "en"

	// NoClaimsReply answers posts that carry nothing to verify
	NoClaimsReply = "Thanks for the mention! I didn't find any specific factual claims to verify in this post."
	// FallbackReply replaces an empty answer from the AI service
	FallbackReply = "Sorry, I couldn't put together an answer for this post. Please try again later."
)

// ErrNoMedia is returned for media requests on posts without downloadable media
var ErrNoMedia = errors.New("pipeline: target post has no usable media")

var mediaRequestPattern = regexp.MustCompile(`(?i)\b(transcri\w*|describe|description|summari[sz]e|summary|read|alt ?text|what does (it|this) say)\b`)

// Options configures a Pipeline
type Options struct {
	MaxContextChars int
	ReplyCharCap    int
	DefaultLanguage string
	TemplateDir     string
	Now             func() time.Time
}

// Pipeline builds prompts and renders replies
type Pipeline struct {
	templates       map[types.Mode]*template.Template
	maxContextChars int
	replyCharCap    int
	defaultLanguage string
	now             func() time.Time
}

type contextLine struct {
	Author string
	Role   types.PostRole
	Text   string
}

type promptData struct {
	CurrentDate    string
	Language       string
	ReplyCharCap   int
	RequestType    string
	Requester      string
	Instruction    string
	TargetAuthor   string
	TargetText     string
	TargetPostType string
	Context        []contextLine
	ContextSummary string
	DroppedContext int
	MediaKind      types.MediaKind
	MediaAlt       string
}

// New creates a Pipeline, loading the prompt templates
func New(opts Options) (*Pipeline, error) {
	templates, err := loadTemplates(opts.TemplateDir)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		templates:       templates,
		maxContextChars: opts.MaxContextChars,
		replyCharCap:    opts.ReplyCharCap,
		defaultLanguage: strings.ToLower(opts.DefaultLanguage),
		now:             opts.Now,
	}
	if p.maxContextChars <= 0 {
		p.maxContextChars = defaultMaxContextChars
	}
	if p.replyCharCap <= 0 {
		p.replyCharCap = defaultReplyCharCap
	}
	if p.defaultLanguage == "" {
		p.defaultLanguage = defaultLanguage
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p, nil
}

// ReplyCharCap returns the reply length cap in characters
func (p *Pipeline) ReplyCharCap() int {
	return p.replyCharCap
}

// ResolveMode picks the evaluation mode. Auto selects media when the target
// carries media and either has no text of its own or the requester asked
// for a transcription, description or summary.
func ResolveMode(thread *types.ThreadContext, requested types.Mode) types.Mode {
	if requested == types.ModeFactCheck || requested == types.ModeMedia {
		return requested
	}
	if !thread.Target.HasMedia() {
		return types.ModeFactCheck
	}
	if strings.TrimSpace(thread.Target.Text) == "" || mediaRequestPattern.MatchString(thread.Requester.Text) {
		return types.ModeMedia
	}
	return types.ModeFactCheck
}

// Language returns the reply language: the explicit override, the mention's
// declared language, or the configured default.
func (p *Pipeline) Language(thread *types.ThreadContext, override string) string {
	for _, lang := range []string{override, thread.Language} {
		if lang = strings.ToLower(strings.TrimSpace(lang)); lang != "" {
			return lang
		}
	}
	return p.defaultLanguage
}

// BuildRequest renders the prompt for thread in the given mode
func (p *Pipeline) BuildRequest(thread *types.ThreadContext, mode types.Mode, language string) (*types.AIRequest, error) {
	if thread == nil {
		return nil, fmt.Errorf("nil thread")
	}
	mode = ResolveMode(thread, mode)
	tmpl, ok := p.templates[mode]
	if !ok {
		return nil, fmt.Errorf("no template for mode %q", mode)
	}

	data := promptData{
		CurrentDate:  p.now().Format("2006-01-02"),
		Language:     p.Language(thread, language),
		ReplyCharCap: p.replyCharCap,
		RequestType:  RequestType(thread.Requester.Text),
		Requester:    strings.TrimPrefix(fallback(thread.Requester.RequesterHandle, "unknown"), "@"),
		Instruction:  fallback(strings.TrimSpace(thread.Requester.Text), "fact check this"),
		TargetAuthor: strings.TrimPrefix(fallback(thread.Target.AuthorHandle, "unknown"), "@"),
	}

	req := &types.AIRequest{
		Mode:       mode,
		TemplateID: templateID(mode),
		Language:   data.Language,
	}

	switch mode {
	case types.ModeMedia:
		media, err := firstMedia(thread.Target)
		if err != nil {
			return nil, err
		}
		data.TargetText = textfit.Truncate(thread.Target.Text, p.maxContextChars)
		data.MediaKind = media.Kind
		data.MediaAlt = media.Alt
		req.Media = media
	default:
		data.TargetText = textfit.Truncate(thread.Target.Text, p.maxContextChars)
		data.TargetPostType = TargetPostType(thread.Target.Text)
		data.Context, data.DroppedContext = p.contextWindow(thread.ParentChain)
		data.ContextSummary = fmt.Sprintf("Discussion thread with %d posts", len(thread.ParentChain)+1)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render %s prompt: %w", mode, err)
	}
	req.Prompt = buf.String()
	return req, nil
}

// contextWindow keeps the newest parent-chain posts that fit the context
// budget and drops the oldest. Returned lines are oldest first.
func (p *Pipeline) contextWindow(chain []types.Post) ([]contextLine, int) {
	budget := p.maxContextChars
	var kept []contextLine
	for i := len(chain) - 1; i >= 0; i-- {
		post := chain[i]
		text := textfit.CollapseWhitespace(post.Text)
		if text == "" && !post.HasMedia() {
			continue
		}
		if text == "" {
			text = fmt.Sprintf("(%s without text)", post.Media[0].Kind)
		}
		cost := textfit.Len(text) + textfit.Len(post.AuthorHandle)
		if cost > budget {
			return reverse(kept), i + 1
		}
		budget -= cost
		kept = append(kept, contextLine{Author: fallback(post.AuthorHandle, "unknown"), Role: post.Role, Text: text})
	}
	return reverse(kept), 0
}

func reverse(lines []contextLine) []contextLine {
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return lines
}

func firstMedia(post types.Post) (*types.MediaItem, error) {
	for i := range post.Media {
		if len(post.Media[i].Data) > 0 {
			item := post.Media[i]
			return &item, nil
		}
	}
	if post.HasMedia() {
		return nil, fmt.Errorf("%w: download failed for %s", ErrNoMedia, post.Media[0].URL)
	}
	return nil, ErrNoMedia
}

// RequestType classifies the requester's instruction
func RequestType(instruction string) string {
	if strings.Contains(instruction, "?") {
		return "question"
	}
	return "fact_check"
}

// TargetPostType classifies the target post's shape
func TargetPostType(text string) string {
	switch {
	case strings.Contains(text, "http"):
		return "article_share"
	case strings.HasPrefix(strings.TrimSpace(text), "@"):
		return "reply"
	default:
		return "statement"
	}
}

// RenderReply produces the text to post. It never returns an empty string and
// never exceeds the reply cap.
func (p *Pipeline) RenderReply(resp *types.AIResponse) string {
	if resp == nil {
		return textfit.Truncate(FallbackReply, p.replyCharCap)
	}
	if resp.Status == types.StatusNoClaims {
		return textfit.Truncate(NoClaimsReply, p.replyCharCap)
	}
	text := textfit.Truncate(resp.ReplyText, p.replyCharCap)
	if text == "" {
		return textfit.Truncate(FallbackReply, p.replyCharCap)
	}
	return text
}

func fallback(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
