package agent

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/FeelPulse/skyoracle/internal/usage"
	"github.com/FeelPulse/skyoracle/pkg/types"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiOptions configures the Gemini provider
type GeminiOptions struct {
	APIKey     string
	Model      string
	BaseURL    string // override for tests and proxies
	HTTPClient *http.Client
	NoSearch   bool // disable the Google Search grounding tool
	Usage      *usage.Tracker
}

// GeminiProvider calls the Gemini API with Google Search grounding
type GeminiProvider struct {
	client *genai.Client
	model  string
	config *genai.GenerateContentConfig
	usage  *usage.Tracker
}

// NewGeminiProvider creates a Gemini provider
func NewGeminiProvider(ctx context.Context, opts GeminiOptions) (*GeminiProvider, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	model := opts.Model
	if model == "" {
		model = defaultGeminiModel
	}

	cc := &genai.ClientConfig{
		APIKey:     opts.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
	}
	if opts.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	var gc *genai.GenerateContentConfig
	if !opts.NoSearch {
		gc = &genai.GenerateContentConfig{
			Tools: []*genai.Tool{
				{GoogleSearch: &genai.GoogleSearch{}},
			},
		}
	}

	return &GeminiProvider{client: client, model: model, config: gc, usage: opts.Usage}, nil
}

// Name returns the provider name
func (p *GeminiProvider) Name() string { return "gemini" }

// Model returns the model identifier
func (p *GeminiProvider) Model() string { return p.model }

// Submit sends the prompt, plus inline media bytes when present
func (p *GeminiProvider) Submit(ctx context.Context, req types.AIRequest) (string, error) {
	parts := []*genai.Part{genai.NewPartFromText(req.Prompt)}
	if req.Media != nil && len(req.Media.Data) > 0 {
		parts = append(parts, genai.NewPartFromBytes(req.Media.Data, req.Media.MimeType))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	result, err := p.client.Models.GenerateContent(ctx, p.model, contents, p.config)
	if err != nil {
		return "", Classify(p.Name(), err)
	}

	text := candidateText(result)
	if strings.TrimSpace(text) == "" {
		return "", malformed(p.Name(), "", fmt.Errorf("empty response"))
	}
	if md := result.UsageMetadata; md != nil {
		p.usage.Record(p.Name(), p.model, int(md.PromptTokenCount), int(md.CandidatesTokenCount))
	} else {
		p.usage.Record(p.Name(), p.model, 0, 0)
	}
	return text, nil
}

// candidateText joins the text parts of the first candidate
func candidateText(result *genai.GenerateContentResponse) string {
	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		if part != nil && !part.Thought {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}
