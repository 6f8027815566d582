package agent

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/FeelPulse/skyoracle/internal/usage"
	"github.com/FeelPulse/skyoracle/pkg/types"
)

const defaultOpenAIModel = "gpt-4o"

// OpenAIOptions configures the OpenAI-compatible provider
type OpenAIOptions struct {
	APIKey  string
	BaseURL string // e.g. https://api.perplexity.ai for search-backed models
	Model   string
	Usage   *usage.Tracker
}

// OpenAIProvider calls any OpenAI-compatible chat completion endpoint
type OpenAIProvider struct {
	client *openai.Client
	model  string
	usage  *usage.Tracker
}

// NewOpenAIProvider creates an OpenAI-compatible provider
func NewOpenAIProvider(opts OpenAIOptions) *OpenAIProvider {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	model := opts.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		usage:  opts.Usage,
	}
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string { return "openai" }

// Model returns the model identifier
func (p *OpenAIProvider) Model() string { return p.model }

// buildMessage converts the request into a single user message. Images are
// sent as data URLs; video has no chat-completion representation.
func (p *OpenAIProvider) buildMessage(req types.AIRequest) (openai.ChatCompletionMessage, error) {
	msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	if req.Media == nil || len(req.Media.Data) == 0 {
		msg.Content = req.Prompt
		return msg, nil
	}
	if req.Media.Kind == types.MediaVideo || !strings.HasPrefix(req.Media.MimeType, "image/") {
		return msg, &Error{
			Kind:     KindRejected,
			Provider: p.Name(),
			Err:      fmt.Errorf("media type %s not supported", req.Media.MimeType),
		}
	}

	dataURL := "data:" + req.Media.MimeType + ";base64," + base64.StdEncoding.EncodeToString(req.Media.Data)
	msg.MultiContent = []openai.ChatMessagePart{
		{Type: openai.ChatMessagePartTypeText, Text: req.Prompt},
		{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: dataURL}},
	}
	return msg, nil
}

// Submit sends the request and returns the first choice's content
func (p *OpenAIProvider) Submit(ctx context.Context, req types.AIRequest) (string, error) {
	msg, err := p.buildMessage(req)
	if err != nil {
		return "", err
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: []openai.ChatCompletionMessage{msg},
	})
	if err != nil {
		return "", Classify(p.Name(), err)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", malformed(p.Name(), "", fmt.Errorf("no choices in response"))
	}
	p.usage.Record(p.Name(), p.model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	return resp.Choices[0].Message.Content, nil
}
