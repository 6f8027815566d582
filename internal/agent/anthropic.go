package agent

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/FeelPulse/skyoracle/internal/usage"
	"github.com/FeelPulse/skyoracle/pkg/types"
)

const (
	anthropicAPIURL       = "https://api.anthropic.com/v1/messages"
	anthropicAPIVersion   = "2023-06-01"
	defaultAnthropicModel = "claude-sonnet-4-20250514"
	defaultMaxTokens      = 1024
	webSearchToolType     = "web_search_20250305"
	webSearchMaxUses      = 3
)

// AnthropicOptions configures the Anthropic provider
type AnthropicOptions struct {
	APIKey     string
	Model      string
	BaseURL    string // defaults to the public Messages endpoint
	HTTPClient *http.Client
	Usage      *usage.Tracker
}

// AnthropicProvider calls the Messages API with the server-side web search tool
type AnthropicProvider struct {
	apiKey string
	model  string
	url    string
	client *http.Client
	usage  *usage.Tracker
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
	Tools     []anthropicTool    `json:"tools,omitempty"`
}

type anthropicTool struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	MaxUses int    `json:"max_uses,omitempty"`
}

type anthropicMessage struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *imageSource `json:"source,omitempty"`
}

type imageSource struct {
	Type      string `json:"type"`       // "base64"
	MediaType string `json:"media_type"` // "image/jpeg", "image/png", etc.
	Data      string `json:"data"`
}

type anthropicResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewAnthropicProvider creates an Anthropic provider
func NewAnthropicProvider(opts AnthropicOptions) *AnthropicProvider {
	model := opts.Model
	if model == "" {
		model = defaultAnthropicModel
	}
	url := opts.BaseURL
	if url == "" {
		url = anthropicAPIURL
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &AnthropicProvider{apiKey: opts.APIKey, model: model, url: url, client: client, usage: opts.Usage}
}

// Name returns the provider name
func (p *AnthropicProvider) Name() string { return "anthropic" }

// Model returns the model identifier
func (p *AnthropicProvider) Model() string { return p.model }

func (p *AnthropicProvider) buildRequest(req types.AIRequest) (anthropicRequest, error) {
	var blocks []contentBlock
	if req.Media != nil && len(req.Media.Data) > 0 {
		if req.Media.Kind != types.MediaImage {
			return anthropicRequest{}, &Error{
				Kind:     KindRejected,
				Provider: p.Name(),
				Err:      fmt.Errorf("media type %s not supported", req.Media.MimeType),
			}
		}
		blocks = append(blocks, contentBlock{
			Type: "image",
			Source: &imageSource{
				Type:      "base64",
				MediaType: req.Media.MimeType,
				Data:      base64.StdEncoding.EncodeToString(req.Media.Data),
			},
		})
	}
	blocks = append(blocks, contentBlock{Type: "text", Text: req.Prompt})

	return anthropicRequest{
		Model:     p.model,
		MaxTokens: defaultMaxTokens,
		Messages:  []anthropicMessage{{Role: "user", Content: blocks}},
		Tools:     []anthropicTool{{Type: webSearchToolType, Name: "web_search", MaxUses: webSearchMaxUses}},
	}, nil
}

// Submit sends one message and joins the text blocks of the answer
func (p *AnthropicProvider) Submit(ctx context.Context, req types.AIRequest) (string, error) {
	body, err := p.buildRequest(req)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", Classify(p.Name(), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", Classify(p.Name(), fmt.Errorf("failed to read response: %w", err))
	}

	var parsed anthropicResponse
	decodeErr := json.Unmarshal(respBody, &parsed)

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(respBody))
		if decodeErr == nil && parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return "", &Error{
			Kind:     kindFromStatus(resp.StatusCode),
			Provider: p.Name(),
			Err:      fmt.Errorf("status %d: %s", resp.StatusCode, msg),
		}
	}
	if decodeErr != nil {
		return "", malformed(p.Name(), string(respBody), fmt.Errorf("failed to parse response: %w", decodeErr))
	}

	// Search results arrive as separate blocks; only the model's text counts
	var sb strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", malformed(p.Name(), string(respBody), fmt.Errorf("no text in response"))
	}
	p.usage.Record(p.Name(), p.model, parsed.Usage.InputTokens, parsed.Usage.OutputTokens)
	return sb.String(), nil
}
