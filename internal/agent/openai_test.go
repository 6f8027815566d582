package agent

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FeelPulse/skyoracle/internal/usage"
	"github.com/FeelPulse/skyoracle/pkg/types"
)

// mockChatAPI is a minimal OpenAI-compatible chat completions endpoint
type mockChatAPI struct {
	mu       sync.Mutex
	server   *httptest.Server
	status   int
	content  string
	lastBody map[string]any
	lastAuth string
}

func newMockChatAPI(t *testing.T) *mockChatAPI {
	m := &mockChatAPI{status: http.StatusOK}
	m.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		m.mu.Lock()
		defer m.mu.Unlock()
		m.lastAuth = r.Header.Get("Authorization")
		_ = json.Unmarshal(body, &m.lastBody)

		w.Header().Set("Content-Type", "application/json")
		if m.status != http.StatusOK {
			w.WriteHeader(m.status)
			_, _ = w.Write([]byte(`{"error":{"message":"upstream says no","type":"error"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "sonar",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": m.content},
				"finish_reason": "stop",
			}},
			"usage": map[string]int{"prompt_tokens": 42, "completion_tokens": 7, "total_tokens": 49},
		})
	}))
	t.Cleanup(m.server.Close)
	return m
}

func (m *mockChatAPI) body() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastBody
}

func (m *mockChatAPI) provider(model string) *OpenAIProvider {
	return NewOpenAIProvider(OpenAIOptions{APIKey: "sk-test", BaseURL: m.server.URL + "/v1/", Model: model})
}

func TestOpenAIProvider_Defaults(t *testing.T) {
	p := NewOpenAIProvider(OpenAIOptions{APIKey: "sk-test"})
	assert.Equal(t, "openai", p.Name())
	assert.Equal(t, defaultOpenAIModel, p.Model())
}

func TestOpenAIProvider_Submit(t *testing.T) {
	api := newMockChatAPI(t)
	api.content = `{"status":"TRUE","response":"Yes."}`

	raw, err := api.provider("sonar").Submit(context.Background(), factRequest("Is water wet?"))
	require.NoError(t, err)
	assert.Equal(t, api.content, raw)
	body := api.body()
	api.mu.Lock()
	assert.Equal(t, "Bearer sk-test", api.lastAuth)
	api.mu.Unlock()
	assert.Equal(t, "sonar", body["model"])

	msgs := body["messages"].([]any)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Is water wet?", msgs[0].(map[string]any)["content"])
}

func TestOpenAIProvider_RecordsUsage(t *testing.T) {
	api := newMockChatAPI(t)
	api.content = `{"status":"TRUE","response":"Yes."}`
	tracker := usage.NewTracker()

	p := NewOpenAIProvider(OpenAIOptions{APIKey: "sk-test", BaseURL: api.server.URL + "/v1", Model: "sonar", Usage: tracker})
	_, err := p.Submit(context.Background(), factRequest("Is water wet?"))
	require.NoError(t, err)

	stats := tracker.Get("openai", "sonar")
	assert.Equal(t, 1, stats.RequestCount)
	assert.Equal(t, 42, stats.InputTokens)
	assert.Equal(t, 7, stats.OutputTokens)
}

func TestOpenAIProvider_ImageAsDataURL(t *testing.T) {
	api := newMockChatAPI(t)
	api.content = `{"status":"DESCRIBE","response":"A chart."}`

	req := types.AIRequest{
		Mode:   types.ModeMedia,
		Prompt: "describe",
		Media:  &types.MediaItem{Kind: types.MediaImage, MimeType: "image/png", Data: []byte("png")},
	}
	_, err := api.provider("gpt-4o").Submit(context.Background(), req)
	require.NoError(t, err)

	msg := api.body()["messages"].([]any)[0].(map[string]any)
	parts := msg["content"].([]any)
	require.Len(t, parts, 2)
	image := parts[1].(map[string]any)["image_url"].(map[string]any)
	assert.True(t, strings.HasPrefix(image["url"].(string), "data:image/png;base64,"))
}

func TestOpenAIProvider_VideoRejected(t *testing.T) {
	api := newMockChatAPI(t)
	req := types.AIRequest{
		Mode:  types.ModeMedia,
		Media: &types.MediaItem{Kind: types.MediaVideo, MimeType: "video/mp4", Data: []byte("mp4")},
	}
	_, err := api.provider("gpt-4o").Submit(context.Background(), req)
	assert.Equal(t, KindRejected, KindOf(err))
	assert.Nil(t, api.body())
}

func TestOpenAIProvider_ErrorClassification(t *testing.T) {
	tests := []struct {
		status int
		kind   Kind
	}{
		{http.StatusTooManyRequests, KindRateLimited},
		{http.StatusUnauthorized, KindUnauthenticated},
		{http.StatusForbidden, KindUnauthenticated},
		{http.StatusBadGateway, KindTransport},
		{http.StatusBadRequest, KindRejected},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			api := newMockChatAPI(t)
			api.status = tt.status

			_, err := api.provider("gpt-4o").Submit(context.Background(), factRequest("claim"))
			require.Error(t, err)
			assert.Equal(t, tt.kind, KindOf(err))
		})
	}
}

func TestOpenAIProvider_EmptyChoiceIsMalformed(t *testing.T) {
	api := newMockChatAPI(t)
	api.content = "   "

	_, err := api.provider("gpt-4o").Submit(context.Background(), factRequest("claim"))
	assert.Equal(t, KindMalformedResponse, KindOf(err))
}
