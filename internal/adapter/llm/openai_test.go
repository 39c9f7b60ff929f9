package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relay-ai/internal/domain"
	"relay-ai/internal/infra/config"
)

func newTestProvider(url string) *OpenAIProvider {
	return NewOpenAIProvider(config.ProviderConfig{
		Name:    "gemini",
		Type:    "gemini",
		BaseURL: url + "/",
		APIKey:  "test-key",
	}, newTestLogger())
}

func TestNewOpenAIProviderDefaults(t *testing.T) {
	tests := []struct {
		typ  string
		want string
	}{
		{"gemini", "https://generativelanguage.googleapis.com/v1beta/openai"},
		{"openai", "https://api.openai.com/v1"},
		{"openrouter", "https://openrouter.ai/api/v1"},
		{"ollama", "http://localhost:11434/v1"},
		{"", "https://generativelanguage.googleapis.com/v1beta/openai"},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			p := NewOpenAIProvider(config.ProviderConfig{Name: "p", Type: tt.typ}, newTestLogger())
			assert.Equal(t, tt.want, p.baseURL)
			assert.Equal(t, config.DefaultModel, p.model)
		})
	}
}

func TestOpenAIProviderChat(t *testing.T) {
	var got openaiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c-1","model":"gemini-2.0-flash","created":1700000000,
			"choices":[{"index":0,"message":{"role":"assistant","content":"Bonjour!"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":10,"completion_tokens":3,"total_tokens":13}}`)
	}))
	defer server.Close()

	resp, err := newTestProvider(server.URL).Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: "You are the TravelGuide."},
			{Role: domain.RoleUser, Content: "hello", Name: "dropped"},
		},
		MaxTokens:   256,
		Temperature: 0.4,
		Stream:      true,
	})
	require.NoError(t, err)

	assert.Equal(t, "Bonjour!", resp.Message.Content)
	assert.Equal(t, domain.RoleAssistant, resp.Message.Role)
	assert.Equal(t, 13, resp.Usage.TotalTokens)
	assert.Equal(t, int64(1700000000), resp.CreatedAt.Unix())

	assert.Equal(t, config.DefaultModel, got.Model)
	assert.False(t, got.Stream)
	assert.Nil(t, got.StreamOptions)
	assert.Equal(t, 256, got.MaxTokens)
	require.NotNil(t, got.Temperature)
	assert.InDelta(t, 0.4, *got.Temperature, 1e-9)
	assert.Equal(t, []openaiMessage{
		{Role: "system", Content: "You are the TravelGuide."},
		{Role: "user", Content: "hello"},
	}, got.Messages)
}

func TestOpenAIProviderChatNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"id":"c-2","choices":[]}`)
	}))
	defer server.Close()

	_, err := newTestProvider(server.URL).Chat(context.Background(), domain.ChatRequest{})
	assert.ErrorIs(t, err, domain.ErrProviderError)
}

func TestOpenAIProviderChatBadJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{not json`)
	}))
	defer server.Close()

	_, err := newTestProvider(server.URL).Chat(context.Background(), domain.ChatRequest{})
	assert.ErrorIs(t, err, domain.ErrProviderError)
}

func TestOpenAIProviderChatHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"quota"}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := newTestProvider(server.URL).Chat(context.Background(), domain.ChatRequest{})
	require.ErrorIs(t, err, domain.ErrRateLimit)
	assert.Contains(t, err.Error(), "API error 429")
}

func TestOpenAIProviderNoAuthHeaderWithoutKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"choices":[{"message":{"content":"ok"}}]}`)
	}))
	defer server.Close()

	p := NewOpenAIProvider(config.ProviderConfig{Name: "local", Type: "ollama", BaseURL: server.URL}, newTestLogger())
	resp, err := p.Chat(context.Background(), domain.ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Message.Content)
	assert.Equal(t, "local", p.Name())
}

func sseServer(t *testing.T, events ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openaiRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)
		if assert.NotNil(t, req.StreamOptions) {
			assert.True(t, req.StreamOptions.IncludeUsage)
		}
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, e := range events {
			fmt.Fprintf(w, "data: %s\n\n", e)
			flusher.Flush()
		}
	}))
}

func TestOpenAIProviderChatStream(t *testing.T) {
	server := sseServer(t,
		`{"id":"s","choices":[{"delta":{"role":"assistant"}}]}`,
		`{"id":"s","choices":[{"delta":{"content":"Hel"}}]}`,
		`{"id":"s","choices":[{"delta":{"content":"lo"},"finish_reason":"stop"}]}`,
		`{"id":"s","choices":[],"usage":{"prompt_tokens":4,"completion_tokens":2,"total_tokens":6}}`,
		`[DONE]`,
	)
	defer server.Close()

	ch, err := newTestProvider(server.URL).ChatStream(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)

	var text strings.Builder
	var usage *domain.Usage
	var done bool
	for d := range ch {
		require.NoError(t, d.Err)
		text.WriteString(d.Content)
		if d.Usage != nil {
			usage = d.Usage
		}
		done = done || d.Done
	}

	assert.Equal(t, "Hello", text.String())
	require.NotNil(t, usage)
	assert.Equal(t, 6, usage.TotalTokens)
	assert.True(t, done)
}

func TestOpenAIProviderChatStreamOpenError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := newTestProvider(server.URL).ChatStream(context.Background(), domain.ChatRequest{})
	assert.ErrorIs(t, err, domain.ErrAuthInvalid)
}

func TestParseOpenAIChunkSkipsEmpty(t *testing.T) {
	d, err := parseOpenAIChunk([]byte(`{"choices":[{"delta":{"role":"assistant"}}]}`))
	require.NoError(t, err)
	assert.Nil(t, d)

	_, err = parseOpenAIChunk([]byte(`{`))
	assert.Error(t, err)
}
