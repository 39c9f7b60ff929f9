package llm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relay-ai/internal/domain"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockProvider struct {
	name     string
	chatFunc func(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error)
}

func (m *mockProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	if m.chatFunc == nil {
		return &domain.ChatResponse{Model: m.name}, nil
	}
	return m.chatFunc(ctx, req)
}

func (m *mockProvider) Name() string { return m.name }

type mockStreamProvider struct {
	mockProvider
	streamFunc func(ctx context.Context, req domain.ChatRequest) (<-chan domain.StreamDelta, error)
}

func (m *mockStreamProvider) ChatStream(ctx context.Context, req domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	return m.streamFunc(ctx, req)
}

func deltaChan(deltas ...domain.StreamDelta) <-chan domain.StreamDelta {
	ch := make(chan domain.StreamDelta, len(deltas))
	for _, d := range deltas {
		ch <- d
	}
	close(ch)
	return ch
}

func failing(name string, err error) *mockProvider {
	return &mockProvider{
		name: name,
		chatFunc: func(context.Context, domain.ChatRequest) (*domain.ChatResponse, error) {
			return nil, err
		},
	}
}

func TestFailoverPrimarySuccess(t *testing.T) {
	fb := failing("fallback", errors.New("must not be called"))
	f := NewFailoverProvider(&mockProvider{name: "primary"}, []domain.LLMProvider{fb}, newTestLogger())

	resp, err := f.Chat(context.Background(), domain.ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "primary", resp.Model)
	assert.Equal(t, "primary", f.Name())
}

func TestFailoverFallbackSuccess(t *testing.T) {
	f := NewFailoverProvider(
		failing("primary", domain.ErrRateLimit),
		[]domain.LLMProvider{failing("second", domain.ErrTimeout), &mockProvider{name: "third"}},
		newTestLogger(),
	)

	resp, err := f.Chat(context.Background(), domain.ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "third", resp.Model)
}

func TestFailoverAllFailJoinsErrors(t *testing.T) {
	f := NewFailoverProvider(
		failing("primary", domain.ErrRateLimit),
		[]domain.LLMProvider{failing("backup", domain.ErrAuthInvalid)},
		newTestLogger(),
	)

	_, err := f.Chat(context.Background(), domain.ChatRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRateLimit)
	assert.ErrorIs(t, err, domain.ErrAuthInvalid)
	assert.Contains(t, err.Error(), "primary:")
	assert.Contains(t, err.Error(), "backup:")
}

func TestFailoverStopsWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	primary := &mockProvider{
		name: "primary",
		chatFunc: func(context.Context, domain.ChatRequest) (*domain.ChatResponse, error) {
			cancel()
			return nil, context.Canceled
		},
	}
	called := false
	fb := &mockProvider{
		name: "fallback",
		chatFunc: func(context.Context, domain.ChatRequest) (*domain.ChatResponse, error) {
			called = true
			return &domain.ChatResponse{}, nil
		},
	}

	_, err := NewFailoverProvider(primary, []domain.LLMProvider{fb}, newTestLogger()).Chat(ctx, domain.ChatRequest{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestFailoverStreaming(t *testing.T) {
	primary := &mockStreamProvider{
		mockProvider: mockProvider{name: "primary"},
		streamFunc: func(context.Context, domain.ChatRequest) (<-chan domain.StreamDelta, error) {
			return nil, domain.ErrProviderError
		},
	}
	plain := &mockProvider{name: "plain"}
	fb := &mockStreamProvider{
		mockProvider: mockProvider{name: "fallback"},
		streamFunc: func(context.Context, domain.ChatRequest) (<-chan domain.StreamDelta, error) {
			return deltaChan(domain.StreamDelta{Content: "from fallback"}), nil
		},
	}

	f := NewFailoverProvider(primary, []domain.LLMProvider{plain, fb}, newTestLogger())
	ch, err := f.ChatStream(context.Background(), domain.ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "from fallback", (<-ch).Content)
}

func TestFailoverStreamingNoCapableProvider(t *testing.T) {
	f := NewFailoverProvider(&mockProvider{name: "a"}, []domain.LLMProvider{&mockProvider{name: "b"}}, newTestLogger())
	_, err := f.ChatStream(context.Background(), domain.ChatRequest{})
	assert.ErrorIs(t, err, domain.ErrProviderError)
}
