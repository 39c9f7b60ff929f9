package main

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relay-ai/internal/adapter/skill"
	"relay-ai/internal/adapter/tui/theme"
	"relay-ai/internal/domain"
	"relay-ai/internal/infra/config"
	"relay-ai/internal/infra/logger"
)

// fakeLLM streams "Hel" "lo", or fails to open when the last message
// mentions "fail".
type fakeLLM struct{}

func (fakeLLM) Name() string { return "fake" }

func (fakeLLM) Chat(context.Context, domain.ChatRequest) (*domain.ChatResponse, error) {
	return &domain.ChatResponse{Message: domain.Message{Role: domain.RoleAssistant, Content: "Hello"}}, nil
}

func (fakeLLM) ChatStream(ctx context.Context, req domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	if strings.Contains(req.Messages[len(req.Messages)-1].Content, "fail") {
		return nil, fmt.Errorf("%w: API error 503: overloaded", domain.ErrProviderError)
	}
	ch := make(chan domain.StreamDelta, 3)
	ch <- domain.StreamDelta{Content: "Hel"}
	ch <- domain.StreamDelta{Content: "lo"}
	ch <- domain.StreamDelta{Done: true}
	close(ch)
	return ch, nil
}

func newTestApp(t *testing.T, profile string) *app {
	t.Helper()
	cfg := config.Defaults()
	cfg.Profile = profile
	a, err := newApp(cfg, fakeLLM{}, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func TestNewApp(t *testing.T) {
	a := newTestApp(t, "travel")
	assert.Equal(t, "travel", a.catalog.Name)
	assert.Equal(t, "DestinationAgent", a.start.Name())
	assert.Equal(t, a.cfg.LLM.Stream, a.runConfig().Stream)
	assert.Empty(t, a.runConfig().Model)

	cfg := config.Defaults()
	cfg.Profile = "nope"
	_, err := newApp(cfg, fakeLLM{}, logger.Discard())
	assert.Error(t, err)
}

func TestChatLoop_Conversation(t *testing.T) {
	a := newTestApp(t, "travel")
	in := strings.NewReader("hi there\nbook a flight to Paris\n/agent\nplease fail\n/quit\nnever read\n")
	var out bytes.Buffer

	require.NoError(t, chatLoop(context.Background(), a, in, &out))
	got := out.String()

	assert.Contains(t, got, "Travel Designer")
	assert.Contains(t, got, "DestinationAgent: Hello\n")
	assert.Contains(t, got, theme.SymbolHandoff+" ")
	assert.Contains(t, got, skill.Flights("Paris"))
	assert.Contains(t, got, "Active agent: BookingAgent")
	assert.Contains(t, got, "Provider Error")
	assert.NotContains(t, got, "never read")

	assert.Less(t, strings.Index(got, theme.SymbolHandoff), strings.Index(got, skill.Flights("Paris")))
	assert.Empty(t, a.sessions.List(), "session closed on exit")
}

func TestChatLoop_EOFEnds(t *testing.T) {
	a := newTestApp(t, "career")
	var out bytes.Buffer
	require.NoError(t, chatLoop(context.Background(), a, strings.NewReader("\n\n"), &out))
	assert.Contains(t, out.String(), "Career Mentor")
	assert.Empty(t, a.sessions.List())
}
