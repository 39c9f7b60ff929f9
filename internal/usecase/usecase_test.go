package usecase

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"relay-ai/internal/adapter/catalog"
	"relay-ai/internal/adapter/skill"
	"relay-ai/internal/domain"
)

// --- Mocks ---

type mockLLM struct {
	mu        sync.Mutex
	responses []domain.ChatResponse
	errs      []error // errs[i] is returned by call i when non-nil
	callIdx   int
	requests  []domain.ChatRequest
}

func (m *mockLLM) Chat(_ context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.callIdx
	m.callIdx++
	m.requests = append(m.requests, req)
	if idx < len(m.errs) && m.errs[idx] != nil {
		return nil, m.errs[idx]
	}
	if idx >= len(m.responses) {
		return &domain.ChatResponse{
			Message: domain.Message{Role: domain.RoleAssistant, Content: "fallback"},
		}, nil
	}
	resp := m.responses[idx]
	return &resp, nil
}

func (m *mockLLM) Name() string { return "mock" }

func (m *mockLLM) Requests() []domain.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.ChatRequest(nil), m.requests...)
}

type mockStreamingLLM struct {
	mockLLM
	streams   [][]domain.StreamDelta // one slice of deltas per ChatStream call
	streamIdx int
	openErr   error
	// hang keeps the stream open after the scripted deltas until the
	// context is cancelled.
	hang bool
}

func (m *mockStreamingLLM) Name() string { return "mock-streaming" }

func (m *mockStreamingLLM) ChatStream(ctx context.Context, req domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.openErr != nil {
		return nil, m.openErr
	}

	var deltas []domain.StreamDelta
	if m.streamIdx < len(m.streams) {
		deltas = m.streams[m.streamIdx]
	}
	m.streamIdx++
	hang := m.hang

	ch := make(chan domain.StreamDelta)
	go func() {
		defer close(ch)
		for _, d := range deltas {
			select {
			case ch <- d:
			case <-ctx.Done():
				return
			}
		}
		if hang {
			<-ctx.Done()
		}
	}()
	return ch, nil
}

type recordingBus struct {
	mu     sync.Mutex
	events []domain.Event
}

func (b *recordingBus) Publish(_ context.Context, e domain.Event) {
	b.mu.Lock()
	b.events = append(b.events, e)
	b.mu.Unlock()
}
func (b *recordingBus) Subscribe(domain.EventType, domain.EventHandler) func() { return func() {} }
func (b *recordingBus) SubscribeAll(domain.EventHandler) func()                { return func() {} }
func (b *recordingBus) Close()                                                 {}

func (b *recordingBus) Events() []domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := make([]domain.Event, len(b.events))
	copy(cp, b.events)
	return cp
}

func (b *recordingBus) Types() []domain.EventType {
	events := b.Events()
	types := make([]domain.EventType, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	return types
}

func newTestLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func loadCatalog(t *testing.T, name string) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Builtin(name, skill.NewBuiltinRegistry(nil), newTestLogger())
	require.NoError(t, err)
	return c
}

func agentFrom(t *testing.T, c *catalog.Catalog, name string) *domain.Agent {
	t.Helper()
	a, err := c.Agents.Get(name)
	require.NoError(t, err)
	return a
}

func newTestDispatcher(c *catalog.Catalog, llm domain.LLMProvider) (*Dispatcher, *recordingBus) {
	bus := &recordingBus{}
	d := NewDispatcher(DispatcherDeps{
		LLM:         llm,
		Router:      c.Router,
		Bus:         bus,
		Logger:      newTestLogger(),
		HandoffNote: c.HandoffNote,
	})
	return d, bus
}
