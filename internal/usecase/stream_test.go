package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relay-ai/internal/domain"
)

func streamingSession(t *testing.T, llm *mockStreamingLLM) (*Dispatcher, *recordingBus, *Session) {
	t.Helper()
	c := loadCatalog(t, "travel")
	d, bus := newTestDispatcher(c, llm)
	return d, bus, NewSession(agentFrom(t, c, "DestinationAgent"), RunConfig{Stream: true})
}

func collect(t *testing.T, s *Stream) []string {
	t.Helper()
	var got []string
	for frag := range s.Fragments() {
		got = append(got, frag)
	}
	return got
}

func waitDone(t *testing.T, s *Stream) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not finish")
	}
}

func TestStream_Complete(t *testing.T) {
	llm := &mockStreamingLLM{streams: [][]domain.StreamDelta{{
		{Content: "Try "},
		{Content: "Bali."},
		{Done: true, Usage: &domain.Usage{TotalTokens: 7}},
	}}}
	d, bus, s := streamingSession(t, llm)

	resp, err := d.Handle(context.Background(), s, "I like beaches")
	require.NoError(t, err)
	require.True(t, resp.IsStream())
	assert.True(t, s.Busy())

	assert.Equal(t, []string{"Try ", "Bali."}, collect(t, resp.Stream))
	waitDone(t, resp.Stream)

	turn := resp.Stream.Turn()
	assert.Equal(t, "Try Bali.", turn.Content)
	assert.False(t, turn.Incomplete)
	assert.False(t, turn.Error)
	assert.NoError(t, resp.Stream.Err())
	assert.False(t, s.Busy())

	turns := s.Transcript()
	require.Len(t, turns, 2)
	assert.Equal(t, turn, turns[1])
	assert.Contains(t, bus.Types(), domain.EventStreamCompleted)
	assert.True(t, llm.Requests()[0].Stream)
}

func TestStream_ContentCollects(t *testing.T) {
	llm := &mockStreamingLLM{streams: [][]domain.StreamDelta{{{Content: "a"}, {Content: "b"}}}}
	d, _, s := streamingSession(t, llm)

	resp, err := d.Handle(context.Background(), s, "hi")
	require.NoError(t, err)
	assert.Equal(t, "ab", resp.Content())
	assert.False(t, s.Busy())
}

func TestStream_SingleUse(t *testing.T) {
	llm := &mockStreamingLLM{streams: [][]domain.StreamDelta{{{Content: "once"}, {Done: true}}}}
	d, _, s := streamingSession(t, llm)

	resp, err := d.Handle(context.Background(), s, "hi")
	require.NoError(t, err)
	assert.Equal(t, []string{"once"}, collect(t, resp.Stream))
	assert.Empty(t, collect(t, resp.Stream))
	assert.Equal(t, 2, s.Len())
}

func TestStream_AbandonedByBreak(t *testing.T) {
	llm := &mockStreamingLLM{
		streams: [][]domain.StreamDelta{{{Content: "Par"}, {Content: "tial"}}},
		hang:    true,
	}
	d, bus, s := streamingSession(t, llm)

	resp, err := d.Handle(context.Background(), s, "I like beaches")
	require.NoError(t, err)

	for frag := range resp.Stream.Fragments() {
		assert.Equal(t, "Par", frag)
		break
	}
	waitDone(t, resp.Stream)

	turn := resp.Stream.Turn()
	assert.Equal(t, "Par", turn.Content)
	assert.True(t, turn.Incomplete)
	assert.False(t, turn.Error)
	assert.False(t, s.Busy())
	assert.NotContains(t, bus.Types(), domain.EventAgentError)
}

func TestStream_AbandonedByContextCancel(t *testing.T) {
	llm := &mockStreamingLLM{
		streams: [][]domain.StreamDelta{{{Content: "Par"}}},
		hang:    true,
	}
	d, _, s := streamingSession(t, llm)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	resp, err := d.Handle(ctx, s, "I like beaches")
	require.NoError(t, err)

	var got []string
	for frag := range resp.Stream.Fragments() {
		got = append(got, frag)
		cancel()
	}
	waitDone(t, resp.Stream)

	assert.Equal(t, []string{"Par"}, got)
	turn := resp.Stream.Turn()
	assert.Equal(t, "Par", turn.Content)
	assert.True(t, turn.Incomplete)
	assert.False(t, s.Busy())
}

func TestStream_CloseBeforeConsuming(t *testing.T) {
	llm := &mockStreamingLLM{streams: [][]domain.StreamDelta{{{Content: "never"}}}, hang: true}
	d, _, s := streamingSession(t, llm)

	resp, err := d.Handle(context.Background(), s, "hi")
	require.NoError(t, err)

	resp.Stream.Close()
	resp.Stream.Close()
	waitDone(t, resp.Stream)

	turn := resp.Stream.Turn()
	assert.Empty(t, turn.Content)
	assert.True(t, turn.Incomplete)
	assert.Empty(t, collect(t, resp.Stream))
	assert.False(t, s.Busy())
	assert.Equal(t, 2, s.Len())
}

func TestStream_MidStreamErrorKeepsSessionUsable(t *testing.T) {
	transport := errors.New("connection reset")
	llm := &mockStreamingLLM{streams: [][]domain.StreamDelta{
		{{Content: "Hel"}, {Err: transport}},
		{{Content: "Hello again"}, {Done: true}},
	}}
	d, bus, s := streamingSession(t, llm)

	resp, err := d.Handle(context.Background(), s, "I like beaches")
	require.NoError(t, err)
	assert.Equal(t, []string{"Hel"}, collect(t, resp.Stream))
	waitDone(t, resp.Stream)

	assert.ErrorIs(t, resp.Stream.Err(), transport)
	turn := resp.Stream.Turn()
	assert.True(t, turn.Error)
	assert.True(t, turn.Incomplete)
	assert.Equal(t, "Hel\n\n❌ Something went wrong: connection reset", turn.Content)
	assert.Equal(t, "DestinationAgent", s.ActiveAgent().Name())
	assert.False(t, s.Busy())
	assert.Contains(t, bus.Types(), domain.EventAgentError)
	assert.Contains(t, bus.Types(), domain.EventStreamError)

	resp, err = d.Handle(context.Background(), s, "still there?")
	require.NoError(t, err)
	assert.Equal(t, "Hello again", resp.Content())
	assert.Equal(t, 4, s.Len())
}

func TestStream_OpenErrorBecomesErrorTurn(t *testing.T) {
	llm := &mockStreamingLLM{openErr: domain.ErrAuthInvalid}
	d, _, s := streamingSession(t, llm)

	resp, err := d.Handle(context.Background(), s, "hi")
	require.NoError(t, err)
	assert.False(t, resp.IsStream())
	assert.ErrorIs(t, resp.Err, domain.ErrAuthInvalid)
	assert.False(t, s.Busy())
	assert.True(t, s.Transcript()[1].Error)
}

func TestStream_BusySessionRejectsMessages(t *testing.T) {
	llm := &mockStreamingLLM{
		streams: [][]domain.StreamDelta{{{Content: "slow"}}, {{Content: "ok"}, {Done: true}}},
		hang:    true,
	}
	d, _, s := streamingSession(t, llm)

	resp, err := d.Handle(context.Background(), s, "first")
	require.NoError(t, err)

	_, err = d.Handle(context.Background(), s, "second")
	require.ErrorIs(t, err, domain.ErrSessionBusy)
	assert.Equal(t, domain.CodeSessionBusy, domain.ErrorCodeOf(err))
	assert.Equal(t, 1, s.Len(), "rejected message must not reach the transcript")

	resp.Stream.Close()
	waitDone(t, resp.Stream)

	resp, err = d.Handle(context.Background(), s, "third")
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content())
}

func TestStream_NonStreamingConfigUsesChat(t *testing.T) {
	c := loadCatalog(t, "travel")
	llm := &mockStreamingLLM{}
	d, _ := newTestDispatcher(c, llm)
	s := NewSession(agentFrom(t, c, "DestinationAgent"), RunConfig{Stream: false})

	resp, err := d.Handle(context.Background(), s, "hi")
	require.NoError(t, err)
	assert.False(t, resp.IsStream())
	assert.Equal(t, "fallback", resp.Text)
}
