package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relay-ai/internal/domain"
)

func textParser(data []byte) (*domain.StreamDelta, error) {
	var v struct {
		Text string `json:"text"`
		Stop bool   `json:"stop"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &domain.StreamDelta{Content: v.Text, Done: v.Stop}, nil
}

func drain(ch <-chan domain.StreamDelta) []domain.StreamDelta {
	var out []domain.StreamDelta
	for d := range ch {
		out = append(out, d)
	}
	return out
}

func TestParseSSEStream(t *testing.T) {
	raw := ": keep-alive\n" +
		"data: {\"text\":\"hello\"}\n\n" +
		"event: ping\n" +
		"data:{\"text\":\" world\"}\n\n" +
		"data: not json\n\n" +
		"data: [DONE]\n\n" +
		"data: {\"text\":\"ignored\"}\n\n"

	deltas := drain(parseSSEStream(context.Background(), io.NopCloser(strings.NewReader(raw)), textParser))

	require.Len(t, deltas, 3)
	assert.Equal(t, "hello", deltas[0].Content)
	assert.Equal(t, " world", deltas[1].Content)
	assert.True(t, deltas[2].Done)
}

func TestParseSSEStreamStopsOnDoneDelta(t *testing.T) {
	raw := "data: {\"text\":\"a\",\"stop\":true}\n\ndata: {\"text\":\"b\"}\n\n"
	deltas := drain(parseSSEStream(context.Background(), io.NopCloser(strings.NewReader(raw)), textParser))

	require.Len(t, deltas, 1)
	assert.True(t, deltas[0].Done)
}

type failingReader struct {
	r   io.Reader
	err error
}

func (f *failingReader) Read(p []byte) (int, error) {
	n, err := f.r.Read(p)
	if err == io.EOF {
		return n, f.err
	}
	return n, err
}

func TestParseSSEStreamReadErrorIsInterrupted(t *testing.T) {
	reset := errors.New("connection reset by peer")
	body := io.NopCloser(&failingReader{r: strings.NewReader("data: {\"text\":\"par\"}\n\n"), err: reset})

	deltas := drain(parseSSEStream(context.Background(), body, textParser))

	require.Len(t, deltas, 2)
	assert.Equal(t, "par", deltas[0].Content)
	assert.ErrorIs(t, deltas[1].Err, domain.ErrStreamInterrupted)
	assert.ErrorIs(t, deltas[1].Err, reset)
}

func TestParseSSEStreamCancel(t *testing.T) {
	pr, pw := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())

	ch := parseSSEStream(ctx, pr, textParser)
	go pw.Write([]byte("data: {\"text\":\"one\"}\n\n"))
	first := <-ch
	assert.Equal(t, "one", first.Content)

	cancel()
	pw.CloseWithError(context.Canceled)

	select {
	case _, ok := <-ch:
		for ok {
			_, ok = <-ch
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}
