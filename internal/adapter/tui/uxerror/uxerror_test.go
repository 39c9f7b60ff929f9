package uxerror

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"relay-ai/internal/domain"
)

func TestHumanize(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		title string
		code  domain.ErrorCode
	}{
		{"cancelled", fmt.Errorf("stream: %w", context.Canceled), "Cancelled", domain.CodeUnknown},
		{"busy", domain.NewDomainError("Dispatcher.Handle", domain.ErrSessionBusy, "s1"), "Still Answering", domain.CodeSessionBusy},
		{"circuit", fmt.Errorf("llm: %w", domain.ErrCircuitOpen), "Provider Paused", domain.CodeCircuitOpen},
		{"auth", fmt.Errorf("%w: API error 401", domain.ErrAuthInvalid), "Authentication Failed", domain.CodeAuthInvalid},
		{"rate", domain.ErrRateLimit, "Rate Limited", domain.CodeRateLimit},
		{"overflow", domain.ErrContextOverflow, "Conversation Too Long", domain.CodeContextOverflow},
		{"interrupted", domain.ErrStreamInterrupted, "Reply Interrupted", domain.CodeStreamInterrupted},
		{"deadline text", errors.New("Post: context deadline exceeded"), "Request Timed Out", domain.CodeUnknown},
		{"refused", errors.New("dial tcp 127.0.0.1:1: connect: connection refused"), "Connection Failed", domain.CodeUnknown},
		{"provider", fmt.Errorf("%w: API error 503", domain.ErrProviderError), "Provider Error", domain.CodeProviderError},
		{"opaque", errors.New("something odd"), "Unexpected Error", domain.CodeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fe := Humanize(tt.err)
			assert.Equal(t, tt.title, fe.Title)
			assert.Equal(t, tt.code, fe.Code)
			assert.Equal(t, tt.err.Error(), fe.Raw)
		})
	}
}

func TestHumanize_Nil(t *testing.T) {
	fe := Humanize(nil)
	assert.Equal(t, "Unknown Error", fe.Title)
	assert.Equal(t, domain.CodeUnknown, fe.Code)
}

func TestRender(t *testing.T) {
	out := Humanize(domain.ErrContextOverflow).Render()
	assert.Contains(t, out, "Conversation Too Long")
	assert.Contains(t, out, "Suggestions:")
	assert.Contains(t, out, "/new")

	bare := FriendlyError{Title: "Only"}.Render()
	assert.Equal(t, "Only", bare)
}
