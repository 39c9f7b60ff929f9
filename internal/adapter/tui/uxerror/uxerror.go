// Package uxerror turns provider and session errors into short messages
// with recovery hints for the chat TUI.
package uxerror

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"relay-ai/internal/adapter/tui/theme"
	"relay-ai/internal/domain"
)

// FriendlyError is a user-facing error with suggestions for recovery.
type FriendlyError struct {
	Title   string
	Message string
	Hints   []string
	Code    domain.ErrorCode
	Raw     string
}

// Render formats the error for the transcript.
func (fe FriendlyError) Render() string {
	var sb strings.Builder
	sb.WriteString(fe.Title)
	if fe.Message != "" {
		sb.WriteString("\n  ")
		sb.WriteString(fe.Message)
	}
	if len(fe.Hints) > 0 {
		sb.WriteString("\n  Suggestions:")
		for _, h := range fe.Hints {
			fmt.Fprintf(&sb, "\n    %s %s", theme.SymbolBullet, h)
		}
	}
	return sb.String()
}

type errorPattern struct {
	match   func(err error) bool
	produce func(err error) FriendlyError
}

// Sentinels are checked first so wrapped errors match; string patterns
// catch transport errors that carry no sentinel.
var patterns = []errorPattern{
	{
		match:   is(context.Canceled),
		produce: constantError("Cancelled", "The reply was cancelled before it finished.", nil),
	},
	{
		match: is(domain.ErrSessionBusy),
		produce: constantError("Still Answering", "The previous reply has not finished yet.",
			[]string{"Wait for the reply to complete", "Press Esc to cancel it"}),
	},
	{
		match: is(domain.ErrCircuitOpen),
		produce: constantError("Provider Paused", "Too many recent provider failures; calls are paused for a while.",
			[]string{"Wait a minute and try again", "Configure llm.failover.fallbacks for a backup provider"}),
	},
	{
		match: is(domain.ErrAuthInvalid),
		produce: constantError("Authentication Failed", "The provider rejected the API key.",
			[]string{"Check the provider's api_key or its RELAYAI_LLM_PROVIDER_*_API_KEY variable", "Run 'relay doctor'"}),
	},
	{
		match: is(domain.ErrRateLimit),
		produce: constantError("Rate Limited", "The provider is throttling requests.",
			[]string{"Wait a moment before retrying", "Lower llm.rate_limit.requests_per_minute"}),
	},
	{
		match: is(domain.ErrContextOverflow),
		produce: constantError("Conversation Too Long", "The transcript no longer fits the model's context window.",
			[]string{"Start a new session with /new"}),
	},
	{
		match: is(domain.ErrStreamInterrupted),
		produce: constantError("Reply Interrupted", "The connection dropped part-way through the reply.",
			[]string{"Send the message again"}),
	},
	{
		match: func(err error) bool {
			return errors.Is(err, domain.ErrTimeout) || strings.Contains(strings.ToLower(err.Error()), "deadline exceeded")
		},
		produce: constantError("Request Timed Out", "The provider took too long to answer.",
			[]string{"Try again", "Increase dispatcher.call_timeout"}),
	},
	{
		match: containsAny("connection refused", "dial tcp", "no such host"),
		produce: constantError("Connection Failed", "Could not reach the provider.",
			[]string{"Check your network connection", "Verify the provider base_url", "Run 'relay doctor'"}),
	},
	{
		match: is(domain.ErrProviderError),
		produce: constantError("Provider Error", "The provider failed to produce a reply.",
			[]string{"Try again"}),
	},
}

// Humanize converts err into a FriendlyError with recovery hints.
func Humanize(err error) FriendlyError {
	if err == nil {
		return FriendlyError{Title: "Unknown Error", Code: domain.CodeUnknown, Raw: "nil"}
	}
	for _, p := range patterns {
		if p.match(err) {
			fe := p.produce(err)
			fe.Code = domain.ErrorCodeOf(err)
			return fe
		}
	}
	return FriendlyError{
		Title:   "Unexpected Error",
		Message: err.Error(),
		Hints:   []string{"Try again", "Set RELAYAI_LOGGER_LEVEL=debug for details"},
		Code:    domain.ErrorCodeOf(err),
		Raw:     err.Error(),
	}
}

func is(target error) func(error) bool {
	return func(err error) bool { return errors.Is(err, target) }
}

// containsAny matches when the error text contains any of substrs,
// case-insensitively.
func containsAny(substrs ...string) func(error) bool {
	return func(err error) bool {
		lower := strings.ToLower(err.Error())
		for _, s := range substrs {
			if strings.Contains(lower, s) {
				return true
			}
		}
		return false
	}
}

func constantError(title, message string, hints []string) func(error) FriendlyError {
	return func(err error) FriendlyError {
		return FriendlyError{Title: title, Message: message, Hints: hints, Raw: err.Error()}
	}
}
