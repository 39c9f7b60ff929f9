package usecase

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"relay-ai/internal/domain"
)

// ErrorCategory indicates whether a provider error is worth retrying.
type ErrorCategory int

const (
	ErrorCategoryUnknown   ErrorCategory = iota
	ErrorCategoryRetryable               // 429, 5xx, timeouts, dropped connections
	ErrorCategoryPermanent               // 4xx, bad credentials, open circuit, cancellation
)

func (c ErrorCategory) String() string {
	switch c {
	case ErrorCategoryRetryable:
		return "retryable"
	case ErrorCategoryPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// ClassifiedError holds the result of error classification.
type ClassifiedError struct {
	Original   error
	Category   ErrorCategory
	Sentinel   error // mapped domain sentinel, or nil
	StatusCode int   // extracted HTTP status, or 0 if unknown
}

// Retryable reports whether another attempt may succeed.
func (c ClassifiedError) Retryable() bool { return c.Category == ErrorCategoryRetryable }

// Code returns the error code reported on agent.error events.
func (c ClassifiedError) Code() domain.ErrorCode {
	if c.Sentinel != nil {
		return domain.ErrorCodeOf(c.Sentinel)
	}
	return domain.ErrorCodeOf(c.Original)
}

// apiErrorPattern matches "API error <status_code>:" produced by the LLM adapters.
var apiErrorPattern = regexp.MustCompile(`API error (\d+):`)

// ClassifyError inspects a provider error and returns its category and
// mapped sentinel.
func ClassifyError(err error) ClassifiedError {
	if err == nil {
		return ClassifiedError{}
	}
	if c := classifyBySentinel(err); c.Category != ErrorCategoryUnknown {
		return c
	}

	msg := err.Error()
	if m := apiErrorPattern.FindStringSubmatch(msg); len(m) == 2 {
		code, _ := strconv.Atoi(m[1])
		return classifyByStatus(err, code)
	}
	return classifyByString(err, msg)
}

func classifyBySentinel(err error) ClassifiedError {
	out := ClassifiedError{Original: err}
	switch {
	case errors.Is(err, context.Canceled):
		out.Category = ErrorCategoryPermanent
	case errors.Is(err, domain.ErrRateLimit):
		out.Category, out.Sentinel = ErrorCategoryRetryable, domain.ErrRateLimit
	case errors.Is(err, domain.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		out.Category, out.Sentinel = ErrorCategoryRetryable, domain.ErrTimeout
	case errors.Is(err, domain.ErrStreamInterrupted):
		out.Category, out.Sentinel = ErrorCategoryRetryable, domain.ErrStreamInterrupted
	case errors.Is(err, domain.ErrAuthInvalid):
		out.Category, out.Sentinel = ErrorCategoryPermanent, domain.ErrAuthInvalid
	case errors.Is(err, domain.ErrCircuitOpen):
		out.Category, out.Sentinel = ErrorCategoryPermanent, domain.ErrCircuitOpen
	case errors.Is(err, domain.ErrContextOverflow):
		// Transcripts are never truncated, so resending cannot help.
		out.Category, out.Sentinel = ErrorCategoryPermanent, domain.ErrContextOverflow
	}
	return out
}

func classifyByStatus(err error, code int) ClassifiedError {
	out := ClassifiedError{Original: err, StatusCode: code, Category: ErrorCategoryPermanent}
	switch {
	case code == 429:
		out.Category, out.Sentinel = ErrorCategoryRetryable, domain.ErrRateLimit
	case code == 401 || code == 403:
		out.Sentinel = domain.ErrAuthInvalid
	case code == 413:
		out.Sentinel = domain.ErrContextOverflow
	case code == 408 || code == 504:
		out.Category, out.Sentinel = ErrorCategoryRetryable, domain.ErrTimeout
	case code >= 500 && code < 600:
		out.Category, out.Sentinel = ErrorCategoryRetryable, domain.ErrProviderError
	}
	return out
}

func classifyByString(err error, msg string) ClassifiedError {
	lower := strings.ToLower(msg)

	for _, p := range []string{"rate limit", "too many requests"} {
		if strings.Contains(lower, p) {
			return ClassifiedError{Original: err, Category: ErrorCategoryRetryable, Sentinel: domain.ErrRateLimit}
		}
	}
	for _, p := range []string{
		"connection refused", "no such host", "timeout",
		"deadline exceeded", "connection reset", "unexpected eof",
	} {
		if strings.Contains(lower, p) {
			return ClassifiedError{Original: err, Category: ErrorCategoryRetryable}
		}
	}
	return ClassifiedError{Original: err, Category: ErrorCategoryUnknown}
}
