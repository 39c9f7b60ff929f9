package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relay-ai/internal/domain"
)

func TestMapHTTPError(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, domain.ErrRateLimit},
		{http.StatusUnauthorized, domain.ErrAuthInvalid},
		{http.StatusForbidden, domain.ErrAuthInvalid},
		{http.StatusRequestEntityTooLarge, domain.ErrContextOverflow},
		{http.StatusGatewayTimeout, domain.ErrTimeout},
		{http.StatusRequestTimeout, domain.ErrTimeout},
		{http.StatusInternalServerError, domain.ErrProviderError},
		{http.StatusServiceUnavailable, domain.ErrProviderError},
		{http.StatusBadRequest, domain.ErrInvalidInput},
		{http.StatusNotFound, domain.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := mapHTTPError(tt.status, []byte(`{"error":"x"}`))
			assert.ErrorIs(t, err, tt.want)
			assert.Contains(t, err.Error(), "API error")
			assert.Contains(t, err.Error(), `{"error":"x"}`)
		})
	}
}

func TestDoJSONRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "v", r.Header.Get("X-Test"))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	body, err := doJSONRequest(context.Background(), srv.Client(), srv.URL, []byte(`{}`), map[string]string{"X-Test": "v"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
}

func TestDoJSONRequestTruncatesErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(strings.Repeat("x", maxErrorBody*2)))
	}))
	defer srv.Close()

	_, err := doJSONRequest(context.Background(), srv.Client(), srv.URL, nil, nil)
	require.ErrorIs(t, err, domain.ErrProviderError)
	assert.Less(t, len(err.Error()), maxErrorBody+200)
}

func TestDoJSONRequestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := doJSONRequest(ctx, srv.Client(), srv.URL, nil, nil)
	assert.ErrorIs(t, err, domain.ErrTimeout)
}

func TestDoStreamRequestError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := doStreamRequest(context.Background(), srv.Client(), srv.URL, nil, nil)
	assert.ErrorIs(t, err, domain.ErrAuthInvalid)
}
