package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"relay-ai/internal/domain"
	"relay-ai/internal/infra/config"
)

var (
	_ domain.LLMProvider          = (*RateLimitedProvider)(nil)
	_ domain.StreamingLLMProvider = (*RateLimitedProvider)(nil)
)

// RateLimitedProvider paces outgoing calls to stay under a provider's
// requests-per-minute quota. Callers wait for a token instead of being
// rejected; a cancelled context ends the wait.
type RateLimitedProvider struct {
	inner   domain.LLMProvider
	limiter *rate.Limiter
}

// NewRateLimitedProvider wraps inner with a token bucket of cfg.RequestsPerMinute.
func NewRateLimitedProvider(inner domain.LLMProvider, cfg config.RateLimitConfig) *RateLimitedProvider {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Limit(float64(cfg.RequestsPerMinute) / 60)
	}
	return &RateLimitedProvider{inner: inner, limiter: rate.NewLimiter(limit, burst)}
}

// Name implements domain.LLMProvider.
func (p *RateLimitedProvider) Name() string { return p.inner.Name() }

// Chat implements domain.LLMProvider.
func (p *RateLimitedProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	return p.inner.Chat(ctx, req)
}

// ChatStream implements domain.StreamingLLMProvider.
func (p *RateLimitedProvider) ChatStream(ctx context.Context, req domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	sp, ok := p.inner.(domain.StreamingLLMProvider)
	if !ok {
		return nil, domain.NewDomainError("RateLimitedProvider.ChatStream", domain.ErrProviderError,
			fmt.Sprintf("provider %q does not support streaming", p.inner.Name()))
	}
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	return sp.ChatStream(ctx, req)
}

// wait blocks for a token. If ctx would expire before one is available the
// limiter fails immediately, which surfaces as a retryable rate limit.
func (p *RateLimitedProvider) wait(ctx context.Context) error {
	if err := p.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: provider %q: %w", domain.ErrRateLimit, p.inner.Name(), err)
	}
	return nil
}
