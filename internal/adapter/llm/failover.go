package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"relay-ai/internal/domain"
)

var (
	_ domain.LLMProvider          = (*FailoverProvider)(nil)
	_ domain.StreamingLLMProvider = (*FailoverProvider)(nil)
)

// FailoverProvider wraps a primary LLM provider with fallback providers.
// If the primary fails, it tries each fallback in order. Failover covers
// opening a call only: once a stream has delivered content it is never
// switched to another provider.
type FailoverProvider struct {
	primary   domain.LLMProvider
	fallbacks []domain.LLMProvider
	logger    *slog.Logger
}

// NewFailoverProvider creates a failover-capable provider.
func NewFailoverProvider(primary domain.LLMProvider, fallbacks []domain.LLMProvider, logger *slog.Logger) *FailoverProvider {
	return &FailoverProvider{
		primary:   primary,
		fallbacks: fallbacks,
		logger:    logger,
	}
}

// Name reports the primary's name so session events stay stable across
// failovers.
func (f *FailoverProvider) Name() string { return f.primary.Name() }

func (f *FailoverProvider) chain() []domain.LLMProvider {
	return append([]domain.LLMProvider{f.primary}, f.fallbacks...)
}

// Chat tries the primary provider first, then each fallback on failure.
// The returned error joins every provider's failure.
func (f *FailoverProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	var errs []error
	for i, p := range f.chain() {
		resp, err := p.Chat(ctx, req)
		if err == nil {
			if i > 0 {
				f.logger.Info("failover succeeded", "provider", p.Name())
			}
			return resp, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		if ctx.Err() != nil {
			break
		}
		f.logger.Warn("llm provider failed", "provider", p.Name(), "error", err)
	}
	return nil, fmt.Errorf("all providers failed: %w", errors.Join(errs...))
}

// ChatStream tries streaming from the primary, then each fallback that
// implements domain.StreamingLLMProvider.
func (f *FailoverProvider) ChatStream(ctx context.Context, req domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	var errs []error
	for i, p := range f.chain() {
		sp, ok := p.(domain.StreamingLLMProvider)
		if !ok {
			continue
		}
		ch, err := sp.ChatStream(ctx, req)
		if err == nil {
			if i > 0 {
				f.logger.Info("streaming failover succeeded", "provider", p.Name())
			}
			return ch, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		if ctx.Err() != nil {
			break
		}
		f.logger.Warn("llm stream failed to open", "provider", p.Name(), "error", err)
	}
	if len(errs) == 0 {
		return nil, domain.NewDomainError("FailoverProvider.ChatStream", domain.ErrProviderError,
			"no streaming-capable providers available")
	}
	return nil, fmt.Errorf("all streaming providers failed: %w", errors.Join(errs...))
}
