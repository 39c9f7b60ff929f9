package llm

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"relay-ai/internal/domain"
	"relay-ai/internal/infra/config"
)

// Registry holds named LLM providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]domain.LLMProvider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]domain.LLMProvider),
	}
}

// Register adds a provider. Returns error if name already registered.
func (r *Registry) Register(provider domain.LLMProvider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := provider.Name()
	if _, exists := r.providers[name]; exists {
		return domain.NewDomainError("Registry.Register", domain.ErrDuplicate, fmt.Sprintf("provider %q", name))
	}
	r.providers[name] = provider
	return nil
}

// Get retrieves a provider by name.
func (r *Registry) Get(name string) (domain.LLMProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrProviderNotFound, name)
	}
	return p, nil
}

// List returns all registered provider names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Build creates every configured provider, wraps each with the configured
// rate limiter and circuit breaker, and returns the default provider. When
// failover is enabled the default is chained with its fallbacks.
func Build(cfg config.LLMConfig, logger *slog.Logger) (domain.LLMProvider, error) {
	reg := NewRegistry()
	for _, pc := range cfg.Providers {
		if err := reg.Register(wrapProvider(NewOpenAIProvider(pc, logger), cfg, logger)); err != nil {
			return nil, err
		}
		logger.Debug("llm provider registered", "name", pc.Name, "type", pc.Type, "model", pc.Model)
	}

	primary, err := reg.Get(cfg.DefaultProvider)
	if err != nil {
		return nil, err
	}
	if !cfg.Failover.Enabled || len(cfg.Failover.Fallbacks) == 0 {
		return primary, nil
	}

	fallbacks := make([]domain.LLMProvider, 0, len(cfg.Failover.Fallbacks))
	for _, name := range cfg.Failover.Fallbacks {
		fb, err := reg.Get(name)
		if err != nil {
			return nil, err
		}
		fallbacks = append(fallbacks, fb)
	}
	return NewFailoverProvider(primary, fallbacks, logger), nil
}

// wrapProvider puts the rate limiter outside the breaker so a token wait
// that runs out of time never counts as a provider failure.
func wrapProvider(p domain.LLMProvider, cfg config.LLMConfig, logger *slog.Logger) domain.LLMProvider {
	if cfg.CircuitBreaker.Enabled {
		p = NewCircuitBreakerProvider(p, cfg.CircuitBreaker, logger)
	}
	if cfg.RateLimit.Enabled {
		p = NewRateLimitedProvider(p, cfg.RateLimit)
	}
	return p
}
