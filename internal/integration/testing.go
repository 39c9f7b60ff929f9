// Package integration holds end-to-end tests that talk to real LLM
// providers. They run only with -tags integration and the matching API
// key in the environment.
package integration

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"relay-ai/internal/adapter/catalog"
	"relay-ai/internal/adapter/llm"
	"relay-ai/internal/adapter/skill"
	"relay-ai/internal/domain"
	"relay-ai/internal/infra/config"
	"relay-ai/internal/usecase"
	"relay-ai/internal/usecase/eventbus"
)

// Config holds integration test configuration from the environment.
type Config struct {
	GeminiKey     string
	OpenAIKey     string
	OpenRouterKey string
	TestTimeout   time.Duration
	SkipSlow      bool
}

// LoadConfig reads integration test configuration from the environment.
func LoadConfig() *Config {
	return &Config{
		GeminiKey:     os.Getenv("GEMINI_API_KEY"),
		OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenRouterKey: os.Getenv("OPENROUTER_API_KEY"),
		TestTimeout:   60 * time.Second,
		SkipSlow:      os.Getenv("SKIP_SLOW_TESTS") == "1",
	}
}

// SkipIfNoAPIKey skips the test when the provider's key is not set.
func SkipIfNoAPIKey(t *testing.T, key, name string) {
	t.Helper()
	if key == "" {
		t.Skipf("Skipping %s integration test: %s_API_KEY not set", name, name)
	}
}

// SkipIfShort skips integration tests in short mode.
func SkipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
}

// NewTestContext creates a context with timeout for integration tests.
func NewTestContext(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// Stack is a fully wired dispatcher over a real provider.
type Stack struct {
	Catalog    *catalog.Catalog
	Start      *domain.Agent
	Bus        *eventbus.Bus
	Sessions   *usecase.SessionManager
	Dispatcher *usecase.Dispatcher
}

// NewStack wires the named builtin catalog to a provider built from
// llmCfg, the same way the relay binary does.
func NewStack(t *testing.T, profile string, llmCfg config.LLMConfig) *Stack {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	provider, err := llm.Build(llmCfg, logger)
	if err != nil {
		t.Fatalf("build provider: %v", err)
	}
	c, err := catalog.Builtin(profile, skill.NewBuiltinRegistry(logger), logger)
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	start, err := c.Agents.Default()
	if err != nil {
		t.Fatalf("default agent: %v", err)
	}

	bus := eventbus.New(logger)
	t.Cleanup(bus.Close)
	return &Stack{
		Catalog:  c,
		Start:    start,
		Bus:      bus,
		Sessions: usecase.NewSessionManager(bus),
		Dispatcher: usecase.NewDispatcher(usecase.DispatcherDeps{
			LLM:         provider,
			Router:      c.Router,
			Bus:         bus,
			Logger:      logger,
			HandoffNote: c.HandoffNote,
			CallTimeout: 45 * time.Second,
			MaxRetries:  2,
		}),
	}
}

// LLMConfig returns the default provider settings with a single
// provider of the given type and key.
func LLMConfig(providerType, key string) config.LLMConfig {
	cfg := config.Defaults().LLM
	cfg.DefaultProvider = providerType
	cfg.Providers = []config.ProviderConfig{{Name: providerType, Type: providerType, APIKey: key}}
	return cfg
}
