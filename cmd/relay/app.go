package main

import (
	"fmt"
	"log/slog"

	"relay-ai/internal/adapter/catalog"
	"relay-ai/internal/adapter/skill"
	"relay-ai/internal/domain"
	"relay-ai/internal/infra/config"
	"relay-ai/internal/usecase"
	"relay-ai/internal/usecase/eventbus"
)

// app holds the components chat and serve share.
type app struct {
	cfg        *config.Config
	log        *slog.Logger
	catalog    *catalog.Catalog
	start      *domain.Agent
	bus        *eventbus.Bus
	sessions   *usecase.SessionManager
	dispatcher *usecase.Dispatcher
}

func newApp(cfg *config.Config, provider domain.LLMProvider, log *slog.Logger) (*app, error) {
	cat, err := loadCatalog(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	start, err := cat.Agents.Default()
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}

	handoffNote := cat.HandoffNote
	if cfg.Dispatcher.HandoffNote != "" {
		handoffNote = cfg.Dispatcher.HandoffNote
	}

	bus := eventbus.New(log)
	return &app{
		cfg:      cfg,
		log:      log,
		catalog:  cat,
		start:    start,
		bus:      bus,
		sessions: usecase.NewSessionManager(bus),
		dispatcher: usecase.NewDispatcher(usecase.DispatcherDeps{
			LLM:         provider,
			Router:      cat.Router,
			Bus:         bus,
			Logger:      log,
			HandoffNote: handoffNote,
			CallTimeout: cfg.Dispatcher.CallTimeout,
			MaxRetries:  cfg.Dispatcher.MaxRetries,
		}),
	}, nil
}

func loadCatalog(cfg *config.Config, log *slog.Logger) (*catalog.Catalog, error) {
	skills := skill.NewBuiltinRegistry(log)
	if cfg.CatalogFile != "" {
		return catalog.LoadFile(cfg.CatalogFile, skills, log)
	}
	return catalog.Builtin(cfg.Profile, skills, log)
}

// runConfig is what every session sends to the provider. Model stays
// empty so each provider in a failover chain uses its own.
func (a *app) runConfig() usecase.RunConfig {
	return usecase.RunConfig{
		Stream:      a.cfg.LLM.Stream,
		MaxTokens:   a.cfg.LLM.MaxTokens,
		Temperature: a.cfg.LLM.Temperature,
	}
}

func (a *app) Close() {
	a.bus.Close()
}
