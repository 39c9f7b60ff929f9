package config

import (
	"fmt"
	"net"
	"strings"

	"relay-ai/internal/domain"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// Unwrap lets callers match any validation failure with
// errors.Is(err, domain.ErrConfiguration).
func (v *ValidationError) Unwrap() error { return domain.ErrConfiguration }

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateCatalog(cfg, ve)
	validateDispatcher(cfg, ve)
	validateLLM(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	validateGateway(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateCatalog(cfg *Config, ve *ValidationError) {
	if cfg.Profile == "" && cfg.CatalogFile == "" {
		ve.Add("one of profile or catalog_file must be set")
	}
}

func validateDispatcher(cfg *Config, ve *ValidationError) {
	if cfg.Dispatcher.CallTimeout < 0 {
		ve.Add("dispatcher.call_timeout must be >= 0")
	}
	if cfg.Dispatcher.MaxRetries < 0 {
		ve.Add("dispatcher.max_retries must be >= 0")
	}
}

var validProviderTypes = map[string]bool{
	"gemini":     true,
	"openai":     true,
	"openrouter": true,
	"ollama":     true,
}

func validateLLM(cfg *Config, ve *ValidationError) {
	if cfg.LLM.DefaultProvider == "" {
		ve.Add("llm.default_provider must not be empty")
	}
	if len(cfg.LLM.Providers) == 0 {
		ve.Add("llm.providers must not be empty")
		return
	}

	seen := make(map[string]bool)
	for i, p := range cfg.LLM.Providers {
		if p.Name == "" {
			ve.Add("llm.providers[%d].name must not be empty", i)
			continue
		}
		if seen[p.Name] {
			ve.Add("llm.providers[%d]: duplicate provider name %q", i, p.Name)
		}
		seen[p.Name] = true

		if !validProviderTypes[p.Type] {
			ve.Add("llm.providers[%d].type %q is invalid (want: gemini, openai, openrouter, ollama)", i, p.Type)
		}
		switch {
		case p.APIKey == "" && p.Type != "ollama":
			hint := fmt.Sprintf("RELAYAI_LLM_PROVIDER_%s_API_KEY", strings.ToUpper(strings.ReplaceAll(p.Name, "-", "_")))
			if p.Type == "gemini" {
				hint = "GEMINI_API_KEY or " + hint
			}
			ve.Add("llm.providers[%d] (%s): api_key is empty (set %s)", i, p.Name, hint)
		case strings.HasPrefix(p.APIKey, encPrefix):
			ve.Add("llm.providers[%d] (%s): api_key is encrypted (set RELAYAI_CONFIG_KEY)", i, p.Name)
		}
	}

	if cfg.LLM.DefaultProvider != "" && !seen[cfg.LLM.DefaultProvider] {
		ve.Add("llm.default_provider %q does not match any configured provider", cfg.LLM.DefaultProvider)
	}
	if cfg.LLM.Failover.Enabled {
		for _, fb := range cfg.LLM.Failover.Fallbacks {
			if !seen[fb] {
				ve.Add("llm.failover.fallbacks: unknown provider %q", fb)
			}
			if fb == cfg.LLM.DefaultProvider {
				ve.Add("llm.failover.fallbacks: %q is the default provider", fb)
			}
		}
	}
	if cfg.LLM.RateLimit.Enabled && cfg.LLM.RateLimit.RequestsPerMinute <= 0 {
		ve.Add("llm.rate_limit.requests_per_minute must be > 0 when rate limiting is enabled")
	}
	if cfg.LLM.MaxTokens < 0 {
		ve.Add("llm.max_tokens must be >= 0")
	}
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		ve.Add("llm.temperature must be between 0 and 2")
	}
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLogLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q is invalid (want: debug, info, warn, error)", cfg.Logger.Level)
	}
	if f := cfg.Logger.Format; f != "text" && f != "json" {
		ve.Add("logger.format %q is invalid (want: text, json)", f)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "", "noop", "stdout":
	case "file":
		if cfg.Tracer.File == "" {
			ve.Add("tracer.file is required when exporter is file")
		}
	default:
		ve.Add("tracer.exporter %q is invalid (want: noop, stdout, file)", cfg.Tracer.Exporter)
	}
	if cfg.Tracer.SampleRatio < 0 || cfg.Tracer.SampleRatio > 1 {
		ve.Add("tracer.sample_ratio must be between 0 and 1")
	}
}

func validateGateway(cfg *Config, ve *ValidationError) {
	if !cfg.Gateway.Enabled {
		return
	}
	if _, _, err := net.SplitHostPort(cfg.Gateway.Addr); err != nil {
		ve.Add("gateway.addr %q is invalid: %v", cfg.Gateway.Addr, err)
	}
	if cfg.Gateway.RequestsPerMin < 0 {
		ve.Add("gateway.requests_per_min must be >= 0")
	}
	if cfg.Gateway.RequestsPerMin > 0 && cfg.Gateway.BurstSize <= 0 {
		ve.Add("gateway.burst_size must be > 0 when rate limiting is enabled")
	}
	for _, p := range cfg.Gateway.TrustedProxies {
		if net.ParseIP(p) == nil {
			ve.Add("gateway.trusted_proxies: %q is not an IP address", p)
		}
	}
}
