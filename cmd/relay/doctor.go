package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"relay-ai/internal/adapter/llm"
	"relay-ai/internal/infra/config"
)

// CheckStatus is the outcome of one doctor check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string
}

// Check is a named health check.
type Check struct {
	Name string
	Fn   func(cfg *config.Config) CheckResult
}

const notLoaded = "cannot check: config not loaded"

// runDoctor runs every check, prints a report to out and fails when any
// check failed.
func runDoctor(flags cliFlags, out io.Writer) error {
	path := configPath(flags)
	cfg, readErr := config.Read(path)
	if cfg != nil {
		if flags.Profile != "" {
			cfg.Profile, cfg.CatalogFile = flags.Profile, ""
		}
		if flags.Catalog != "" {
			cfg.CatalogFile = flags.Catalog
		}
	}

	client := &http.Client{Timeout: 10 * time.Second}
	checks := []Check{
		{Name: "Config file", Fn: checkConfigFile(path, readErr)},
		{Name: "Config values", Fn: checkConfigValues},
		{Name: "LLM API key", Fn: checkLLMAPIKey},
		{Name: "LLM connectivity", Fn: checkLLMConnectivity(client)},
		{Name: "Catalog", Fn: checkCatalog},
		{Name: "Gateway address", Fn: checkGatewayAddr},
	}

	fmt.Fprintln(out, "relay doctor")
	fmt.Fprintln(out, strings.Repeat("=", 50))
	fmt.Fprintln(out)

	results := make([]CheckResult, 0, len(checks))
	for _, check := range checks {
		r := check.Fn(cfg)
		r.Name = check.Name
		results = append(results, r)

		fmt.Fprintf(out, "  %s %s: %s\n", statusIcon(r.Status), r.Name, r.Message)
		if r.Fix != "" {
			fmt.Fprintf(out, "      Fix: %s\n", r.Fix)
		}
	}

	pass, warn, fail := summarize(results)
	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.Repeat("-", 50))
	fmt.Fprintf(out, "Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)

	if fail > 0 {
		return fmt.Errorf("%d check(s) failed", fail)
	}
	return nil
}

func summarize(results []CheckResult) (pass, warn, fail int) {
	for _, r := range results {
		switch r.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}
	return pass, warn, fail
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return "[PASS]"
	case StatusWarn:
		return "[WARN]"
	case StatusFail:
		return "[FAIL]"
	default:
		return "[????]"
	}
}

// checkConfigFile reports whether the config file exists and parses.
// A missing file is only a warning: defaults and environment still apply.
func checkConfigFile(path string, readErr error) func(*config.Config) CheckResult {
	return func(*config.Config) CheckResult {
		if readErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("cannot read %s: %v", path, readErr),
				Fix:     "Fix the YAML syntax, file permissions (0600) or RELAYAI_CONFIG_KEY",
			}
		}
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("no config file at %s; using defaults and environment", path),
			}
		}
		return CheckResult{Status: StatusPass, Message: fmt.Sprintf("config loaded from %s", path)}
	}
}

// checkConfigValues runs full validation and lists every problem.
func checkConfigValues(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: notLoaded}
	}
	err := config.Validate(cfg)
	var ve *config.ValidationError
	switch {
	case err == nil:
		return CheckResult{Status: StatusPass, Message: "configuration is valid"}
	case errors.As(err, &ve):
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("%d problem(s): %s", len(ve.Errors), strings.Join(ve.Errors, "; ")),
		}
	default:
		return CheckResult{Status: StatusFail, Message: err.Error()}
	}
}

func checkLLMAPIKey(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: notLoaded}
	}
	if len(cfg.LLM.Providers) == 0 {
		return CheckResult{
			Status:  StatusFail,
			Message: "no LLM providers configured",
			Fix:     "Add at least one provider under llm.providers",
		}
	}

	var withKey, withoutKey []string
	for _, p := range cfg.LLM.Providers {
		if p.APIKey != "" || p.Type == "ollama" {
			withKey = append(withKey, p.Name)
		} else {
			withoutKey = append(withoutKey, p.Name)
		}
	}
	switch {
	case len(withKey) == 0:
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("no API keys found for providers: %s", strings.Join(withoutKey, ", ")),
			Fix:     "Set GEMINI_API_KEY, RELAYAI_API_KEY or RELAYAI_LLM_PROVIDER_<NAME>_API_KEY",
		}
	case len(withoutKey) > 0:
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("keys configured for [%s]; missing for [%s]", strings.Join(withKey, ", "), strings.Join(withoutKey, ", ")),
		}
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("API keys configured for: %s", strings.Join(withKey, ", "))}
}

// checkLLMConnectivity lists models on the default provider, which
// exercises both reachability and the API key.
func checkLLMConnectivity(client *http.Client) func(*config.Config) CheckResult {
	return func(cfg *config.Config) CheckResult {
		if cfg == nil {
			return CheckResult{Status: StatusFail, Message: notLoaded}
		}
		var provider *config.ProviderConfig
		for i := range cfg.LLM.Providers {
			if cfg.LLM.Providers[i].Name == cfg.LLM.DefaultProvider {
				provider = &cfg.LLM.Providers[i]
				break
			}
		}
		if provider == nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("default provider %q not found in config", cfg.LLM.DefaultProvider),
			}
		}
		if provider.APIKey == "" && provider.Type != "ollama" {
			return CheckResult{Status: StatusWarn, Message: "skipped: no API key for default provider"}
		}

		endpoint := llm.BaseURL(*provider) + "/models"
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return CheckResult{Status: StatusFail, Message: fmt.Sprintf("failed to create request: %v", err)}
		}
		if provider.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+provider.APIKey)
		}

		start := time.Now()
		resp, err := client.Do(req)
		latency := time.Since(start)
		if err != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("cannot reach %s: %v", endpoint, err),
				Fix:     "Check your network connection and the provider base_url",
			}
		}
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("%s rejected the API key (HTTP %d)", provider.Name, resp.StatusCode),
				Fix:     "Check the key for provider " + provider.Name,
			}
		case resp.StatusCode >= 500:
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("%s reachable but unhealthy (HTTP %d)", provider.Name, resp.StatusCode),
			}
		}
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("%s reachable (latency: %dms)", provider.Name, latency.Milliseconds()),
		}
	}
}

// checkCatalog loads the configured catalog and validates its routes.
func checkCatalog(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: notLoaded}
	}
	cat, err := loadCatalog(cfg, slog.New(slog.DiscardHandler))
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: err.Error(),
			Fix:     "Use --profile travel|career or fix the catalog file",
		}
	}
	names := cat.Agents.Names()
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("catalog %q: %d agents (%s)", cat.Name, len(names), strings.Join(names, ", ")),
	}
}

// checkGatewayAddr verifies the serve address can be bound.
func checkGatewayAddr(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: notLoaded}
	}
	ln, err := net.Listen("tcp", cfg.Gateway.Addr)
	if err != nil {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("%s is not available: %v", cfg.Gateway.Addr, err),
			Fix:     "Set gateway.addr or RELAYAI_GATEWAY_ADDR to a free address",
		}
	}
	ln.Close()
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("%s is available", cfg.Gateway.Addr)}
}
