package main

import (
	"bytes"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relay-ai/internal/infra/config"
)

func TestCheckConfigFile(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "missing.yaml")
	assert.Equal(t, StatusWarn, checkConfigFile(missing, nil)(nil).Status)

	r := checkConfigFile(missing, errors.New("parse config: bad"))(nil)
	assert.Equal(t, StatusFail, r.Status)
	assert.NotEmpty(t, r.Fix)

	present := filepath.Join(dir, "relay.yaml")
	require.NoError(t, os.WriteFile(present, []byte("profile: travel\n"), 0o600))
	assert.Equal(t, StatusPass, checkConfigFile(present, nil)(config.Defaults()).Status)
}

func TestCheckConfigValues(t *testing.T) {
	assert.Equal(t, StatusFail, checkConfigValues(nil).Status)

	cfg := config.Defaults()
	cfg.LLM.Providers[0].APIKey = "k"
	assert.Equal(t, StatusPass, checkConfigValues(cfg).Status)

	cfg.LLM.Providers[0].APIKey = ""
	cfg.Logger.Level = "loud"
	r := checkConfigValues(cfg)
	assert.Equal(t, StatusFail, r.Status)
	assert.Contains(t, r.Message, "2 problem(s)")
	assert.Contains(t, r.Message, "logger.level")
}

func TestCheckLLMAPIKey(t *testing.T) {
	assert.Equal(t, StatusFail, checkLLMAPIKey(nil).Status)
	assert.Equal(t, StatusFail, checkLLMAPIKey(&config.Config{}).Status)

	cfg := config.Defaults()
	assert.Equal(t, StatusFail, checkLLMAPIKey(cfg).Status)

	cfg.LLM.Providers[0].APIKey = "k"
	assert.Equal(t, StatusPass, checkLLMAPIKey(cfg).Status)

	cfg.LLM.Providers = append(cfg.LLM.Providers,
		config.ProviderConfig{Name: "backup", Type: "openai"},
		config.ProviderConfig{Name: "local", Type: "ollama"},
	)
	r := checkLLMAPIKey(cfg)
	assert.Equal(t, StatusWarn, r.Status)
	assert.Contains(t, r.Message, "missing for [backup]")
}

func providerConfig(url, key string) *config.Config {
	cfg := config.Defaults()
	cfg.LLM.Providers[0].APIKey = key
	cfg.LLM.Providers[0].BaseURL = url
	return cfg
}

func TestCheckLLMConnectivity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/models", r.URL.Path)
		switch r.Header.Get("Authorization") {
		case "Bearer good":
			w.WriteHeader(http.StatusOK)
		case "Bearer flaky":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer srv.Close()
	check := checkLLMConnectivity(srv.Client())

	assert.Equal(t, StatusFail, check(nil).Status)
	assert.Equal(t, StatusPass, check(providerConfig(srv.URL+"/v1", "good")).Status)
	assert.Equal(t, StatusWarn, check(providerConfig(srv.URL+"/v1", "flaky")).Status)
	assert.Equal(t, StatusWarn, check(providerConfig(srv.URL+"/v1", "")).Status, "no key skips")

	r := check(providerConfig(srv.URL+"/v1", "bad"))
	assert.Equal(t, StatusFail, r.Status)
	assert.Contains(t, r.Message, "rejected")

	cfg := providerConfig(srv.URL, "good")
	cfg.LLM.DefaultProvider = "ghost"
	assert.Equal(t, StatusFail, check(cfg).Status)
}

func TestCheckLLMConnectivity_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	r := checkLLMConnectivity(http.DefaultClient)(providerConfig("http://"+addr, "good"))
	assert.Equal(t, StatusFail, r.Status)
	assert.NotEmpty(t, r.Fix)
}

func TestCheckCatalog(t *testing.T) {
	assert.Equal(t, StatusFail, checkCatalog(nil).Status)

	cfg := config.Defaults()
	r := checkCatalog(cfg)
	assert.Equal(t, StatusPass, r.Status)
	assert.Contains(t, r.Message, "BookingAgent")

	cfg.Profile = "unknown"
	assert.Equal(t, StatusFail, checkCatalog(cfg).Status)
}

func TestCheckGatewayAddr(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := config.Defaults()
	cfg.Gateway.Addr = ln.Addr().String()
	assert.Equal(t, StatusWarn, checkGatewayAddr(cfg).Status)

	cfg.Gateway.Addr = "127.0.0.1:0"
	assert.Equal(t, StatusPass, checkGatewayAddr(cfg).Status)
}

func TestSummarizeAndIcons(t *testing.T) {
	pass, warn, fail := summarize([]CheckResult{
		{Status: StatusPass}, {Status: StatusPass}, {Status: StatusWarn}, {Status: StatusFail},
	})
	assert.Equal(t, [3]int{2, 1, 1}, [3]int{pass, warn, fail})
	assert.Equal(t, "[PASS]", statusIcon(StatusPass))
	assert.Equal(t, "[????]", statusIcon("odd"))
}

func TestRunDoctor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	t.Setenv("GEMINI_API_KEY", "good")
	t.Setenv("RELAYAI_API_KEY", "")
	t.Setenv("RELAYAI_LLM_BASE_URL", srv.URL)
	t.Setenv("RELAYAI_GATEWAY_ADDR", "127.0.0.1:0")
	path := filepath.Join(t.TempDir(), "relay.yaml")
	require.NoError(t, os.WriteFile(path, []byte("profile: career\n"), 0o600))

	var out bytes.Buffer
	require.NoError(t, runDoctor(cliFlags{ConfigPath: path}, &out))
	assert.Contains(t, out.String(), "relay doctor")
	assert.Contains(t, out.String(), `catalog "career"`)
	assert.Contains(t, out.String(), "0 failed")

	t.Setenv("GEMINI_API_KEY", "")
	out.Reset()
	err := runDoctor(cliFlags{ConfigPath: path, Profile: "travel"}, &out)
	require.Error(t, err)
	assert.Contains(t, out.String(), "[FAIL] LLM API key")
	assert.Contains(t, out.String(), `catalog "travel"`)
}
