package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
	"gopkg.in/yaml.v3"

	"relay-ai/internal/domain"
)

// Config is the top-level application configuration.
type Config struct {
	// Profile names a builtin catalog ("travel", "career"). Ignored when
	// CatalogFile is set.
	Profile     string           `yaml:"profile"`
	CatalogFile string           `yaml:"catalog_file,omitempty"`
	Dispatcher  DispatcherConfig `yaml:"dispatcher"`
	LLM         LLMConfig        `yaml:"llm"`
	Logger      LoggerConfig     `yaml:"logger"`
	Tracer      TracerConfig     `yaml:"tracer"`
	Gateway     GatewayConfig    `yaml:"gateway"`
}

// DispatcherConfig holds turn handling settings.
type DispatcherConfig struct {
	// HandoffNote overrides the catalog's handoff note. "{agent}" is
	// replaced with the new agent's name.
	HandoffNote string        `yaml:"handoff_note,omitempty"`
	CallTimeout time.Duration `yaml:"call_timeout"`
	MaxRetries  int           `yaml:"max_retries"`
}

// GatewayConfig holds WebSocket gateway settings.
type GatewayConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Addr           string   `yaml:"addr"`
	RequestsPerMin int      `yaml:"requests_per_min"` // per client IP, 0 disables
	BurstSize      int      `yaml:"burst_size"`
	TrustedProxies []string `yaml:"trusted_proxies,omitempty"`
}

// FailoverConfig holds provider failover settings.
type FailoverConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Fallbacks []string `yaml:"fallbacks"`
}

// LLMConfig holds capability provider settings.
type LLMConfig struct {
	DefaultProvider string               `yaml:"default_provider"`
	Providers       []ProviderConfig     `yaml:"providers"`
	Failover        FailoverConfig       `yaml:"failover"`
	CircuitBreaker  CircuitBreakerConfig `yaml:"circuit_breaker"`
	RateLimit       RateLimitConfig      `yaml:"rate_limit"`

	// Run configuration passed with every request.
	Stream      bool    `yaml:"stream"`
	MaxTokens   int     `yaml:"max_tokens,omitempty"`
	Temperature float64 `yaml:"temperature,omitempty"`
}

// CircuitBreakerConfig holds circuit breaker settings for LLM providers.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// RateLimitConfig paces outgoing provider requests.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	Burst             int  `yaml:"burst"`
}

// PoolConfig holds HTTP connection pool settings for LLM providers.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// ProviderConfig holds settings for a single LLM provider. Every supported
// type speaks the OpenAI chat completions protocol; Type selects the
// default base URL.
type ProviderConfig struct {
	Name        string        `yaml:"name"`
	Type        string        `yaml:"type"`
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	ConnTimeout time.Duration `yaml:"conn_timeout"`
	RespTimeout time.Duration `yaml:"resp_timeout"`
	Pool        PoolConfig    `yaml:"pool"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds OpenTelemetry settings.
type TracerConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"`
	File        string  `yaml:"file,omitempty"`
	SampleRatio float64 `yaml:"sample_ratio,omitempty"`
	ServiceName string  `yaml:"service_name,omitempty"`
}

// Defaults for the builtin provider.
const (
	DefaultProviderName = "gemini"
	DefaultModel        = "gemini-2.0-flash"
)

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Profile: "travel",
		Dispatcher: DispatcherConfig{
			CallTimeout: 60 * time.Second,
			MaxRetries:  2,
		},
		LLM: LLMConfig{
			DefaultProvider: DefaultProviderName,
			Providers: []ProviderConfig{
				{Name: DefaultProviderName, Type: "gemini", Model: DefaultModel},
			},
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
			RateLimit: RateLimitConfig{
				Enabled:           false,
				RequestsPerMinute: 15,
				Burst:             1,
			},
			Stream: true,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
		Gateway: GatewayConfig{
			Enabled:        false,
			Addr:           ":8090",
			RequestsPerMin: 120,
			BurstSize:      20,
		},
	}
}

// Load reads a YAML config file, applies env var overrides, decrypts
// secrets and validates the result. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read is Load without validation, for callers that report problems
// themselves.
func Read(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, domain.WrapOp("config.Load", fmt.Errorf("%w: read config: %w", domain.ErrConfigLoad, err))
	}
	if err == nil {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve config path: %w", err)
		}
		if err := validatePermissions(absPath); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, domain.WrapOp("config.Load", fmt.Errorf("%w: parse config: %w", domain.ErrConfigLoad, err))
		}
	}

	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv("RELAYAI_CONFIG_KEY"); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}
	return cfg, nil
}

// ApplyEnvOverrides maps RELAYAI_* env vars to config fields.
//
// Credentials are resolved in this order: RELAYAI_LLM_PROVIDER_<NAME>_API_KEY
// for a named provider, RELAYAI_API_KEY for the default provider, then
// GEMINI_API_KEY for any gemini provider still without a key.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RELAYAI_PROFILE"); v != "" {
		cfg.Profile = v
	}
	if v := os.Getenv("RELAYAI_CATALOG_FILE"); v != "" {
		cfg.CatalogFile = v
	}
	if v := os.Getenv("RELAYAI_HANDOFF_NOTE"); v != "" {
		cfg.Dispatcher.HandoffNote = v
	}
	if v := os.Getenv("RELAYAI_CALL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Dispatcher.CallTimeout = d
		}
	}
	if v := os.Getenv("RELAYAI_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Dispatcher.MaxRetries = n
		}
	}
	if v := os.Getenv("RELAYAI_LLM_DEFAULT_PROVIDER"); v != "" {
		cfg.LLM.DefaultProvider = v
	}
	if v := os.Getenv("RELAYAI_LLM_MODEL"); v != "" {
		if p := cfg.provider(cfg.LLM.DefaultProvider); p != nil {
			p.Model = v
		}
	}
	if v := os.Getenv("RELAYAI_LLM_BASE_URL"); v != "" {
		if p := cfg.provider(cfg.LLM.DefaultProvider); p != nil {
			p.BaseURL = v
		}
	}
	if v := os.Getenv("RELAYAI_LLM_STREAM"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.LLM.Stream = b
		}
	}
	if v := os.Getenv("RELAYAI_LLM_RATE_LIMIT_RPM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.LLM.RateLimit.Enabled = true
			cfg.LLM.RateLimit.RequestsPerMinute = n
		}
	}
	if v := os.Getenv("RELAYAI_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("RELAYAI_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("RELAYAI_LOGGER_OUTPUT"); v != "" {
		cfg.Logger.Output = v
	}
	if v := os.Getenv("RELAYAI_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("RELAYAI_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("RELAYAI_TRACER_FILE"); v != "" {
		cfg.Tracer.File = v
	}
	if v := os.Getenv("RELAYAI_GATEWAY_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Gateway.Enabled = b
		}
	}
	if v := os.Getenv("RELAYAI_GATEWAY_ADDR"); v != "" {
		cfg.Gateway.Addr = v
	}
	if v := os.Getenv("RELAYAI_GATEWAY_TRUSTED_PROXIES"); v != "" {
		cfg.Gateway.TrustedProxies = splitAndTrim(v, ",")
	}

	for i := range cfg.LLM.Providers {
		p := &cfg.LLM.Providers[i]
		envKey := fmt.Sprintf("RELAYAI_LLM_PROVIDER_%s_API_KEY",
			strings.ToUpper(strings.ReplaceAll(p.Name, "-", "_")))
		if v := os.Getenv(envKey); v != "" {
			p.APIKey = v
		}
	}
	if v := os.Getenv("RELAYAI_API_KEY"); v != "" {
		if p := cfg.provider(cfg.LLM.DefaultProvider); p != nil {
			p.APIKey = v
		}
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		for i := range cfg.LLM.Providers {
			p := &cfg.LLM.Providers[i]
			if p.Type == "gemini" && p.APIKey == "" {
				p.APIKey = v
			}
		}
	}
}

func (c *Config) provider(name string) *ProviderConfig {
	for i := range c.LLM.Providers {
		if c.LLM.Providers[i].Name == name {
			return &c.LLM.Providers[i]
		}
	}
	return nil
}

// splitAndTrim splits s by sep and trims whitespace from each element.
func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

const encPrefix = "enc:"

// decryptSecrets finds "enc:..." values in provider API keys and decrypts them.
func decryptSecrets(cfg *Config, passphrase string) error {
	for i := range cfg.LLM.Providers {
		key := cfg.LLM.Providers[i].APIKey
		if !strings.HasPrefix(key, encPrefix) {
			continue
		}
		decrypted, err := DecryptValue(strings.TrimPrefix(key, encPrefix), passphrase)
		if err != nil {
			return fmt.Errorf("provider %s api_key: %w", cfg.LLM.Providers[i].Name, err)
		}
		cfg.LLM.Providers[i].APIKey = decrypted
	}
	return nil
}

// EncryptValue encrypts a plaintext value with AES-256-GCM using a passphrase.
// The result does not carry the "enc:" prefix.
func EncryptValue(plaintext, passphrase string) (string, error) {
	if passphrase == "" {
		return "", domain.NewDomainError("config.EncryptValue", domain.ErrEncryption, "empty passphrase")
	}
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	// Format: hex(salt) + ":" + hex(nonce+ciphertext)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(ciphertext), nil
}

// DecryptValue decrypts a value produced by EncryptValue.
func DecryptValue(encrypted, passphrase string) (string, error) {
	const op = "config.DecryptValue"
	parts := strings.SplitN(encrypted, ":", 2)
	if len(parts) != 2 {
		return "", domain.NewDomainError(op, domain.ErrDecryption, "invalid encrypted format")
	}

	salt, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", domain.NewDomainError(op, domain.ErrDecryption, "decode salt: "+err.Error())
	}
	data, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", domain.NewDomainError(op, domain.ErrDecryption, "decode ciphertext: "+err.Error())
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", domain.NewDomainError(op, domain.ErrDecryption, "ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", domain.NewDomainError(op, domain.ErrDecryption, "wrong passphrase or corrupted value")
	}
	return string(plaintext), nil
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// deriveKey uses Argon2id to derive a 32-byte key from passphrase + salt.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}

// validatePermissions checks the config file is not writable by others.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	if mode&0o077 > 0o044 {
		return domain.NewDomainError("config.Load", domain.ErrConfigLoad,
			fmt.Sprintf("%s has insecure permissions %o (want 0600 or 0644)", path, mode))
	}
	return nil
}
