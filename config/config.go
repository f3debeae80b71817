// Package config handles loading and managing unillm configuration.
//
// Backends never read the environment themselves: a Config is built once at
// process startup, from a TOML file, the environment, or both, and passed to
// every constructor.
//
// Example TOML configuration:
//
//	default_provider = "anthropic"
//	request_timeout_seconds = 60
//
//	[llms.anthropic]
//	api_key = "your-anthropic-api-key"
//	model = "claude-3-5-sonnet-latest"
//
//	[llms.bedrock]
//	region = "us-west-2"
//
//	[llms.ollama]
//	base_url = "http://localhost:11434"
//
// Environment variables override file values:
//
//	OAI_API_KEY, ANTHROPIC_API_KEY, GOOGLE_API_KEY, GOOGLE_GENAI_API_KEY,
//	GROQ_API_KEY, AWS_REGION (bedrock), OLLAMA_HOST (local runtime)
//
// Example programmatic usage:
//
//	cfg := config.NewConfig("openai", 30, map[string]config.LLMConfig{
//		"openai": {APIKey: "key"},
//	})
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	appName         = "unillm"
	configFileName  = "config.toml"
	DefaultDirPerm  = 0750 // rwxr-x---
	DefaultFilePerm = 0600 // rw------- (contains secrets)

	// DefaultRequestTimeoutSeconds applies when RequestTimeoutSeconds is unset.
	DefaultRequestTimeoutSeconds = 60
	// DefaultBedrockRegion is the region Bedrock is called in unless overridden.
	DefaultBedrockRegion = "us-east-1"
	// DefaultOllamaURL is where the local model runtime is expected.
	DefaultOllamaURL = "http://localhost:11434"
)

// Provider tags, used both as keys of Config.LLMs and as APIModel provider names.
const (
	ProviderOpenAI      = "openai"
	ProviderAnthropic   = "anthropic"
	ProviderGoogle      = "google"
	ProviderGoogleGenAI = "google-genai"
	ProviderBedrock     = "bedrock"
	ProviderGroq        = "groq"
	ProviderOllama      = "ollama"
)

// Environment variable names holding provider credentials and endpoints.
const (
	EnvOpenAIKey      = "OAI_API_KEY"
	EnvAnthropicKey   = "ANTHROPIC_API_KEY"
	EnvGoogleKey      = "GOOGLE_API_KEY"
	EnvGoogleGenAIKey = "GOOGLE_GENAI_API_KEY"
	EnvGroqKey        = "GROQ_API_KEY"
	EnvAWSRegion      = "AWS_REGION"
	EnvOllamaHost     = "OLLAMA_HOST"
)

// Config holds the application's configuration.
type Config struct {
	// DefaultProvider is used by callers that do not name a provider
	// explicitly. Must match a key in LLMs.
	DefaultProvider string `toml:"default_provider"`

	// RequestTimeoutSeconds bounds each Chat call. If <= 0,
	// DefaultRequestTimeoutSeconds is used.
	RequestTimeoutSeconds int `toml:"request_timeout_seconds"`

	// LLMs contains provider-specific configurations keyed by provider name.
	LLMs map[string]LLMConfig `toml:"llms"`
}

// LLMConfig holds configuration specific to one provider.
//
// Hosted providers require APIKey (bedrock uses the AWS credential chain
// instead). BaseURL overrides the provider's default endpoint. Region only
// applies to bedrock.
type LLMConfig struct {
	BaseURL string `toml:"base_url,omitempty"`
	APIKey  string `toml:"api_key,omitempty"`
	Model   string `toml:"model,omitempty"`
	Region  string `toml:"region,omitempty"`
}

// envBindings maps each provider to the variables that populate it.
var envBindings = []struct {
	provider string
	apiKey   string
	baseURL  string
	region   string
}{
	{provider: ProviderOpenAI, apiKey: EnvOpenAIKey},
	{provider: ProviderAnthropic, apiKey: EnvAnthropicKey},
	{provider: ProviderGoogle, apiKey: EnvGoogleKey},
	{provider: ProviderGoogleGenAI, apiKey: EnvGoogleGenAIKey},
	{provider: ProviderGroq, apiKey: EnvGroqKey},
	{provider: ProviderBedrock, region: EnvAWSRegion},
	{provider: ProviderOllama, baseURL: EnvOllamaHost},
}

// Default returns the built-in configuration: every provider present with no
// credentials, bedrock in DefaultBedrockRegion and the local runtime at
// DefaultOllamaURL.
func Default() Config {
	return Config{
		DefaultProvider:       ProviderOpenAI,
		RequestTimeoutSeconds: DefaultRequestTimeoutSeconds,
		LLMs: map[string]LLMConfig{
			ProviderOpenAI:      {},
			ProviderAnthropic:   {},
			ProviderGoogle:      {},
			ProviderGoogleGenAI: {},
			ProviderGroq:        {},
			ProviderBedrock:     {Region: DefaultBedrockRegion},
			ProviderOllama:      {BaseURL: DefaultOllamaURL},
		},
	}
}

// GetConfigFilePath determines the configuration file path following the XDG
// Base Directory Specification:
//   - If XDG_CONFIG_HOME is set, uses $XDG_CONFIG_HOME/unillm/config.toml
//   - Otherwise, uses $HOME/.config/unillm/config.toml
//
// The returned path may not exist.
func GetConfigFilePath() (string, error) {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("could not determine user home directory: %w", err)
		}
		configHome = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configHome, appName, configFileName), nil
}

// Load reads the configuration file at the XDG path when it exists, falls
// back to defaults when it does not, and overlays the environment.
func Load() (Config, error) {
	cfgPath, err := GetConfigFilePath()
	if err != nil {
		return Config{}, fmt.Errorf("failed to determine config path: %w", err)
	}

	_, err = os.Stat(cfgPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := Default()
			cfg.ApplyEnv()
			return cfg, nil
		}
		return Config{}, fmt.Errorf("failed to access config file %s: %w", cfgPath, err)
	}

	cfg, err := LoadFromFile(cfgPath)
	if err != nil {
		return Config{}, err
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// LoadEnv loads KEY=value pairs from the given .env files (".env" when none
// are given) into the process environment. Variables already set win.
// Missing files are not an error.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if _, err := os.Stat(file); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", file, err)
		}
	}
	return nil
}

// FromEnv builds a Config from defaults and the process environment only.
func FromEnv() Config {
	cfg := Default()
	cfg.ApplyEnv()
	return cfg
}

// ApplyEnv overlays non-empty provider variables from the environment onto c.
func (c *Config) ApplyEnv() {
	c.applyLookup(os.LookupEnv)
}

func (c *Config) applyLookup(lookup func(string) (string, bool)) {
	if c.LLMs == nil {
		c.LLMs = make(map[string]LLMConfig)
	}
	for _, b := range envBindings {
		llmCfg := c.LLMs[b.provider]
		changed := false
		if v, ok := lookupNonEmpty(lookup, b.apiKey); ok {
			llmCfg.APIKey = v
			changed = true
		}
		if v, ok := lookupNonEmpty(lookup, b.baseURL); ok {
			llmCfg.BaseURL = v
			changed = true
		}
		if v, ok := lookupNonEmpty(lookup, b.region); ok {
			llmCfg.Region = v
			changed = true
		}
		if _, exists := c.LLMs[b.provider]; exists || changed {
			c.LLMs[b.provider] = llmCfg
		}
	}
}

func lookupNonEmpty(lookup func(string) (string, bool), key string) (string, bool) {
	if key == "" {
		return "", false
	}
	v, ok := lookup(key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// GetLLMConfig retrieves the configuration for a given provider.
func (c *Config) GetLLMConfig(provider string) (LLMConfig, bool) {
	llmCfg, exists := c.LLMs[provider]
	return llmCfg, exists
}

// RequestTimeout returns the configured per-call timeout in seconds, falling
// back to DefaultRequestTimeoutSeconds when unset or invalid.
func (c *Config) RequestTimeout() int {
	if c.RequestTimeoutSeconds <= 0 {
		return DefaultRequestTimeoutSeconds
	}
	return c.RequestTimeoutSeconds
}

// NewConfig creates a configuration programmatically, without file I/O or
// environment access.
//
//	cfg := NewConfig("anthropic", 30, map[string]LLMConfig{
//		"anthropic": {APIKey: "your-key"},
//		"ollama":    {BaseURL: "http://localhost:11434"},
//	})
func NewConfig(defaultProvider string, timeoutSeconds int, providers map[string]LLMConfig) Config {
	return Config{
		DefaultProvider:       defaultProvider,
		RequestTimeoutSeconds: timeoutSeconds,
		LLMs:                  providers,
	}
}

// LoadFromFile loads configuration from a specific file path, merged over
// the defaults. It does not consult the environment; call ApplyEnv for that.
//
// Returns an error if the file doesn't exist, contains invalid TOML, or names
// a default provider with no [llms] section.
func LoadFromFile(filePath string) (Config, error) {
	cfg := Default()

	_, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("configuration file not found at %s", filePath)
		}
		return Config{}, fmt.Errorf("failed to access config file %s: %w", filePath, err)
	}

	meta, err := toml.DecodeFile(filePath, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("failed to decode TOML config file %s: %w", filePath, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("unknown configuration keys in %s: %v", filePath, undecoded)
	}

	if _, exists := cfg.LLMs[cfg.DefaultProvider]; !exists {
		return Config{}, fmt.Errorf("default provider '%s' is specified but has no configuration section in [llms]", cfg.DefaultProvider)
	}

	return cfg, nil
}

// Save writes c as TOML to filePath, creating parent directories. The file is
// written with DefaultFilePerm since it may contain API keys.
func Save(c Config, filePath string) error {
	if err := os.MkdirAll(filepath.Dir(filePath), DefaultDirPerm); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", filepath.Dir(filePath), err)
	}

	file, err := os.OpenFile(filePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, DefaultFilePerm)
	if err != nil {
		return fmt.Errorf("failed to create config file %s: %w", filePath, err)
	}
	defer file.Close()

	if err := toml.NewEncoder(file).Encode(c); err != nil {
		return fmt.Errorf("failed to encode configuration to TOML: %w", err)
	}
	return nil
}
