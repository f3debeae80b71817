package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.DefaultProvider != "openai" {
		t.Errorf("Expected default provider 'openai', got '%s'", cfg.DefaultProvider)
	}

	if cfg.RequestTimeoutSeconds != 60 {
		t.Errorf("Expected default timeout 60, got %d", cfg.RequestTimeoutSeconds)
	}

	expectedProviders := []string{"openai", "anthropic", "google", "google-genai", "bedrock", "groq", "ollama"}
	for _, provider := range expectedProviders {
		if _, exists := cfg.LLMs[provider]; !exists {
			t.Errorf("Expected provider '%s' to be configured by default", provider)
		}
	}

	if cfg.LLMs["bedrock"].Region != "us-east-1" {
		t.Errorf("Expected bedrock default region 'us-east-1', got '%s'", cfg.LLMs["bedrock"].Region)
	}

	if cfg.LLMs["ollama"].BaseURL != "http://localhost:11434" {
		t.Errorf("Expected ollama default URL 'http://localhost:11434', got '%s'", cfg.LLMs["ollama"].BaseURL)
	}
}

func TestConfig_GetLLMConfig(t *testing.T) {
	cfg := Config{
		LLMs: map[string]LLMConfig{
			"test-provider": {
				APIKey: "test-key",
				Model:  "test-model",
			},
		},
	}

	llmCfg, exists := cfg.GetLLMConfig("test-provider")
	if !exists {
		t.Error("Expected provider to exist")
	}
	if llmCfg.APIKey != "test-key" {
		t.Errorf("Expected API key 'test-key', got '%s'", llmCfg.APIKey)
	}
	if llmCfg.Model != "test-model" {
		t.Errorf("Expected model 'test-model', got '%s'", llmCfg.Model)
	}

	_, exists = cfg.GetLLMConfig("non-existent")
	if exists {
		t.Error("Expected provider to not exist")
	}
}

func TestConfig_RequestTimeout(t *testing.T) {
	tests := []struct {
		seconds int
		want    int
	}{
		{seconds: 0, want: 60},
		{seconds: -5, want: 60},
		{seconds: 15, want: 15},
	}

	for _, tt := range tests {
		cfg := Config{RequestTimeoutSeconds: tt.seconds}
		if got := cfg.RequestTimeout(); got != tt.want {
			t.Errorf("RequestTimeout() with %d seconds: expected %d, got %d", tt.seconds, tt.want, got)
		}
	}
}

func TestGetConfigFilePath_NoXDGConfigHome(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "")

	path, err := GetConfigFilePath()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if !strings.Contains(path, filepath.Join(".config", "unillm", "config.toml")) {
		t.Errorf("Expected path to contain '.config/unillm/config.toml', got '%s'", path)
	}
}

func TestGetConfigFilePath_WithXDGConfigHome(t *testing.T) {
	testDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", testDir)

	path, err := GetConfigFilePath()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	expected := filepath.Join(testDir, "unillm", "config.toml")
	if path != expected {
		t.Errorf("Expected path '%s', got '%s'", expected, path)
	}
}

func TestNewConfigFromMap(t *testing.T) {
	providerConfigs := map[string]LLMConfig{
		"anthropic": {
			APIKey: "test-anthropic-key",
			Model:  "claude-3-opus",
		},
		"ollama": {
			BaseURL: "http://localhost:11434",
			Model:   "gemma:2b",
		},
	}

	cfg := NewConfig("anthropic", 30, providerConfigs)

	if cfg.DefaultProvider != "anthropic" {
		t.Errorf("Expected default provider 'anthropic', got '%s'", cfg.DefaultProvider)
	}

	if cfg.RequestTimeoutSeconds != 30 {
		t.Errorf("Expected timeout 30, got %d", cfg.RequestTimeoutSeconds)
	}

	if len(cfg.LLMs) != 2 {
		t.Errorf("Expected 2 providers, got %d", len(cfg.LLMs))
	}

	anthropicCfg, exists := cfg.GetLLMConfig("anthropic")
	if !exists {
		t.Error("Expected anthropic provider to exist")
	}
	if anthropicCfg.APIKey != "test-anthropic-key" {
		t.Errorf("Expected API key 'test-anthropic-key', got '%s'", anthropicCfg.APIKey)
	}
}

func TestApplyLookup_OverlaysEnvironment(t *testing.T) {
	env := map[string]string{
		"OAI_API_KEY":          "test-openai-key",
		"ANTHROPIC_API_KEY":    "test-anthropic-key",
		"GOOGLE_API_KEY":       "test-google-key",
		"GOOGLE_GENAI_API_KEY": "test-google-genai-key",
		"AWS_REGION":           "eu-west-1",
		"OLLAMA_HOST":          "http://gpu-box:11434",
		"GROQ_API_KEY":         "",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	cfg := NewConfig("openai", 30, map[string]LLMConfig{
		"openai": {APIKey: "file-key", Model: "gpt-4o"},
		"groq":   {APIKey: "file-groq-key"},
	})
	cfg.applyLookup(lookup)

	tests := []struct {
		provider string
		want     LLMConfig
	}{
		{"openai", LLMConfig{APIKey: "test-openai-key", Model: "gpt-4o"}},
		{"anthropic", LLMConfig{APIKey: "test-anthropic-key"}},
		{"google", LLMConfig{APIKey: "test-google-key"}},
		{"google-genai", LLMConfig{APIKey: "test-google-genai-key"}},
		{"groq", LLMConfig{APIKey: "file-groq-key"}},
		{"bedrock", LLMConfig{Region: "eu-west-1"}},
		{"ollama", LLMConfig{BaseURL: "http://gpu-box:11434"}},
	}

	for _, tt := range tests {
		got, exists := cfg.GetLLMConfig(tt.provider)
		if !exists {
			t.Errorf("Expected provider '%s' to exist after overlay", tt.provider)
			continue
		}
		if got != tt.want {
			t.Errorf("Provider '%s': expected %+v, got %+v", tt.provider, tt.want, got)
		}
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("OAI_API_KEY", "env-openai-key")
	t.Setenv("AWS_REGION", "")

	cfg := FromEnv()

	if cfg.LLMs["openai"].APIKey != "env-openai-key" {
		t.Errorf("Expected openai key from environment, got '%s'", cfg.LLMs["openai"].APIKey)
	}
	if cfg.LLMs["bedrock"].Region != "us-east-1" {
		t.Errorf("Expected empty AWS_REGION to keep default region, got '%s'", cfg.LLMs["bedrock"].Region)
	}
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	content := "UNILLM_TEST_DOTENV_KEY=from-file\nUNILLM_TEST_DOTENV_SET=from-file\n"
	if err := os.WriteFile(envPath, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write env file: %v", err)
	}

	t.Setenv("UNILLM_TEST_DOTENV_SET", "from-process")
	// Registers cleanup for a variable the loader is about to set.
	t.Setenv("UNILLM_TEST_DOTENV_KEY", "")
	os.Unsetenv("UNILLM_TEST_DOTENV_KEY")

	if err := LoadEnv(envPath, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if got := os.Getenv("UNILLM_TEST_DOTENV_KEY"); got != "from-file" {
		t.Errorf("Expected value loaded from file, got '%s'", got)
	}
	if got := os.Getenv("UNILLM_TEST_DOTENV_SET"); got != "from-process" {
		t.Errorf("Expected process environment to win, got '%s'", got)
	}
}

func TestLoadFromFile(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "config.toml")

	configContent := `default_provider = "bedrock"
request_timeout_seconds = 45

[llms.bedrock]
region = "us-west-2"

[llms.anthropic]
api_key = "test-key"
model = "claude-3-opus"
`

	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.DefaultProvider != "bedrock" {
		t.Errorf("Expected default provider 'bedrock', got '%s'", cfg.DefaultProvider)
	}

	if cfg.RequestTimeoutSeconds != 45 {
		t.Errorf("Expected timeout 45, got %d", cfg.RequestTimeoutSeconds)
	}

	if cfg.LLMs["bedrock"].Region != "us-west-2" {
		t.Errorf("Expected bedrock region 'us-west-2', got '%s'", cfg.LLMs["bedrock"].Region)
	}

	// Sections absent from the file keep their defaults.
	if cfg.LLMs["ollama"].BaseURL != "http://localhost:11434" {
		t.Errorf("Expected default ollama URL to survive merge, got '%s'", cfg.LLMs["ollama"].BaseURL)
	}
}

func TestLoadFromFile_Errors(t *testing.T) {
	tempDir := t.TempDir()

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "invalid toml",
			content: "default_provider = ",
			wantErr: "failed to decode TOML config file",
		},
		{
			name:    "unknown key",
			content: "default_provider = \"openai\"\nbogus = 1\n",
			wantErr: "unknown configuration keys",
		},
		{
			name:    "default provider without section",
			content: "default_provider = \"mystery\"\n",
			wantErr: "default provider 'mystery' is specified but has no configuration section in [llms]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(tempDir, strings.ReplaceAll(tt.name, " ", "_")+".toml")
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatalf("Failed to write config: %v", err)
			}

			_, err := LoadFromFile(path)
			if err == nil {
				t.Fatal("Expected error but got none")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing '%s', got '%v'", tt.wantErr, err)
			}
		})
	}

	_, err := LoadFromFile(filepath.Join(tempDir, "absent.toml"))
	if err == nil || !strings.Contains(err.Error(), "configuration file not found") {
		t.Errorf("Expected not-found error, got %v", err)
	}
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := NewConfig("google", 20, map[string]LLMConfig{
		"google": {APIKey: "test-google-key", Model: "gemini-2.0-flash"},
	})

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Unexpected save error: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Expected saved file to exist: %v", err)
	}
	if info.Mode().Perm() != DefaultFilePerm {
		t.Errorf("Expected file permissions %o, got %o", DefaultFilePerm, info.Mode().Perm())
	}

	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("Unexpected load error: %v", err)
	}
	if loaded.LLMs["google"].Model != "gemini-2.0-flash" {
		t.Errorf("Expected model 'gemini-2.0-flash', got '%s'", loaded.LLMs["google"].Model)
	}
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("ANTHROPIC_API_KEY", "env-anthropic-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.DefaultProvider != "openai" {
		t.Errorf("Expected default provider 'openai', got '%s'", cfg.DefaultProvider)
	}
	if cfg.LLMs["anthropic"].APIKey != "env-anthropic-key" {
		t.Errorf("Expected anthropic key from environment, got '%s'", cfg.LLMs["anthropic"].APIKey)
	}
}
