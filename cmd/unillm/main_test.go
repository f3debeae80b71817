package main

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/brachiolab/unillm"
	"github.com/brachiolab/unillm/config"
	"github.com/brachiolab/unillm/llm"
)

// fakeModel records the last call and replies with canned outputs.
type fakeModel struct {
	name    string
	outputs []llm.Output
	err     error

	prompt llm.Prompt
	params llm.SamplingParams
	closed bool
}

func (f *fakeModel) Chat(_ context.Context, prompt llm.Prompt, params llm.SamplingParams, _ bool) ([]llm.Result, error) {
	f.prompt = prompt
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	return []llm.Result{{Outputs: f.outputs}}, nil
}

func (f *fakeModel) ModelName() string { return f.name }

func (f *fakeModel) Close() error {
	f.closed = true
	return nil
}

// withFakeNew swaps unillm.New for the duration of the test and isolates the
// config lookup from the user's environment.
func withFakeNew(t *testing.T, model *fakeModel) *unillm.Spec {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv(config.EnvOpenAIKey, "")
	t.Setenv(config.EnvAnthropicKey, "")

	var got unillm.Spec
	original := unillm.New
	unillm.New = func(_ context.Context, _ config.Config, spec unillm.Spec, _ ...unillm.Option) (llm.UniLLM, error) {
		got = spec
		return model, nil
	}
	t.Cleanup(func() { unillm.New = original })
	return &got
}

func TestRun_SingleOutput(t *testing.T) {
	model := &fakeModel{name: "gpt-4o", outputs: []llm.Output{{Text: "Hi there!"}}}
	spec := withFakeNew(t, model)

	var stdout, stderr bytes.Buffer
	err := run(context.Background(),
		[]string{"-p", "openai", "-m", "gpt-4o", "--temperature", "0", "--max-tokens", "100", "--stop", "END", "Hello,", "world"},
		nil, &stdout, &stderr)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if stdout.String() != "Hi there!\n" {
		t.Errorf("Expected output 'Hi there!', got %q", stdout.String())
	}
	if spec.Kind != unillm.KindAPI || spec.Provider != "openai" || spec.ModelName != "gpt-4o" {
		t.Errorf("Unexpected spec: %+v", *spec)
	}
	if len(model.prompt) != 1 || model.prompt[0].Text() != "Hello, world" {
		t.Errorf("Expected joined user prompt, got %+v", model.prompt)
	}
	if model.params.Temperature != 0 || model.params.MaxTokens != 100 || model.params.TopP != llm.DefaultTopP {
		t.Errorf("Unexpected params: %+v", model.params)
	}
	if len(model.params.Stop) != 1 || model.params.Stop[0] != "END" {
		t.Errorf("Expected stop [END], got %v", model.params.Stop)
	}
	if !model.closed {
		t.Error("Expected model to be closed")
	}
}

func TestRun_MultipleOutputs(t *testing.T) {
	model := &fakeModel{outputs: []llm.Output{
		{Text: "red", CompletionTokens: 1, FinishReason: "stop"},
		{Text: "blue", CompletionTokens: 2, FinishReason: "stop"},
	}}
	withFakeNew(t, model)

	var stdout bytes.Buffer
	if err := run(context.Background(), []string{"-n", "2", "Name a color."}, nil, &stdout, &bytes.Buffer{}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	expected := "--- output 1/2 (1 tokens, stop) ---\nred\n--- output 2/2 (2 tokens, stop) ---\nblue\n"
	if stdout.String() != expected {
		t.Errorf("Expected %q, got %q", expected, stdout.String())
	}
	if model.params.N != 2 {
		t.Errorf("Expected n=2, got %d", model.params.N)
	}
}

func TestRun_SystemPrompt(t *testing.T) {
	tests := []struct {
		name        string
		kind        string
		wantTurns   int
		wantSpecSys string
	}{
		{name: "api adds a system turn", kind: "api", wantTurns: 2},
		{name: "local adds a system turn", kind: "local", wantTurns: 2},
		{name: "prompted renders it itself", kind: "prompted", wantTurns: 1, wantSpecSys: "Be terse."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &fakeModel{outputs: []llm.Output{{Text: "ok"}}}
			spec := withFakeNew(t, model)

			args := []string{"--kind", tt.kind, "--system", "Be terse.", "Hi"}
			if err := run(context.Background(), args, nil, &bytes.Buffer{}, &bytes.Buffer{}); err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}

			if len(model.prompt) != tt.wantTurns {
				t.Fatalf("Expected %d turns, got %d", tt.wantTurns, len(model.prompt))
			}
			if tt.wantTurns == 2 && model.prompt[0].Role != llm.RoleSystem {
				t.Errorf("Expected leading system turn, got %s", model.prompt[0].Role)
			}
			if spec.SystemPrompt != tt.wantSpecSys {
				t.Errorf("Expected spec system prompt %q, got %q", tt.wantSpecSys, spec.SystemPrompt)
			}
		})
	}
}

func TestRun_PromptFromStdin(t *testing.T) {
	model := &fakeModel{outputs: []llm.Output{{Text: "ok"}}}
	withFakeNew(t, model)

	if err := run(context.Background(), nil, strings.NewReader("  from stdin\n"), &bytes.Buffer{}, &bytes.Buffer{}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if model.prompt[0].Text() != "from stdin" {
		t.Errorf("Expected prompt from stdin, got %q", model.prompt[0].Text())
	}
}

func TestRun_NoPrompt(t *testing.T) {
	withFakeNew(t, &fakeModel{})

	err := run(context.Background(), nil, strings.NewReader(""), &bytes.Buffer{}, &bytes.Buffer{})
	if err == nil || err.Error() != "no prompt given" {
		t.Errorf("Expected 'no prompt given', got %v", err)
	}
}

func TestRun_Image(t *testing.T) {
	model := &fakeModel{outputs: []llm.Output{{Text: "a green square"}}}
	withFakeNew(t, model)

	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	img.Set(0, 0, color.RGBA{G: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode fixture: %v", err)
	}
	path := filepath.Join(t.TempDir(), "square.png")
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		t.Fatalf("Failed to write fixture: %v", err)
	}

	if err := run(context.Background(), []string{"--image", path, "Describe"}, nil, &bytes.Buffer{}, &bytes.Buffer{}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	msg := model.prompt[0]
	if !msg.HasImages() || len(msg.Content) != 2 {
		t.Fatalf("Expected text and image parts, got %+v", msg.Content)
	}
	if msg.Content[1].Image.MIMEType != "image/jpeg" {
		t.Errorf("Expected image re-encoded as JPEG, got %s", msg.Content[1].Image.MIMEType)
	}
}

func TestRun_ChatError(t *testing.T) {
	model := &fakeModel{err: errors.New("rate limited")}
	withFakeNew(t, model)

	err := run(context.Background(), []string{"Hi"}, nil, &bytes.Buffer{}, &bytes.Buffer{})
	if err == nil || err.Error() != "rate limited" {
		t.Errorf("Expected vendor error unchanged, got %v", err)
	}
	if !model.closed {
		t.Error("Expected model to be closed after failure")
	}
}

func TestRun_InvalidKind(t *testing.T) {
	withFakeNew(t, &fakeModel{})

	err := run(context.Background(), []string{"--kind", "abstract", "Hi"}, nil, &bytes.Buffer{}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "unknown backend kind") {
		t.Errorf("Expected unknown kind error, got %v", err)
	}
}

func TestRun_ListProviders(t *testing.T) {
	var stdout bytes.Buffer
	if err := run(context.Background(), []string{"--list-providers"}, nil, &stdout, &bytes.Buffer{}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	got := strings.Fields(stdout.String())
	if strings.Join(got, ",") != "openai,anthropic,google,google-genai,bedrock,groq" {
		t.Errorf("Unexpected provider list: %v", got)
	}
}

func TestRun_CreateConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	var stdout bytes.Buffer
	if err := run(context.Background(), []string{"--create-config", "--config", path}, nil, &stdout, &bytes.Buffer{}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !strings.Contains(stdout.String(), path) {
		t.Errorf("Expected path in output, got %q", stdout.String())
	}

	cfg, err := config.LoadFromFile(path)
	if err != nil {
		t.Fatalf("Expected written config to load, got: %v", err)
	}
	if cfg.DefaultProvider != config.ProviderOpenAI {
		t.Errorf("Expected default provider openai, got %s", cfg.DefaultProvider)
	}

	err = run(context.Background(), []string{"--create-config", "--config", path}, nil, &bytes.Buffer{}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Errorf("Expected refusal to overwrite, got %v", err)
	}
}

func TestRun_ConfigFileAndTimeout(t *testing.T) {
	model := &fakeModel{outputs: []llm.Output{{Text: "ok"}}}
	withFakeNew(t, model)

	path := filepath.Join(t.TempDir(), "config.toml")
	content := "default_provider = \"anthropic\"\nrequest_timeout_seconds = 10\n\n[llms.anthropic]\napi_key = \"file-key\"\nmodel = \"claude-3-5-haiku-latest\"\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	var gotCfg config.Config
	unillm.New = func(_ context.Context, cfg config.Config, _ unillm.Spec, _ ...unillm.Option) (llm.UniLLM, error) {
		gotCfg = cfg
		return model, nil
	}

	if err := run(context.Background(), []string{"--config", path, "--timeout", "5", "Hi"}, nil, &bytes.Buffer{}, &bytes.Buffer{}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if gotCfg.DefaultProvider != "anthropic" {
		t.Errorf("Expected default provider from file, got %s", gotCfg.DefaultProvider)
	}
	if gotCfg.RequestTimeoutSeconds != 5 {
		t.Errorf("Expected --timeout to override file, got %d", gotCfg.RequestTimeoutSeconds)
	}
	if llmCfg, _ := gotCfg.GetLLMConfig("anthropic"); llmCfg.APIKey != "file-key" {
		t.Errorf("Expected API key from file, got %q", llmCfg.APIKey)
	}
}

func TestRun_Help(t *testing.T) {
	var stderr bytes.Buffer
	if err := run(context.Background(), []string{"--help"}, nil, &bytes.Buffer{}, &stderr); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !strings.Contains(stderr.String(), "--provider") || !strings.Contains(stderr.String(), "Usage:") {
		t.Errorf("Expected usage with flags, got %q", stderr.String())
	}
	// Only OpenAI-compatible and google-genai providers return n outputs.
	if !strings.Contains(stderr.String(), "-p openai -m gpt-4o-mini -n 3") {
		t.Errorf("Expected the sampling example to use a provider honouring -n, got %q", stderr.String())
	}
	if strings.Contains(stderr.String(), "-p anthropic -m claude-3-5-haiku-latest -n") {
		t.Error("Expected no -n example for anthropic, which returns a single output")
	}
}
