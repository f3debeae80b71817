package local

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"text/template"

	"github.com/brachiolab/unillm/config"
	"github.com/brachiolab/unillm/llm"
)

// ChatMLTemplate is PromptedLLM's default prompt template.
const ChatMLTemplate = `{{- if .System}}<|im_start|>system
{{.System}}<|im_end|>
{{end}}
{{- range .Messages}}<|im_start|>{{.Role}}
{{.Content}}<|im_end|>
{{end -}}
<|im_start|>assistant
`

// chatMLStop ends a ChatML assistant turn.
const chatMLStop = "<|im_end|>"

// PromptData is what a PromptedLLM template is executed with.
type PromptData struct {
	// System is the fixed system prompt, empty when none was configured.
	System   string
	Messages []PromptMessage
}

// PromptMessage is one conversation turn as seen by a template.
type PromptMessage struct {
	Role    string
	Content string
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Raw     bool           `json:"raw"`
	Stream  bool           `json:"stream"`
	Images  []string       `json:"images,omitempty"`
	Options runtimeOptions `json:"options"`
}

type generateResponse struct {
	runtimeStats
	Response string `json:"response"`
}

// PromptedLLM runs an open-weight model through the runtime's raw generate
// endpoint, formatting the conversation with its own template.
type PromptedLLM struct {
	client       *client
	modelName    string
	systemPrompt string
	tmpl         *template.Template
	chatML       bool
	logger       *slog.Logger
}

var _ llm.UniLLM = (*PromptedLLM)(nil)

// NewPromptedLLM creates a PromptedLLM for modelName on the runtime
// configured under [llms.ollama]. The template defaults to ChatMLTemplate.
func NewPromptedLLM(cfg config.Config, modelName string, opts ...Option) (*PromptedLLM, error) {
	o := buildOptions(opts)
	c, err := newClient(cfg, o)
	if err != nil {
		return nil, err
	}

	src := o.template
	if src == "" {
		src = ChatMLTemplate
	}
	tmpl, err := template.New("prompt").Parse(src)
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt template: %w", err)
	}

	modelName = resolveModel(cfg, modelName)
	logger := o.logger.With("backend", "prompted", "model", modelName)
	logger.Debug("using local runtime", "endpoint", c.baseURL, "system_prompt", o.systemPrompt != "")

	return &PromptedLLM{
		client:       c,
		modelName:    modelName,
		systemPrompt: o.systemPrompt,
		tmpl:         tmpl,
		chatML:       src == ChatMLTemplate,
		logger:       logger,
	}, nil
}

// ModelName returns the runtime model tag.
func (m *PromptedLLM) ModelName() string {
	return m.modelName
}

// Render formats prompt with the configured template and system prompt.
func (m *PromptedLLM) Render(prompt llm.Prompt) (string, error) {
	data := PromptData{System: m.systemPrompt}
	for _, msg := range prompt {
		switch msg.Role {
		case llm.RoleSystem, llm.RoleUser, llm.RoleAssistant:
		default:
			return "", fmt.Errorf("unsupported message role %q", msg.Role)
		}
		data.Messages = append(data.Messages, PromptMessage{Role: msg.Role, Content: msg.Text()})
	}

	var sb strings.Builder
	if err := m.tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("failed to render prompt template: %w", err)
	}
	return sb.String(), nil
}

// Chat renders prompt and sends it to the runtime once per requested output.
func (m *PromptedLLM) Chat(ctx context.Context, prompt llm.Prompt, params llm.SamplingParams, showProgress bool) ([]llm.Result, error) {
	if len(prompt) == 0 {
		return nil, llm.ErrEmptyPrompt
	}
	params = params.WithDefaults()

	text, err := m.Render(prompt)
	if err != nil {
		return nil, err
	}

	opts := toRuntimeOptions(params)
	if m.chatML && !slices.Contains(opts.Stop, chatMLStop) {
		opts.Stop = append(opts.Stop, chatMLStop)
	}

	req := generateRequest{
		Model:   m.modelName,
		Prompt:  text,
		Raw:     true,
		Images:  promptImages(prompt),
		Options: opts,
	}

	m.logger.Debug("sending generate request", "prompt_chars", len(text), "n", params.N)
	return sample(ctx, params, showProgress, "prompted/"+m.modelName, func(ctx context.Context) (string, runtimeStats, error) {
		var resp generateResponse
		if err := m.client.post(ctx, generateAPIPath, req, &resp); err != nil {
			return "", runtimeStats{}, err
		}
		return resp.Response, resp.runtimeStats, nil
	})
}

// Close is a no-op; the runtime holds no per-client state.
func (m *PromptedLLM) Close() error {
	return nil
}

func promptImages(prompt llm.Prompt) []string {
	var images []string
	for _, msg := range prompt {
		for _, part := range msg.Content {
			if part.Type == llm.PartImage {
				images = append(images, base64.StdEncoding.EncodeToString(part.Image.Data))
			}
		}
	}
	return images
}
