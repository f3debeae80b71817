package local

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"

	"github.com/brachiolab/unillm/config"
	"github.com/brachiolab/unillm/llm"
)

type chatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  runtimeOptions `json:"options"`
}

type chatResponse struct {
	runtimeStats
	Message chatMessage `json:"message"`
}

// OurLLM runs an open-weight model through the runtime's chat endpoint,
// leaving prompt formatting to the model's own chat template.
type OurLLM struct {
	client    *client
	modelName string
	logger    *slog.Logger
}

var _ llm.UniLLM = (*OurLLM)(nil)

// NewOurLLM creates an OurLLM for modelName on the runtime configured under
// [llms.ollama]. An empty modelName selects the configured model.
func NewOurLLM(cfg config.Config, modelName string, opts ...Option) (*OurLLM, error) {
	o := buildOptions(opts)
	c, err := newClient(cfg, o)
	if err != nil {
		return nil, err
	}

	modelName = resolveModel(cfg, modelName)
	logger := o.logger.With("backend", "ourllm", "model", modelName)
	logger.Debug("using local runtime", "endpoint", c.baseURL)

	return &OurLLM{client: c, modelName: modelName, logger: logger}, nil
}

// ModelName returns the runtime model tag.
func (m *OurLLM) ModelName() string {
	return m.modelName
}

// Chat sends prompt to the runtime once per requested output.
func (m *OurLLM) Chat(ctx context.Context, prompt llm.Prompt, params llm.SamplingParams, showProgress bool) ([]llm.Result, error) {
	if len(prompt) == 0 {
		return nil, llm.ErrEmptyPrompt
	}
	params = params.WithDefaults()

	messages, err := toChatMessages(prompt)
	if err != nil {
		return nil, err
	}
	req := chatRequest{
		Model:    m.modelName,
		Messages: messages,
		Options:  toRuntimeOptions(params),
	}

	m.logger.Debug("sending chat request", "messages", len(messages), "n", params.N)
	return sample(ctx, params, showProgress, "local/"+m.modelName, func(ctx context.Context) (string, runtimeStats, error) {
		var resp chatResponse
		if err := m.client.post(ctx, chatAPIPath, req, &resp); err != nil {
			return "", runtimeStats{}, err
		}
		return resp.Message.Content, resp.runtimeStats, nil
	})
}

// Close is a no-op; the runtime holds no per-client state.
func (m *OurLLM) Close() error {
	return nil
}

func toChatMessages(prompt llm.Prompt) ([]chatMessage, error) {
	messages := make([]chatMessage, 0, len(prompt))
	for _, msg := range prompt {
		switch msg.Role {
		case llm.RoleSystem, llm.RoleUser, llm.RoleAssistant:
		default:
			return nil, fmt.Errorf("unsupported message role %q", msg.Role)
		}

		cm := chatMessage{Role: msg.Role, Content: msg.Text()}
		for _, part := range msg.Content {
			if part.Type == llm.PartImage {
				cm.Images = append(cm.Images, base64.StdEncoding.EncodeToString(part.Image.Data))
			}
		}
		messages = append(messages, cm)
	}
	return messages, nil
}
