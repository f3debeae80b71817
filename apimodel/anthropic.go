package apimodel

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"

	"github.com/brachiolab/unillm/config"
	"github.com/brachiolab/unillm/llm"
)

const anthropicBaseURL = "https://api.anthropic.com/"

// anthropicBackend talks to the Anthropic Messages API. The API has no
// notion of multiple completions, so each call yields one output.
type anthropicBackend struct {
	client  anthropic.Client
	baseURL string
	logger  *slog.Logger
}

func newAnthropicBackend(llmCfg config.LLMConfig, httpClient *http.Client, logger *slog.Logger) (*anthropicBackend, error) {
	if llmCfg.APIKey == "" {
		return nil, missingKey(config.ProviderAnthropic, config.EnvAnthropicKey)
	}

	baseURL := anthropicBaseURL
	if llmCfg.BaseURL != "" {
		baseURL = llmCfg.BaseURL
		logger.Debug("using overridden endpoint", "endpoint", baseURL)
	}

	opts := []anthropicoption.RequestOption{
		anthropicoption.WithAPIKey(llmCfg.APIKey),
		anthropicoption.WithBaseURL(baseURL),
		anthropicoption.WithMaxRetries(0),
	}
	if httpClient != nil {
		opts = append(opts, anthropicoption.WithHTTPClient(httpClient))
	}

	return &anthropicBackend{
		client:  anthropic.NewClient(opts...),
		baseURL: baseURL,
		logger:  logger,
	}, nil
}

func (b *anthropicBackend) chat(ctx context.Context, model string, prompt llm.Prompt, params llm.SamplingParams) (llm.Result, error) {
	system, messages, err := toAnthropicMessages(prompt)
	if err != nil {
		return llm.Result{}, err
	}
	if params.N > 1 {
		b.logger.Debug("anthropic returns a single completion per call; ignoring n", "n", params.N)
	}

	req := anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   int64(params.MaxTokens),
		Messages:    messages,
		Temperature: anthropic.Float(params.Temperature),
	}
	if topP, ok := explicitTopP(params); ok {
		req.TopP = anthropic.Float(topP)
	}
	if len(system) > 0 {
		req.System = system
	}
	if len(params.Stop) > 0 {
		req.StopSequences = params.Stop
	}

	resp, err := b.client.Messages.New(ctx, req)
	if err != nil {
		return llm.Result{}, err
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return llm.Result{
		Outputs: []llm.Output{{
			Text:             text.String(),
			CompletionTokens: int(resp.Usage.OutputTokens),
			FinishReason:     string(resp.StopReason),
		}},
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
		},
	}, nil
}

func (b *anthropicBackend) close() error {
	return nil
}

// toAnthropicMessages lifts system turns into the request's system blocks,
// since the Messages API only accepts user and assistant turns.
func toAnthropicMessages(prompt llm.Prompt) ([]anthropic.TextBlockParam, []anthropic.MessageParam, error) {
	var system []anthropic.TextBlockParam
	messages := make([]anthropic.MessageParam, 0, len(prompt))

	for _, msg := range prompt {
		switch msg.Role {
		case llm.RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: msg.Text()})
		case llm.RoleUser:
			messages = append(messages, anthropic.NewUserMessage(toAnthropicBlocks(msg)...))
		case llm.RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(toAnthropicBlocks(msg)...))
		default:
			return nil, nil, unsupportedRole(msg.Role)
		}
	}
	return system, messages, nil
}

func toAnthropicBlocks(msg llm.Message) []anthropic.ContentBlockParamUnion {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Content))
	for _, part := range msg.Content {
		switch part.Type {
		case llm.PartText:
			blocks = append(blocks, anthropic.NewTextBlock(part.Text))
		case llm.PartImage:
			blocks = append(blocks, anthropic.NewImageBlockBase64(
				part.Image.MIMEType,
				base64.StdEncoding.EncodeToString(part.Image.Data),
			))
		}
	}
	return blocks
}
