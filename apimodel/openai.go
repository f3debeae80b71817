package apimodel

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/brachiolab/unillm/config"
	"github.com/brachiolab/unillm/imageutil"
	"github.com/brachiolab/unillm/llm"
)

// Endpoints of the providers that speak the OpenAI chat completions protocol.
const (
	openAIBaseURL = "https://api.openai.com/v1/"
	googleBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
	groqBaseURL   = "https://api.groq.com/openai/v1/"
)

var openAICompatible = map[string]struct {
	baseURL string
	envVar  string
}{
	config.ProviderOpenAI: {baseURL: openAIBaseURL, envVar: config.EnvOpenAIKey},
	config.ProviderGoogle: {baseURL: googleBaseURL, envVar: config.EnvGoogleKey},
	config.ProviderGroq:   {baseURL: groqBaseURL, envVar: config.EnvGroqKey},
}

// openAIBackend serves every provider reachable through an OpenAI-compatible
// chat completions endpoint.
type openAIBackend struct {
	client  openai.Client
	baseURL string
	logger  *slog.Logger
}

func newOpenAIBackend(provider string, llmCfg config.LLMConfig, httpClient *http.Client, logger *slog.Logger) (*openAIBackend, error) {
	compat := openAICompatible[provider]
	if llmCfg.APIKey == "" {
		return nil, missingKey(provider, compat.envVar)
	}

	baseURL := compat.baseURL
	if llmCfg.BaseURL != "" {
		baseURL = llmCfg.BaseURL
		logger.Debug("using overridden endpoint", "endpoint", baseURL)
	}

	// The base URL is always set explicitly so OPENAI_BASE_URL in the
	// environment cannot redirect a non-OpenAI provider.
	opts := []option.RequestOption{
		option.WithAPIKey(llmCfg.APIKey),
		option.WithBaseURL(baseURL),
		option.WithMaxRetries(0),
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}

	return &openAIBackend{
		client:  openai.NewClient(opts...),
		baseURL: baseURL,
		logger:  logger,
	}, nil
}

func (b *openAIBackend) chat(ctx context.Context, model string, prompt llm.Prompt, params llm.SamplingParams) (llm.Result, error) {
	messages, err := toOpenAIMessages(prompt)
	if err != nil {
		return llm.Result{}, err
	}

	req := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(model),
		Messages:    messages,
		Temperature: openai.Float(params.Temperature),
		MaxTokens:   openai.Int(int64(params.MaxTokens)),
		TopP:        openai.Float(params.TopP),
		N:           openai.Int(int64(params.N)),
	}

	if len(params.Stop) > 0 {
		req.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: params.Stop}
	}

	resp, err := b.client.Chat.Completions.New(ctx, req)
	if err != nil {
		return llm.Result{}, err
	}

	return fromOpenAIResponse(resp), nil
}

func (b *openAIBackend) close() error {
	return nil
}

func toOpenAIMessages(prompt llm.Prompt) ([]openai.ChatCompletionMessageParamUnion, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(prompt))
	for _, msg := range prompt {
		switch msg.Role {
		case llm.RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Text()))
		case llm.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Text()))
		case llm.RoleUser:
			if !msg.HasImages() {
				messages = append(messages, openai.UserMessage(msg.Text()))
				continue
			}
			parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(msg.Content))
			for _, part := range msg.Content {
				switch part.Type {
				case llm.PartText:
					parts = append(parts, openai.TextContentPart(part.Text))
				case llm.PartImage:
					parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
						URL: imageutil.DataURL(part.Image),
					}))
				}
			}
			messages = append(messages, openai.UserMessage(parts))
		default:
			return nil, unsupportedRole(msg.Role)
		}
	}
	return messages, nil
}

func fromOpenAIResponse(resp *openai.ChatCompletion) llm.Result {
	result := llm.Result{
		Outputs: make([]llm.Output, 0, len(resp.Choices)),
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
		},
	}
	for _, choice := range resp.Choices {
		out := llm.Output{
			Text:         choice.Message.Content,
			FinishReason: string(choice.FinishReason),
		}
		// Usage is reported per request, so it only maps onto a lone choice.
		if len(resp.Choices) == 1 {
			out.CompletionTokens = result.Usage.CompletionTokens
		}
		result.Outputs = append(result.Outputs, out)
	}
	return result
}
