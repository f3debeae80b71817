package apimodel

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/brachiolab/unillm/config"
	"github.com/brachiolab/unillm/llm"
)

// bedrockAnthropicVersion pins the Anthropic Messages body format on Bedrock.
const bedrockAnthropicVersion = "bedrock-2023-05-31"

// bedrockRequest is the InvokeModel body for Anthropic models on Bedrock.
type bedrockRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	Messages         []bedrockMessage `json:"messages"`
	System           string           `json:"system,omitempty"`
	Temperature      float64          `json:"temperature"`
	TopP             *float64         `json:"top_p,omitempty"`
	StopSequences    []string         `json:"stop_sequences,omitempty"`
}

type bedrockMessage struct {
	Role    string         `json:"role"`
	Content []bedrockBlock `json:"content"`
}

// bedrockBlock is a text or image content block, selected by Type.
type bedrockBlock struct {
	Type   string              `json:"type"`
	Text   string              `json:"text,omitempty"`
	Source *bedrockImageSource `json:"source,omitempty"`
}

type bedrockImageSource struct {
	Type      string `json:"type"` // always "base64"
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type bedrockResponse struct {
	ID      string `json:"id"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// bedrockBackend invokes a model ID or ARN directly through the Bedrock
// runtime. Credentials come from the AWS default chain.
type bedrockBackend struct {
	client *bedrockruntime.Client
	region string
	logger *slog.Logger
}

func newBedrockBackend(ctx context.Context, llmCfg config.LLMConfig, creds aws.CredentialsProvider, logger *slog.Logger) (*bedrockBackend, error) {
	region := llmCfg.Region
	if region == "" {
		region = config.DefaultBedrockRegion
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if creds != nil {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(creds))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	client := bedrockruntime.NewFromConfig(awsCfg, func(o *bedrockruntime.Options) {
		o.Retryer = aws.NopRetryer{}
		if llmCfg.BaseURL != "" {
			o.BaseEndpoint = aws.String(llmCfg.BaseURL)
		}
	})
	logger.Debug("created bedrock runtime client", "region", region)

	return &bedrockBackend{client: client, region: region, logger: logger}, nil
}

func (b *bedrockBackend) chat(ctx context.Context, model string, prompt llm.Prompt, params llm.SamplingParams) (llm.Result, error) {
	body, err := toBedrockRequest(prompt, params)
	if err != nil {
		return llm.Result{}, err
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return llm.Result{}, fmt.Errorf("failed to marshal bedrock request body: %w", err)
	}

	out, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(model),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        payload,
	})
	if err != nil {
		return llm.Result{}, err
	}

	var resp bedrockResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return llm.Result{}, fmt.Errorf("failed to unmarshal bedrock response body: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "" || block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return llm.Result{
		Outputs: []llm.Output{{
			Text:             text.String(),
			CompletionTokens: resp.Usage.OutputTokens,
			FinishReason:     resp.StopReason,
		}},
		Usage: llm.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
		},
	}, nil
}

func (b *bedrockBackend) close() error {
	return nil
}

func toBedrockRequest(prompt llm.Prompt, params llm.SamplingParams) (bedrockRequest, error) {
	req := bedrockRequest{
		AnthropicVersion: bedrockAnthropicVersion,
		MaxTokens:        params.MaxTokens,
		Temperature:      params.Temperature,
		StopSequences:    params.Stop,
	}
	if topP, ok := explicitTopP(params); ok {
		req.TopP = &topP
	}

	var system []string
	for _, msg := range prompt {
		switch msg.Role {
		case llm.RoleSystem:
			system = append(system, msg.Text())
			continue
		case llm.RoleUser, llm.RoleAssistant:
		default:
			return bedrockRequest{}, unsupportedRole(msg.Role)
		}

		m := bedrockMessage{Role: msg.Role, Content: make([]bedrockBlock, 0, len(msg.Content))}
		for _, part := range msg.Content {
			switch part.Type {
			case llm.PartText:
				m.Content = append(m.Content, bedrockBlock{Type: "text", Text: part.Text})
			case llm.PartImage:
				m.Content = append(m.Content, bedrockBlock{
					Type: "image",
					Source: &bedrockImageSource{
						Type:      "base64",
						MediaType: part.Image.MIMEType,
						Data:      base64.StdEncoding.EncodeToString(part.Image.Data),
					},
				})
			}
		}
		req.Messages = append(req.Messages, m)
	}
	req.System = strings.Join(system, "\n\n")
	return req, nil
}
