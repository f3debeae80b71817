package apimodel

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/brachiolab/unillm/config"
	"github.com/brachiolab/unillm/llm"
)

// genaiBackend talks to the native Gemini API. The whole conversation goes
// out in one GenerateContent call so candidate_count reaches the wire.
type genaiBackend struct {
	client *genai.Client
	logger *slog.Logger
}

func newGenAIBackend(ctx context.Context, llmCfg config.LLMConfig, httpClient *http.Client, logger *slog.Logger) (*genaiBackend, error) {
	if llmCfg.APIKey == "" {
		return nil, missingKey(config.ProviderGoogleGenAI, config.EnvGoogleGenAIKey)
	}

	cc := &genai.ClientConfig{
		APIKey:     llmCfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if llmCfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = llmCfg.BaseURL
		logger.Debug("using overridden endpoint", "endpoint", llmCfg.BaseURL)
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &genaiBackend{client: client, logger: logger}, nil
}

func (b *genaiBackend) chat(ctx context.Context, model string, prompt llm.Prompt, params llm.SamplingParams) (llm.Result, error) {
	if b.client == nil {
		return llm.Result{}, fmt.Errorf("genai client not initialized")
	}

	system, contents, err := toGenAIContents(prompt)
	if err != nil {
		return llm.Result{}, err
	}
	if last := contents[len(contents)-1]; last.Role != genai.RoleUser {
		return llm.Result{}, fmt.Errorf("google-genai prompt must end with a user turn, got %q", last.Role)
	}

	resp, err := b.client.Models.GenerateContent(ctx, model, contents, toGenAIConfig(system, params))
	if err != nil {
		return llm.Result{}, err
	}
	return b.fromResponse(resp), nil
}

func toGenAIConfig(system *genai.Content, params llm.SamplingParams) *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		SystemInstruction: system,
		Temperature:       genai.Ptr(float32(params.Temperature)),
		TopP:              genai.Ptr(float32(params.TopP)),
		MaxOutputTokens:   int32(params.MaxTokens),
		CandidateCount:    int32(params.N),
		StopSequences:     params.Stop,
	}
}

func (b *genaiBackend) fromResponse(resp *genai.GenerateContentResponse) llm.Result {
	var result llm.Result
	if resp.UsageMetadata != nil {
		result.Usage = llm.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}

	result.Outputs = make([]llm.Output, 0, len(resp.Candidates))
	for _, cand := range resp.Candidates {
		out := llm.Output{
			CompletionTokens: int(cand.TokenCount),
			FinishReason:     string(cand.FinishReason),
		}
		if cand.Content != nil {
			out.Text = b.renderParts(cand.Content.Parts)
		}
		result.Outputs = append(result.Outputs, out)
	}
	if len(result.Outputs) == 1 && result.Outputs[0].CompletionTokens == 0 {
		result.Outputs[0].CompletionTokens = result.Usage.CompletionTokens
	}
	return result
}

// renderParts flattens a candidate to text. Code the model ran with the code
// execution tool is kept as fenced blocks next to its output.
func (b *genaiBackend) renderParts(parts []*genai.Part) string {
	var sb strings.Builder
	for _, part := range parts {
		switch {
		case part == nil:
		case part.ExecutableCode != nil:
			writeFenced(&sb, "", part.ExecutableCode.Code)
		case part.CodeExecutionResult != nil:
			writeFenced(&sb, "output", part.CodeExecutionResult.Output)
		case part.Thought:
			b.logger.Debug("ignoring thought part")
		case part.Text != "":
			sb.WriteString(part.Text)
		default:
			b.logger.Debug("ignoring non-text part")
		}
	}
	return sb.String()
}

func writeFenced(sb *strings.Builder, info, body string) {
	sb.WriteString("\n```" + info + "\n" + body + "\n```\n")
}

// close drops the client. The SDK holds no connections of its own.
func (b *genaiBackend) close() error {
	b.client = nil
	return nil
}

// toGenAIContents maps turns onto Gemini contents. Gemini calls the
// assistant "model" and takes system text as a separate instruction.
func toGenAIContents(prompt llm.Prompt) (*genai.Content, []*genai.Content, error) {
	var system *genai.Content
	contents := make([]*genai.Content, 0, len(prompt))

	for _, msg := range prompt {
		var role string
		switch msg.Role {
		case llm.RoleSystem:
			if system == nil {
				system = &genai.Content{}
			}
			system.Parts = append(system.Parts, genai.NewPartFromText(msg.Text()))
			continue
		case llm.RoleUser:
			role = genai.RoleUser
		case llm.RoleAssistant:
			role = genai.RoleModel
		default:
			return nil, nil, unsupportedRole(msg.Role)
		}

		content := &genai.Content{Role: role}
		for _, part := range msg.Content {
			switch part.Type {
			case llm.PartText:
				content.Parts = append(content.Parts, genai.NewPartFromText(part.Text))
			case llm.PartImage:
				content.Parts = append(content.Parts, genai.NewPartFromBytes(part.Image.Data, part.Image.MIMEType))
			}
		}
		contents = append(contents, content)
	}

	if len(contents) == 0 {
		return nil, nil, llm.ErrEmptyPrompt
	}
	return system, contents, nil
}
