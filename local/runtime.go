// Package local provides unillm backends for open-weight models served by a
// local Ollama-compatible runtime.
//
// OurLLM sends the conversation to the runtime's chat endpoint and lets the
// model's own template format it. PromptedLLM renders the conversation itself
// through a chat prompt template and sends the raw text to the generate
// endpoint.
//
// The runtime produces one completion per request, so both backends issue n
// sequential requests for n outputs.
package local

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/brachiolab/unillm/config"
	"github.com/brachiolab/unillm/internal/progress"
	"github.com/brachiolab/unillm/llm"
)

const (
	defaultModel    = "gemma:2b"
	chatAPIPath     = "/api/chat"
	generateAPIPath = "/api/generate"
)

type options struct {
	logger       *slog.Logger
	httpClient   *http.Client
	systemPrompt string
	template     string
}

// Option customizes NewOurLLM and NewPromptedLLM.
type Option func(*options)

// WithLogger sets the logger used for debug output. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithHTTPClient replaces the HTTP client. Its own timeout is kept.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithSystemPrompt sets a system prompt PromptedLLM renders ahead of every
// conversation. Ignored by OurLLM.
func WithSystemPrompt(prompt string) Option {
	return func(o *options) { o.systemPrompt = prompt }
}

// WithTemplate replaces PromptedLLM's ChatML template with a text/template
// source. See PromptData for the fields available to it. Ignored by OurLLM.
func WithTemplate(src string) Option {
	return func(o *options) { o.template = src }
}

// runtimeOptions are the sampling options understood by the runtime.
type runtimeOptions struct {
	Temperature float64  `json:"temperature"`
	TopP        float64  `json:"top_p"`
	NumPredict  int      `json:"num_predict"`
	Stop        []string `json:"stop,omitempty"`
}

func toRuntimeOptions(params llm.SamplingParams) runtimeOptions {
	return runtimeOptions{
		Temperature: params.Temperature,
		TopP:        params.TopP,
		NumPredict:  params.MaxTokens,
		Stop:        slices.Clone(params.Stop),
	}
}

// runtimeStats are the completion fields shared by chat and generate responses.
type runtimeStats struct {
	Model           string    `json:"model"`
	CreatedAt       time.Time `json:"created_at"`
	Done            bool      `json:"done"`
	DoneReason      string    `json:"done_reason,omitempty"`
	PromptEvalCount int       `json:"prompt_eval_count,omitempty"`
	EvalCount       int       `json:"eval_count,omitempty"`
	Error           string    `json:"error,omitempty"`
}

func (s *runtimeStats) stats() *runtimeStats { return s }

// client talks to the runtime's HTTP API.
type client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

func newClient(cfg config.Config, o options) (*client, error) {
	llmCfg, _ := cfg.GetLLMConfig(config.ProviderOllama)
	baseURL := llmCfg.BaseURL
	if baseURL == "" {
		baseURL = config.DefaultOllamaURL
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid runtime base URL '%s': %w", baseURL, err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("runtime base URL scheme must be http or https, got '%s'", parsedURL.Scheme)
	}

	httpClient := o.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: time.Duration(cfg.RequestTimeout()) * time.Second}
	}

	return &client{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(parsedURL.String(), "/"),
		logger:     o.logger,
	}, nil
}

// post sends payload as JSON to path and decodes the response into out.
// out must embed runtimeStats so runtime-reported errors can be surfaced.
func (c *client) post(ctx context.Context, path string, payload any, out interface{ stats() *runtimeStats }) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal runtime request payload: %w", err)
	}

	requestURL := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, bytes.NewReader(payloadBytes))
	if err != nil {
		return fmt.Errorf("failed to create runtime request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		switch {
		case errors.Is(ctx.Err(), context.Canceled):
			return fmt.Errorf("runtime request canceled: %w", ctx.Err())
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			return fmt.Errorf("runtime request timed out: %w", ctx.Err())
		}
		return fmt.Errorf("failed to send request to runtime at %s: %w", requestURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read runtime response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp runtimeStats
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			return fmt.Errorf("runtime error (status %d): %s", resp.StatusCode, errResp.Error)
		}
		return fmt.Errorf("runtime request failed with status %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal runtime response: %w", err)
	}
	if msg := out.stats().Error; msg != "" {
		return fmt.Errorf("runtime error: %s", msg)
	}
	return nil
}

// sample runs one request per requested output and gathers them into a
// single Result. The first failure aborts the call.
func sample(ctx context.Context, params llm.SamplingParams, showProgress bool, label string, once func(ctx context.Context) (string, runtimeStats, error)) ([]llm.Result, error) {
	result, err := progress.Run(showProgress, label, func() (llm.Result, error) {
		var result llm.Result
		result.Outputs = make([]llm.Output, 0, params.N)
		for i := 0; i < params.N; i++ {
			text, stats, err := once(ctx)
			if err != nil {
				return llm.Result{}, err
			}
			if i == 0 {
				result.Usage.PromptTokens = stats.PromptEvalCount
			}
			result.Usage.CompletionTokens += stats.EvalCount
			result.Outputs = append(result.Outputs, llm.Output{
				Text:             text,
				CompletionTokens: stats.EvalCount,
				FinishReason:     stats.DoneReason,
			})
		}
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	return []llm.Result{result}, nil
}

func resolveModel(cfg config.Config, modelName string) string {
	if modelName != "" {
		return modelName
	}
	if llmCfg, ok := cfg.GetLLMConfig(config.ProviderOllama); ok && llmCfg.Model != "" {
		return llmCfg.Model
	}
	return defaultModel
}

func buildOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}
