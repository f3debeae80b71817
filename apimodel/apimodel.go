// Package apimodel implements the hosted-API backend of unillm.
//
// A Model is bound to one provider for its lifetime. Construction picks the
// vendor SDK for the provider tag and resolves its credential from the
// supplied config.Config; Chat translates the unified prompt and sampling
// parameters into exactly one vendor call and maps the vendor response back
// into llm.Result.
//
//	cfg := config.FromEnv()
//	model, err := apimodel.New(ctx, cfg, "claude-3-5-sonnet-latest", config.ProviderAnthropic)
//	if err != nil {
//		return err
//	}
//	defer model.Close()
//
//	results, err := model.Chat(ctx, llm.Prompt{llm.User("Hello!")}, llm.NewSamplingParams(), false)
//
// Supported providers:
//   - "openai": OpenAI, credential OAI_API_KEY
//   - "google": Gemini through Google's OpenAI-compatible endpoint, GOOGLE_API_KEY
//   - "groq": Groq's OpenAI-compatible endpoint, GROQ_API_KEY
//   - "anthropic": Anthropic Messages API, ANTHROPIC_API_KEY
//   - "google-genai": native Gemini API, GOOGLE_GENAI_API_KEY
//   - "bedrock": AWS Bedrock runtime InvokeModel, AWS default credential chain
//
// Vendor SDK retries are disabled and vendor errors are returned unwrapped.
// The anthropic and bedrock providers send top_p only when it differs from
// llm.DefaultTopP.
package apimodel

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/brachiolab/unillm/config"
	"github.com/brachiolab/unillm/internal/progress"
	"github.com/brachiolab/unillm/llm"
)

// backend is one arm of the provider dispatch. Each arm owns its vendor
// client and the translation to and from the vendor's shapes.
type backend interface {
	chat(ctx context.Context, model string, prompt llm.Prompt, params llm.SamplingParams) (llm.Result, error)
	close() error
}

// Model is a hosted-API backend bound to one provider and model.
type Model struct {
	modelName string
	provider  string
	timeout   time.Duration
	logger    *slog.Logger
	backend   backend
}

var _ llm.UniLLM = (*Model)(nil)

type options struct {
	logger         *slog.Logger
	httpClient     *http.Client
	awsCredentials aws.CredentialsProvider
}

// Option customizes New.
type Option func(*options)

// WithLogger sets the logger used for debug output. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithHTTPClient sets the HTTP client used by the OpenAI-compatible, Anthropic
// and Gemini SDKs.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.httpClient = client }
}

// WithAWSCredentials replaces the AWS default credential chain for bedrock.
func WithAWSCredentials(provider aws.CredentialsProvider) Option {
	return func(o *options) { o.awsCredentials = provider }
}

// New creates a Model for provider. An empty provider selects
// cfg.DefaultProvider; an empty modelName selects the provider's configured
// model.
//
// New returns an error wrapping llm.ErrUnsupportedProvider for unknown tags
// and llm.ErrMissingCredential when a required API key is absent.
func New(ctx context.Context, cfg config.Config, modelName, provider string, opts ...Option) (*Model, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	if provider == "" {
		provider = cfg.DefaultProvider
	}
	if provider == "" {
		return nil, fmt.Errorf("no LLM provider specified")
	}

	llmCfg, _ := cfg.GetLLMConfig(provider)
	if modelName == "" {
		modelName = llmCfg.Model
	}
	if modelName == "" {
		return nil, fmt.Errorf("model name for provider '%s' not specified", provider)
	}

	logger := o.logger.With("provider", provider, "model", modelName)

	var (
		b   backend
		err error
	)
	switch provider {
	case config.ProviderOpenAI, config.ProviderGoogle, config.ProviderGroq:
		b, err = newOpenAIBackend(provider, llmCfg, o.httpClient, logger)
	case config.ProviderAnthropic:
		b, err = newAnthropicBackend(llmCfg, o.httpClient, logger)
	case config.ProviderGoogleGenAI:
		b, err = newGenAIBackend(ctx, llmCfg, o.httpClient, logger)
	case config.ProviderBedrock:
		b, err = newBedrockBackend(ctx, llmCfg, o.awsCredentials, logger)
	default:
		return nil, fmt.Errorf("%w: %s", llm.ErrUnsupportedProvider, provider)
	}
	if err != nil {
		return nil, err
	}

	return &Model{
		modelName: modelName,
		provider:  provider,
		timeout:   time.Duration(cfg.RequestTimeout()) * time.Second,
		logger:    logger,
		backend:   b,
	}, nil
}

// ModelName returns the model identifier sent to the provider.
func (m *Model) ModelName() string {
	return m.modelName
}

// Provider returns the provider tag the model was constructed with.
func (m *Model) Provider() string {
	return m.provider
}

// Chat sends prompt to the provider in a single call and returns one Result.
// Each choice the vendor returns becomes one Output; vendors without multiple
// completions per call (anthropic, bedrock) always yield one Output.
func (m *Model) Chat(ctx context.Context, prompt llm.Prompt, params llm.SamplingParams, showProgress bool) ([]llm.Result, error) {
	if len(prompt) == 0 {
		return nil, llm.ErrEmptyPrompt
	}
	params = params.WithDefaults()

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	m.logger.Debug("sending chat request",
		"messages", len(prompt),
		"temperature", params.Temperature,
		"max_tokens", params.MaxTokens,
		"n", params.N,
	)

	result, err := progress.Run(showProgress, m.provider+"/"+m.modelName, func() (llm.Result, error) {
		return m.backend.chat(ctx, m.modelName, prompt, params)
	})
	if err != nil {
		return nil, err
	}

	m.logger.Debug("chat response received",
		"outputs", len(result.Outputs),
		"completion_tokens", result.Usage.CompletionTokens,
	)
	return []llm.Result{result}, nil
}

// Close releases the vendor client. It is safe to call more than once.
func (m *Model) Close() error {
	if m.backend == nil {
		return nil
	}
	return m.backend.close()
}

// missingKey reports a provider whose API key is not configured.
func missingKey(provider, envVar string) error {
	return fmt.Errorf("%w: API key for %s not found in configuration (set %s)", llm.ErrMissingCredential, provider, envVar)
}

// explicitTopP returns top_p when the caller moved it off the default. Claude
// models reject requests that set both temperature and top_p, so the Claude
// arms leave the default out.
func explicitTopP(params llm.SamplingParams) (float64, bool) {
	return params.TopP, params.TopP != llm.DefaultTopP
}

// unsupportedRole reports a message role no provider understands.
func unsupportedRole(role string) error {
	return fmt.Errorf("unsupported message role %q", role)
}
