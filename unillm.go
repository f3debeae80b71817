// Package unillm provides one calling convention for chat generation across
// hosted LLM vendors and locally served open-weight models.
//
// Backends implement llm.UniLLM:
//   - apimodel.Model: hosted vendors (openai, google, groq, anthropic,
//     google-genai, bedrock)
//   - local.OurLLM: open-weight models through a local runtime's chat API
//   - local.PromptedLLM: open-weight models with client-side prompt templating
//
// Example usage:
//
//	if err := config.LoadEnv(".env"); err != nil {
//		log.Fatal(err)
//	}
//	cfg, err := config.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	model, err := unillm.New(ctx, cfg, unillm.Spec{
//		Kind:      unillm.KindAPI,
//		Provider:  config.ProviderAnthropic,
//		ModelName: "claude-3-5-sonnet-latest",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer model.Close()
//
//	params := llm.NewSamplingParams(llm.WithTemperature(0.2), llm.WithN(1))
//	results, err := model.Chat(ctx, llm.Prompt{llm.User("Hello, world!")}, params, true)
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(results[0].Outputs[0].Text)
//
// Backends can also be created directly through apimodel.New, local.NewOurLLM
// and local.NewPromptedLLM.
package unillm

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// Kind selects which backend New constructs.
type Kind int

const (
	// KindAbstract is the bare llm.UniLLM contract. It cannot be constructed.
	KindAbstract Kind = iota
	// KindAPI selects apimodel.Model.
	KindAPI
	// KindOurLLM selects local.OurLLM.
	KindOurLLM
	// KindPrompted selects local.PromptedLLM.
	KindPrompted
)

func (k Kind) String() string {
	switch k {
	case KindAbstract:
		return "abstract"
	case KindAPI:
		return "api"
	case KindOurLLM:
		return "local"
	case KindPrompted:
		return "prompted"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind maps a command-line name onto a Kind. "ourllm" is accepted as an
// alias of "local".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "api":
		return KindAPI, nil
	case "local", "ourllm":
		return KindOurLLM, nil
	case "prompted":
		return KindPrompted, nil
	default:
		return KindAbstract, fmt.Errorf("unknown backend kind %q (want api, local or prompted)", s)
	}
}

// Spec describes the backend to construct.
type Spec struct {
	Kind Kind
	// ModelName is the vendor model identifier or runtime model tag. Empty
	// selects the model configured for the provider.
	ModelName string
	// Provider is the vendor tag for KindAPI. Empty selects the configured
	// default provider. Ignored by the local kinds.
	Provider string
	// SystemPrompt is rendered ahead of every conversation by KindPrompted.
	SystemPrompt string
	// Template overrides KindPrompted's ChatML template.
	Template string
}

type options struct {
	logger     *slog.Logger
	httpClient *http.Client
}

// Option customizes New.
type Option func(*options)

// WithLogger sets the logger handed to the backend.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithHTTPClient sets the HTTP client handed to backends that accept one.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.httpClient = client }
}
