package unillm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/brachiolab/unillm/apimodel"
	"github.com/brachiolab/unillm/config"
	"github.com/brachiolab/unillm/llm"
	"github.com/brachiolab/unillm/local"
)

// New is a factory that returns the backend described by spec.
//
// KindAbstract, the zero value, and unknown kinds return an error wrapping
// llm.ErrAbstractInstantiation: the contract itself has no implementation.
// Construction errors from the chosen backend are returned unchanged.
//
// Example:
//
//	cfg := config.NewConfig("openai", 60, map[string]config.LLMConfig{
//		"openai": {APIKey: "your-api-key"},
//	})
//	model, err := New(ctx, cfg, Spec{Kind: KindAPI, ModelName: "gpt-4o"})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer model.Close()
//
// Making it a variable to allow for easy mocking in tests.
var New func(ctx context.Context, cfg config.Config, spec Spec, opts ...Option) (llm.UniLLM, error) = func(ctx context.Context, cfg config.Config, spec Spec, opts ...Option) (llm.UniLLM, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	switch spec.Kind {
	case KindAPI:
		apiOpts := []apimodel.Option{apimodel.WithLogger(o.logger)}
		if o.httpClient != nil {
			apiOpts = append(apiOpts, apimodel.WithHTTPClient(o.httpClient))
		}
		model, err := apimodel.New(ctx, cfg, spec.ModelName, spec.Provider, apiOpts...)
		if err != nil {
			return nil, err
		}
		return model, nil
	case KindOurLLM, KindPrompted:
		localOpts := []local.Option{local.WithLogger(o.logger)}
		if o.httpClient != nil {
			localOpts = append(localOpts, local.WithHTTPClient(o.httpClient))
		}
		if spec.Kind == KindOurLLM {
			model, err := local.NewOurLLM(cfg, spec.ModelName, localOpts...)
			if err != nil {
				return nil, err
			}
			return model, nil
		}
		if spec.SystemPrompt != "" {
			localOpts = append(localOpts, local.WithSystemPrompt(spec.SystemPrompt))
		}
		if spec.Template != "" {
			localOpts = append(localOpts, local.WithTemplate(spec.Template))
		}
		model, err := local.NewPromptedLLM(cfg, spec.ModelName, localOpts...)
		if err != nil {
			return nil, err
		}
		return model, nil
	default:
		return nil, fmt.Errorf("%w (kind %s)", llm.ErrAbstractInstantiation, spec.Kind)
	}
}
