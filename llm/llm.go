// Package llm defines the provider-neutral types shared by every unillm backend.
//
// A request is a Prompt (an ordered list of role-tagged messages) plus a
// SamplingParams value. A response is a list of Results, each holding one
// Output per requested completion.
//
// Every backend implements UniLLM, so calling code can swap providers and
// models without touching call sites:
//
//	results, err := model.Chat(ctx, llm.Prompt{llm.User("Hello!")}, llm.NewSamplingParams(), false)
//	if err != nil {
//		return err
//	}
//	fmt.Println(results[0].Outputs[0].Text)
package llm

import (
	"context"
	"errors"
)

// Sentinel errors returned by backend constructors and Chat.
var (
	// ErrAbstractInstantiation is returned when the abstract UniLLM contract is
	// asked to be constructed directly instead of one of its concrete backends.
	ErrAbstractInstantiation = errors.New("cannot instantiate abstract UniLLM; construct a concrete backend")

	// ErrUnsupportedProvider is returned for provider tags no backend understands.
	ErrUnsupportedProvider = errors.New("unsupported LLM provider")

	// ErrMissingCredential is returned when a provider's credential is not configured.
	ErrMissingCredential = errors.New("missing credential")

	// ErrEmptyPrompt is returned by Chat when the prompt has no messages.
	ErrEmptyPrompt = errors.New("prompt contains no messages")
)

// UniLLM is the contract every backend satisfies.
//
// Implementations hold a single vendor client for their lifetime. They are
// safe for sequential reuse across calls; concurrent use is not guaranteed.
type UniLLM interface {
	// Chat sends the prompt to the model and returns exactly one Result holding
	// params.N outputs (or the single output a vendor produces when it has no
	// notion of multiple completions).
	//
	// showProgress toggles a progress indicator on stderr while the request is
	// in flight. It has no effect on the returned results.
	//
	// Vendor errors are returned as-is so callers can inspect the SDK's own
	// error types.
	Chat(ctx context.Context, prompt Prompt, params SamplingParams, showProgress bool) ([]Result, error)

	// ModelName returns the model identifier the backend was constructed with.
	ModelName() string

	// Close releases the underlying vendor client. It is safe to call more than once.
	Close() error
}
