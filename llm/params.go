package llm

// Default sampling values, applied by NewSamplingParams and WithDefaults.
const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 2048
	DefaultTopP        = 0.9
	DefaultN           = 1
)

// SamplingParams controls generation and is translated to each provider's
// own parameter names. It is a value type: pass it by value and build it
// with NewSamplingParams.
type SamplingParams struct {
	Temperature float64
	MaxTokens   int
	TopP        float64
	// N is the number of completions requested for the prompt.
	N int
	// Stop holds optional stop sequences; nil means none.
	Stop []string
}

// SamplingOption customizes a SamplingParams built by NewSamplingParams.
type SamplingOption func(*SamplingParams)

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) SamplingOption {
	return func(p *SamplingParams) { p.Temperature = t }
}

// WithMaxTokens sets the maximum number of generated tokens per completion.
func WithMaxTokens(n int) SamplingOption {
	return func(p *SamplingParams) { p.MaxTokens = n }
}

// WithTopP sets the nucleus sampling probability mass.
func WithTopP(topP float64) SamplingOption {
	return func(p *SamplingParams) { p.TopP = topP }
}

// WithN sets the number of completions to generate.
func WithN(n int) SamplingOption {
	return func(p *SamplingParams) { p.N = n }
}

// WithStop sets the stop sequences. The slice is copied.
func WithStop(stop ...string) SamplingOption {
	return func(p *SamplingParams) {
		if len(stop) == 0 {
			p.Stop = nil
			return
		}
		p.Stop = append([]string(nil), stop...)
	}
}

// NewSamplingParams returns the default parameters (temperature 0.7,
// max tokens 2048, top-p 0.9, n 1, no stop sequences) with opts applied.
func NewSamplingParams(opts ...SamplingOption) SamplingParams {
	p := SamplingParams{
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
		TopP:        DefaultTopP,
		N:           DefaultN,
	}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// WithDefaults returns a copy of p in which counts that cannot be sent to a
// provider (N < 1, MaxTokens < 1) are replaced by their defaults. Temperature
// and TopP are left alone since zero is a meaningful value for both.
func (p SamplingParams) WithDefaults() SamplingParams {
	if p.N < 1 {
		p.N = DefaultN
	}
	if p.MaxTokens < 1 {
		p.MaxTokens = DefaultMaxTokens
	}
	if p.Stop != nil {
		p.Stop = append([]string(nil), p.Stop...)
	}
	return p
}
