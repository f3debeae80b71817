// unillm sends one prompt to any supported LLM backend and prints every
// generated output.
//
// Credentials come from the environment (optionally from a .env file) and
// from the TOML configuration file; flags override both.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/brachiolab/unillm"
	"github.com/brachiolab/unillm/config"
	"github.com/brachiolab/unillm/imageutil"
	"github.com/brachiolab/unillm/internal/logging"
	"github.com/brachiolab/unillm/llm"
)

// providers lists the tags accepted by --provider for --kind api.
var providers = []string{
	config.ProviderOpenAI,
	config.ProviderAnthropic,
	config.ProviderGoogle,
	config.ProviderGoogleGenAI,
	config.ProviderBedrock,
	config.ProviderGroq,
}

type cliOptions struct {
	configFile    string
	envFile       string
	kind          string
	provider      string
	model         string
	system        string
	images        []string
	stop          []string
	temperature   float64
	topP          float64
	maxTokens     int
	n             int
	timeout       int
	progress      bool
	debug         bool
	listProviders bool
	createConfig  bool
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	var opts cliOptions

	flagSet := pflag.NewFlagSet("unillm", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&opts.configFile, "config", "", "path to TOML configuration file (default: $XDG_CONFIG_HOME/unillm/config.toml)")
	flagSet.StringVar(&opts.envFile, "env-file", ".env", "load environment variables from this file when it exists")
	flagSet.StringVar(&opts.kind, "kind", "api", "backend kind: api, local or prompted")
	flagSet.StringVarP(&opts.provider, "provider", "p", "", "LLM provider for --kind api (default: default_provider from config)")
	flagSet.StringVarP(&opts.model, "model", "m", "", "model name (default: model from config)")
	flagSet.StringVar(&opts.system, "system", "", "system prompt")
	flagSet.StringArrayVar(&opts.images, "image", nil, "attach an image file to the prompt (repeatable)")
	flagSet.StringArrayVar(&opts.stop, "stop", nil, "stop sequence (repeatable)")
	flagSet.Float64Var(&opts.temperature, "temperature", llm.DefaultTemperature, "sampling temperature")
	flagSet.Float64Var(&opts.topP, "top-p", llm.DefaultTopP, "nucleus sampling probability mass")
	flagSet.IntVar(&opts.maxTokens, "max-tokens", llm.DefaultMaxTokens, "maximum tokens to generate per output")
	flagSet.IntVarP(&opts.n, "n", "n", llm.DefaultN, "number of outputs to generate")
	flagSet.IntVar(&opts.timeout, "timeout", 0, "override request timeout in seconds")
	flagSet.BoolVar(&opts.progress, "progress", false, "show a spinner while waiting")
	flagSet.BoolVar(&opts.debug, "debug", false, "enable debug logging to stderr")
	flagSet.BoolVar(&opts.listProviders, "list-providers", false, "list supported providers and exit")
	flagSet.BoolVar(&opts.createConfig, "create-config", false, "write a configuration template to --config (or the default path) and exit")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			printHelp(stderr, flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(stderr, flagSet)
		return nil
	}

	if opts.listProviders {
		for _, p := range providers {
			fmt.Fprintln(stdout, p)
		}
		return nil
	}
	if opts.createConfig {
		return createConfig(stdout, opts.configFile)
	}

	kind, err := unillm.ParseKind(opts.kind)
	if err != nil {
		return err
	}

	logger := logging.New(stderr, opts.debug)

	if err := config.LoadEnv(opts.envFile); err != nil {
		return err
	}
	cfg, err := loadConfig(opts.configFile)
	if err != nil {
		return err
	}
	if opts.timeout > 0 {
		cfg.RequestTimeoutSeconds = opts.timeout
	}

	prompt, err := buildPrompt(flagSet.Args(), stdin, opts, kind)
	if err != nil {
		return err
	}

	spec := unillm.Spec{Kind: kind, ModelName: opts.model, Provider: opts.provider}
	if kind == unillm.KindPrompted {
		spec.SystemPrompt = opts.system
	}

	model, err := unillm.New(ctx, cfg, spec, unillm.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to create %s backend: %w", kind, err)
	}
	defer model.Close()

	params := llm.NewSamplingParams(
		llm.WithTemperature(opts.temperature),
		llm.WithTopP(opts.topP),
		llm.WithMaxTokens(opts.maxTokens),
		llm.WithN(opts.n),
		llm.WithStop(opts.stop...),
	)

	results, err := model.Chat(ctx, prompt, params, opts.progress)
	if err != nil {
		return err
	}

	printResults(stdout, logger, results)
	return nil
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Load()
	}
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return config.Config{}, err
	}
	cfg.ApplyEnv()
	return cfg, nil
}

func createConfig(stdout io.Writer, path string) error {
	if path == "" {
		var err error
		if path, err = config.GetConfigFilePath(); err != nil {
			return err
		}
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("configuration file %s already exists", path)
	}
	if err := config.Save(config.Default(), path); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Configuration template written to %s\n", path)
	return nil
}

// buildPrompt joins the positional arguments into the user turn, reading
// stdin when there are none. PromptedLLM carries --system itself, so it is
// only added as a turn for the other kinds.
func buildPrompt(args []string, stdin io.Reader, opts cliOptions, kind unillm.Kind) (llm.Prompt, error) {
	text := strings.Join(args, " ")
	if text == "" && stdin != nil {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read prompt from stdin: %w", err)
		}
		text = string(data)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("no prompt given")
	}

	var prompt llm.Prompt
	if opts.system != "" && kind != unillm.KindPrompted {
		prompt = append(prompt, llm.System(opts.system))
	}

	parts := []llm.Part{llm.TextPart(text)}
	for _, path := range opts.images {
		img, err := imageutil.ReadFile(path)
		if err != nil {
			return nil, err
		}
		part, err := imageutil.Part(img)
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}
	return append(prompt, llm.NewMessage(llm.RoleUser, parts...)), nil
}

func printResults(w io.Writer, logger *slog.Logger, results []llm.Result) {
	for _, result := range results {
		logger.Debug("usage",
			"prompt_tokens", result.Usage.PromptTokens,
			"completion_tokens", result.Usage.CompletionTokens,
		)
		if len(result.Outputs) == 1 {
			fmt.Fprintln(w, result.Outputs[0].Text)
			continue
		}
		for i, out := range result.Outputs {
			fmt.Fprintf(w, "--- output %d/%d (%d tokens, %s) ---\n", i+1, len(result.Outputs), out.CompletionTokens, out.FinishReason)
			fmt.Fprintln(w, out.Text)
		}
	}
}

func printHelp(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, `unillm sends a prompt to a hosted or local LLM and prints the outputs.

Usage:
  unillm [flags] prompt...
  echo "prompt" | unillm [flags]

Examples:
  # Ask the configured default provider
  unillm "Explain TCP slow start in two sentences."

  # Three samples from GPT-4o mini with a system prompt
  unillm -p openai -m gpt-4o-mini -n 3 --system "Be terse." "Name a color."

  # Describe an image with Gemini
  unillm -p google-genai -m gemini-1.5-flash --image photo.jpg "What is in this picture?"

  # A local open-weight model through Ollama
  unillm --kind local -m llama3.1:8b "Hello"

Environment:
  OAI_API_KEY, ANTHROPIC_API_KEY, GOOGLE_API_KEY, GOOGLE_GENAI_API_KEY,
  GROQ_API_KEY, AWS_REGION and the AWS credential chain, OLLAMA_HOST

Flags:
`)
	flagSet.SetOutput(w)
	flagSet.PrintDefaults()
}
