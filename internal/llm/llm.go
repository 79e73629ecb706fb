// Package llm generates answers from retrieved document context.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nickcecere/docqa/internal/config"
	"github.com/nickcecere/docqa/internal/retry"
)

// Provider represents an LLM provider type.
type Provider string

const (
	ProviderOllama    Provider = "ollama"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// CompletionOptions configures the completion request.
type CompletionOptions struct {
	// Temperature controls randomness (0-1).
	Temperature float64

	// MaxTokens limits the response length.
	MaxTokens int
}

// DefaultCompletionOptions returns the configured defaults.
func DefaultCompletionOptions() CompletionOptions {
	return CompletionOptions{
		Temperature: config.DefaultTemperature,
		MaxTokens:   config.DefaultMaxTokens,
	}
}

// Service answers a Prompt with a language model. Each provider passes the
// retrieved excerpts in its own native form.
type Service interface {
	// Answer returns the model's reply to p.
	Answer(ctx context.Context, p Prompt, opts CompletionOptions) (string, error)

	// Provider returns the provider name.
	Provider() Provider

	// ModelName returns the model name.
	ModelName() string
}

// NewService creates an LLM service based on the configuration. Calls are
// rate limited and retried according to llm.rate_limit.
func NewService(cfg *config.Config) (Service, error) {
	var (
		svc Service
		err error
	)

	switch cfg.LLM.Provider {
	case "ollama":
		svc, err = NewOllamaService(
			cfg.LLM.Ollama.URL,
			cfg.LLM.Ollama.Model,
		)
	case "openai":
		svc, err = NewOpenAIService(
			cfg.LLM.OpenAI.APIKey,
			cfg.LLM.OpenAI.Model,
			cfg.LLM.OpenAI.BaseURL,
		)
	case "anthropic":
		svc, err = NewAnthropicService(
			cfg.LLM.Anthropic.APIKey,
			cfg.LLM.Anthropic.Model,
			cfg.LLM.Anthropic.BaseURL,
		)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLM.Provider)
	}
	if err != nil {
		return nil, err
	}

	rl := cfg.LLM.RateLimit
	return &throttled{
		Service: svc,
		caller: retry.New(retry.Config{
			RequestsPerSecond: rl.RequestsPerSecond,
			Burst:             rl.Burst,
			MaxAttempts:       rl.MaxAttempts,
			BaseDelay:         time.Duration(rl.BaseDelayMS) * time.Millisecond,
		}),
	}, nil
}

// throttled routes Answer through a retry.Caller.
type throttled struct {
	Service
	caller *retry.Caller
}

func (t *throttled) Answer(ctx context.Context, p Prompt, opts CompletionOptions) (string, error) {
	var out string
	err := t.caller.Do(ctx, "answer", func(ctx context.Context) error {
		var err error
		out, err = t.Service.Answer(ctx, p, opts)
		return err
	})
	return out, err
}

// warnTruncated logs when the model stopped at the token limit, which leaves
// the answer cut off mid-sentence.
func warnTruncated(provider Provider, model string, maxTokens int) {
	log.Warn("Answer truncated at token limit", "provider", provider, "model", model, "max_tokens", maxTokens)
}

// classifyStatus wraps client errors other than rate limiting as permanent.
func classifyStatus(status int, err error) error {
	if status >= 400 && status < 500 && status != 429 {
		return retry.Permanent(err)
	}
	return err
}
