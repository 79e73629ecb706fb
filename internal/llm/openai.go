package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIService answers prompts with the OpenAI chat API or a compatible
// server.
type OpenAIService struct {
	client openai.Client
	model  string
}

// NewOpenAIService creates an OpenAI service. An empty baseURL uses the
// public API.
func NewOpenAIService(apiKey, model, baseURL string) (*OpenAIService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// Retries are handled by the throttled wrapper.
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &OpenAIService{
		client: openai.NewClient(opts...),
		model:  model,
	}, nil
}

// Answer sends the excerpts and the question as separate content parts of
// one user message, so the question is never read as part of a document.
func (s *OpenAIService) Answer(ctx context.Context, p Prompt, opts CompletionOptions) (string, error) {
	log.Debug("Requesting answer from OpenAI", "model", s.model)

	resp, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(s.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(p.Instructions),
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(contextHeader + p.Context),
				openai.TextContentPart("Question: " + p.Question),
			}),
		},
		Temperature:         openai.Float(opts.Temperature),
		MaxCompletionTokens: openai.Int(int64(opts.MaxTokens)),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", classifyStatus(apiErr.StatusCode, fmt.Errorf("failed to create completion: %w", err))
		}
		return "", fmt.Errorf("failed to create completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no completion returned")
	}
	choice := resp.Choices[0]
	if choice.FinishReason == "length" {
		warnTruncated(ProviderOpenAI, s.model, opts.MaxTokens)
	}
	if choice.Message.Content == "" {
		return "", fmt.Errorf("openai returned an empty message")
	}

	return choice.Message.Content, nil
}

// Provider returns the provider name.
func (s *OpenAIService) Provider() Provider {
	return ProviderOpenAI
}

// ModelName returns the model name.
func (s *OpenAIService) ModelName() string {
	return s.model
}
