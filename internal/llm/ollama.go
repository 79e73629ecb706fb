package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"
)

// Context window bounds for Ollama requests, in tokens.
const (
	minContextWindow  = 2048
	maxContextWindow  = 131072
	contextWindowStep = 1024
	contextMargin     = 256
)

// OllamaService answers prompts with a local Ollama model. Ollama loads a
// model with a small default context window and silently drops the start of
// longer prompts, so every request sizes num_ctx to fit the excerpts.
type OllamaService struct {
	baseURL string
	model   string
	client  *http.Client
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
	NumCtx      int     `json:"num_ctx"`
}

type ollamaChatResponse struct {
	Message    ollamaMessage `json:"message"`
	Done       bool          `json:"done"`
	DoneReason string        `json:"done_reason,omitempty"`
}

// NewOllamaService creates an Ollama service. An empty baseURL uses the
// local default.
func NewOllamaService(baseURL, model string) (*OllamaService, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		return nil, fmt.Errorf("ollama model is required")
	}

	return &OllamaService{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: 5 * time.Minute},
	}, nil
}

// Answer sends the instructions as the system message and the excerpts with
// the question as the user message.
func (s *OllamaService) Answer(ctx context.Context, p Prompt, opts CompletionOptions) (string, error) {
	user := p.Text()
	reqBody := ollamaChatRequest{
		Model: s.model,
		Messages: []ollamaMessage{
			{Role: "system", Content: p.Instructions},
			{Role: "user", Content: user},
		},
		Options: ollamaOptions{
			Temperature: opts.Temperature,
			NumPredict:  opts.MaxTokens,
			NumCtx:      contextWindow(p.Instructions+user, opts.MaxTokens),
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	log.Debug("Requesting answer from Ollama", "model", s.model, "num_ctx", reqBody.Options.NumCtx)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return "", classifyStatus(resp.StatusCode, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(msg)))
	}

	var result ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if result.Message.Content == "" {
		return "", fmt.Errorf("ollama returned an empty message")
	}
	if result.DoneReason == "length" {
		warnTruncated(ProviderOllama, s.model, opts.MaxTokens)
	}

	return result.Message.Content, nil
}

// contextWindow estimates the num_ctx needed to hold prompt and the reply.
// It assumes about four characters per token, rounds up to a whole step and
// stays within the window bounds.
func contextWindow(prompt string, maxTokens int) int {
	need := utf8.RuneCountInString(prompt)/4 + maxTokens + contextMargin
	need = (need + contextWindowStep - 1) / contextWindowStep * contextWindowStep
	return max(minContextWindow, min(need, maxContextWindow))
}

// Provider returns the provider name.
func (s *OllamaService) Provider() Provider {
	return ProviderOllama
}

// ModelName returns the model name.
func (s *OllamaService) ModelName() string {
	return s.model
}
