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

	"github.com/charmbracelet/log"
)

const defaultAnthropicURL = "https://api.anthropic.com"

// AnthropicService answers prompts with the Anthropic Messages API.
type AnthropicService struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
}

type anthropicMessage struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

// anthropicBlock is a user content block: either text or a plain-text
// document the model can cite from.
type anthropicBlock struct {
	Type   string           `json:"type"`
	Text   string           `json:"text,omitempty"`
	Source *anthropicSource `json:"source,omitempty"`
	Title  string           `json:"title,omitempty"`
}

type anthropicSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// anthropicResponse is the response from the Anthropic API.
type anthropicResponse struct {
	ID         string             `json:"id"`
	Type       string             `json:"type"`
	Role       string             `json:"role"`
	Content    []anthropicContent `json:"content"`
	StopReason string             `json:"stop_reason"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// NewAnthropicService creates a new Anthropic LLM service. An empty baseURL
// uses the public API.
func NewAnthropicService(apiKey, model, baseURL string) (*AnthropicService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required")
	}
	if baseURL == "" {
		baseURL = defaultAnthropicURL
	}

	return &AnthropicService{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}, nil
}

// Answer passes the excerpts as a document block ahead of the question.
func (s *AnthropicService) Answer(ctx context.Context, p Prompt, opts CompletionOptions) (string, error) {
	log.Debug("Requesting answer from Anthropic", "model", s.model)

	reqBody := anthropicRequest{
		Model:  s.model,
		System: p.Instructions,
		Messages: []anthropicMessage{{
			Role:    "user",
			Content: documentBlocks(p),
		}},
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+"/v1/messages", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", s.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", classifyStatus(resp.StatusCode, fmt.Errorf("anthropic returned status %d: %s", resp.StatusCode, string(body)))
	}

	var result anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	var sb strings.Builder
	for _, c := range result.Content {
		if c.Type == "text" {
			sb.WriteString(c.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("no content in response")
	}
	if result.StopReason == "max_tokens" {
		warnTruncated(ProviderAnthropic, s.model, opts.MaxTokens)
	}

	return sb.String(), nil
}

// documentBlocks returns the user content for p. Without excerpts only the
// question is sent, since an empty document is rejected by the API.
func documentBlocks(p Prompt) []anthropicBlock {
	question := anthropicBlock{Type: "text", Text: p.Question}
	if strings.TrimSpace(p.Context) == "" {
		return []anthropicBlock{question}
	}
	return []anthropicBlock{
		{
			Type:   "document",
			Title:  "Retrieved excerpts",
			Source: &anthropicSource{Type: "text", MediaType: "text/plain", Data: p.Context},
		},
		question,
	}
}

// Provider returns the provider name.
func (s *AnthropicService) Provider() Provider {
	return ProviderAnthropic
}

// ModelName returns the model name.
func (s *AnthropicService) ModelName() string {
	return s.model
}
