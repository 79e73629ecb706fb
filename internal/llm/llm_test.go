package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickcecere/docqa/internal/config"
)

// TestNewService tests the factory function.
func TestNewService(t *testing.T) {
	t.Run("creates Ollama service", func(t *testing.T) {
		cfg := &config.Config{
			LLM: config.LLMConfig{
				Provider: "ollama",
				Ollama: config.OllamaLLMConfig{
					URL:   "http://localhost:11434",
					Model: "llama3",
				},
			},
		}

		svc, err := NewService(cfg)
		require.NoError(t, err)
		assert.Equal(t, ProviderOllama, svc.Provider())
		assert.Equal(t, "llama3", svc.ModelName())
	})

	t.Run("creates OpenAI service", func(t *testing.T) {
		cfg := &config.Config{
			LLM: config.LLMConfig{
				Provider: "openai",
				OpenAI: config.OpenAILLMConfig{
					APIKey: "sk-test",
					Model:  "gpt-4o-mini",
				},
			},
		}

		svc, err := NewService(cfg)
		require.NoError(t, err)
		assert.Equal(t, ProviderOpenAI, svc.Provider())
		assert.Equal(t, "gpt-4o-mini", svc.ModelName())
	})

	t.Run("creates Anthropic service", func(t *testing.T) {
		cfg := &config.Config{
			LLM: config.LLMConfig{
				Provider: "anthropic",
				Anthropic: config.AnthropicConfig{
					APIKey: "sk-ant-test",
					Model:  "claude-3-haiku",
				},
			},
		}

		svc, err := NewService(cfg)
		require.NoError(t, err)
		assert.Equal(t, ProviderAnthropic, svc.Provider())
		assert.Equal(t, "claude-3-haiku", svc.ModelName())
	})

	t.Run("returns error for unsupported provider", func(t *testing.T) {
		cfg := &config.Config{
			LLM: config.LLMConfig{
				Provider: "unsupported",
			},
		}

		_, err := NewService(cfg)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported")
	})

	t.Run("propagates provider errors", func(t *testing.T) {
		cfg := &config.Config{
			LLM: config.LLMConfig{Provider: "anthropic"},
		}

		_, err := NewService(cfg)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "API key")
	})
}

// TestNewOllamaService tests Ollama service creation.
func TestNewOllamaService(t *testing.T) {
	t.Run("with default URL", func(t *testing.T) {
		svc, err := NewOllamaService("", "llama3")
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:11434", svc.baseURL)
		assert.Equal(t, "llama3", svc.model)
	})

	t.Run("with custom URL", func(t *testing.T) {
		svc, err := NewOllamaService("http://custom:8080/", "mistral")
		require.NoError(t, err)
		assert.Equal(t, "http://custom:8080", svc.baseURL)
	})

	t.Run("requires a model", func(t *testing.T) {
		_, err := NewOllamaService("", "")
		assert.Error(t, err)
	})
}

// TestNewOpenAIService tests OpenAI service creation.
func TestNewOpenAIService(t *testing.T) {
	t.Run("requires API key", func(t *testing.T) {
		_, err := NewOpenAIService("", "gpt-4o-mini", "")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "API key")
	})

	t.Run("with valid API key", func(t *testing.T) {
		svc, err := NewOpenAIService("sk-test", "gpt-4o-mini", "")
		require.NoError(t, err)
		assert.Equal(t, "gpt-4o-mini", svc.model)
	})
}

// TestNewAnthropicService tests Anthropic service creation.
func TestNewAnthropicService(t *testing.T) {
	t.Run("requires API key", func(t *testing.T) {
		_, err := NewAnthropicService("", "claude-3", "")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "API key")
	})

	t.Run("with valid API key", func(t *testing.T) {
		svc, err := NewAnthropicService("sk-ant-test", "claude-3", "")
		require.NoError(t, err)
		assert.Equal(t, "claude-3", svc.model)
		assert.Equal(t, "https://api.anthropic.com", svc.baseURL)
	})

	t.Run("with custom base URL", func(t *testing.T) {
		svc, err := NewAnthropicService("sk-ant-test", "claude-3", "http://proxy:9000/")
		require.NoError(t, err)
		assert.Equal(t, "http://proxy:9000", svc.baseURL)
	})
}

// mockOllamaServer creates a test server that simulates Ollama's chat API and
// records the last request it received.
func mockOllamaServer(t *testing.T, response string, last *ollamaChatRequest) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.Equal(t, "POST", r.Method)

		var req ollamaChatRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if last != nil {
			*last = req
		}

		resp := ollamaChatResponse{
			Message: ollamaMessage{
				Role:    "assistant",
				Content: response,
			},
			Done: true,
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestOllamaAnswer(t *testing.T) {
	var got ollamaChatRequest
	server := mockOllamaServer(t, "The sky is blue.", &got)
	defer server.Close()

	svc, err := NewOllamaService(server.URL, "llama3")
	require.NoError(t, err)

	p := BuildPrompt("The sky is blue.", "What color is the sky?")
	response, err := svc.Answer(context.Background(), p, CompletionOptions{Temperature: 0.1, MaxTokens: 64})
	require.NoError(t, err)
	assert.Equal(t, "The sky is blue.", response)

	assert.False(t, got.Stream)
	assert.Equal(t, "llama3", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, ollamaMessage{Role: "system", Content: systemPrompt}, got.Messages[0])
	assert.Equal(t, ollamaMessage{Role: "user", Content: p.Text()}, got.Messages[1])
	assert.Equal(t, 64, got.Options.NumPredict)
	assert.Equal(t, minContextWindow, got.Options.NumCtx)
}

func TestOllamaAnswerSizesContextWindow(t *testing.T) {
	var got ollamaChatRequest
	server := mockOllamaServer(t, "ok", &got)
	defer server.Close()

	svc, err := NewOllamaService(server.URL, "llama3")
	require.NoError(t, err)

	// About 10000 tokens of excerpts.
	passages := strings.Repeat("word ", 8000)
	_, err = svc.Answer(context.Background(), BuildPrompt(passages, "q"), CompletionOptions{MaxTokens: 512})
	require.NoError(t, err)

	assert.Greater(t, got.Options.NumCtx, 10000+512)
	assert.Zero(t, got.Options.NumCtx%contextWindowStep)
}

func TestContextWindow(t *testing.T) {
	tests := []struct {
		name      string
		prompt    string
		maxTokens int
		want      int
	}{
		{"short prompt uses the minimum", "hello", 100, minContextWindow},
		{"rounds up to a whole step", strings.Repeat("a", 4*3000), 0, 4096},
		{"counts the reply", strings.Repeat("a", 4*2000), 1024, 4096},
		{"counts runes not bytes", strings.Repeat("é", 4*1500), 0, 2048},
		{"stays within the maximum", strings.Repeat("a", 4*maxContextWindow), 0, maxContextWindow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, contextWindow(tt.prompt, tt.maxTokens))
		})
	}
}

func TestOllamaAnswerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("model not found"))
	}))
	defer server.Close()

	svc, err := NewOllamaService(server.URL, "llama3")
	require.NoError(t, err)

	_, err = svc.Answer(context.Background(), BuildPrompt("ctx", "test"), DefaultCompletionOptions())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestOpenAIAnswer(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string          `json:"role"`
			Content json.RawMessage `json:"content"`
		} `json:"messages"`
		MaxCompletionTokens int `json:"max_completion_tokens"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"c1","object":"chat.completion","created":0,"model":"gpt-4o-mini",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"The sky is blue."}}]}`))
	}))
	defer server.Close()

	svc, err := NewOpenAIService("sk-test", "gpt-4o-mini", server.URL)
	require.NoError(t, err)

	answer, err := svc.Answer(context.Background(), BuildPrompt("The sky is blue.", "What color is the sky?"), CompletionOptions{MaxTokens: 64})
	require.NoError(t, err)
	assert.Equal(t, "The sky is blue.", answer)

	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.Equal(t, 64, got.MaxCompletionTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)

	var system string
	require.NoError(t, json.Unmarshal(got.Messages[0].Content, &system))
	assert.Equal(t, systemPrompt, system)

	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	assert.Equal(t, "user", got.Messages[1].Role)
	require.NoError(t, json.Unmarshal(got.Messages[1].Content, &parts))
	require.Len(t, parts, 2)
	assert.Equal(t, "text", parts[0].Type)
	assert.Equal(t, contextHeader+"The sky is blue.", parts[0].Text)
	assert.Equal(t, "Question: What color is the sky?", parts[1].Text)
}

func TestOpenAIAnswerClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	cfg := config.DefaultConfig()
	cfg.LLM.Provider = "openai"
	cfg.LLM.OpenAI.APIKey = "sk-bad"
	cfg.LLM.OpenAI.BaseURL = server.URL
	cfg.LLM.RateLimit.BaseDelayMS = 1
	cfg.LLM.RateLimit.MaxAttempts = 3

	svc, err := NewService(cfg)
	require.NoError(t, err)

	_, err = svc.Answer(context.Background(), BuildPrompt("ctx", "q"), DefaultCompletionOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Equal(t, int32(1), calls.Load())
}

func TestAnthropicAnswer(t *testing.T) {
	var got anthropicRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant-test", r.Header.Get("x-api-key"))
		assert.NotEmpty(t, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		json.NewEncoder(w).Encode(anthropicResponse{
			Type: "message",
			Role: "assistant",
			Content: []anthropicContent{
				{Type: "text", Text: "The sky "},
				{Type: "text", Text: "is blue."},
			},
			StopReason: "end_turn",
		})
	}))
	defer server.Close()

	svc, err := NewAnthropicService("sk-ant-test", "claude-3", server.URL)
	require.NoError(t, err)

	answer, err := svc.Answer(context.Background(), BuildPrompt("The sky is blue.", "What color is the sky?"), DefaultCompletionOptions())
	require.NoError(t, err)
	assert.Equal(t, "The sky is blue.", answer)

	assert.Equal(t, systemPrompt, got.System)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	require.Len(t, got.Messages[0].Content, 2)

	doc := got.Messages[0].Content[0]
	assert.Equal(t, "document", doc.Type)
	require.NotNil(t, doc.Source)
	assert.Equal(t, anthropicSource{Type: "text", MediaType: "text/plain", Data: "The sky is blue."}, *doc.Source)
	assert.Equal(t, anthropicBlock{Type: "text", Text: "What color is the sky?"}, got.Messages[0].Content[1])
}

func TestDocumentBlocksWithoutContext(t *testing.T) {
	blocks := documentBlocks(BuildPrompt("  \n", "Anything?"))
	assert.Equal(t, []anthropicBlock{{Type: "text", Text: "Anything?"}}, blocks)
}

// TestDefaultCompletionOptions tests default options.
func TestDefaultCompletionOptions(t *testing.T) {
	opts := DefaultCompletionOptions()
	assert.Equal(t, config.DefaultTemperature, opts.Temperature)
	assert.Equal(t, config.DefaultMaxTokens, opts.MaxTokens)
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt("The sky is blue.\n\nThe grass is green.", "What color is the sky?")

	assert.Equal(t, systemPrompt, p.Instructions)
	assert.Equal(t, "The sky is blue.\n\nThe grass is green.", p.Context)
	assert.Equal(t, "What color is the sky?", p.Question)
	assert.Equal(t, "Context:\nThe sky is blue.\n\nThe grass is green.\n\nQuestion: What color is the sky?", p.Text())
}

func TestGenerator(t *testing.T) {
	var got ollamaChatRequest
	server := mockOllamaServer(t, "  The sky is blue.\n", &got)
	defer server.Close()

	svc, err := NewOllamaService(server.URL, "llama3")
	require.NoError(t, err)

	gen := NewGenerator(svc, CompletionOptions{})
	answer, err := gen.GenerateAnswer(context.Background(), "The sky is blue.", "What color is the sky?")
	require.NoError(t, err)
	assert.Equal(t, "The sky is blue.", answer)

	require.Len(t, got.Messages, 2)
	assert.Contains(t, got.Messages[1].Content, "Question: What color is the sky?")
	assert.Equal(t, config.DefaultMaxTokens, got.Options.NumPredict)
}

type failingService struct {
	calls atomic.Int32
	err   error
}

func (f *failingService) Answer(ctx context.Context, p Prompt, opts CompletionOptions) (string, error) {
	f.calls.Add(1)
	return "", f.err
}
func (f *failingService) Provider() Provider { return ProviderOllama }
func (f *failingService) ModelName() string  { return "failing" }

func TestGeneratorError(t *testing.T) {
	cause := errors.New("connection refused")
	gen := NewGenerator(&failingService{err: cause}, DefaultCompletionOptions())

	_, err := gen.GenerateAnswer(context.Background(), "ctx", "q")
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "failed to generate answer")
}

func TestThrottledRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(ollamaChatResponse{
			Message: ollamaMessage{Role: "assistant", Content: "ok"},
			Done:    true,
		})
	}))
	defer server.Close()

	cfg := config.DefaultConfig()
	cfg.LLM.Ollama.URL = server.URL
	cfg.LLM.RateLimit.BaseDelayMS = 1
	cfg.LLM.RateLimit.MaxAttempts = 3

	svc, err := NewService(cfg)
	require.NoError(t, err)

	answer, err := svc.Answer(context.Background(), BuildPrompt("ctx", "hi"), DefaultCompletionOptions())
	require.NoError(t, err)
	assert.Equal(t, "ok", answer)
	assert.Equal(t, int32(3), calls.Load())
}

func TestThrottledStopsOnClientError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("bad request"))
	}))
	defer server.Close()

	cfg := config.DefaultConfig()
	cfg.LLM.Ollama.URL = server.URL
	cfg.LLM.RateLimit.BaseDelayMS = 1

	svc, err := NewService(cfg)
	require.NoError(t, err)

	_, err = svc.Answer(context.Background(), BuildPrompt("ctx", "hi"), DefaultCompletionOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Equal(t, int32(1), calls.Load())
}

// TestProviderConstants tests provider constants.
func TestProviderConstants(t *testing.T) {
	assert.Equal(t, Provider("ollama"), ProviderOllama)
	assert.Equal(t, Provider("openai"), ProviderOpenAI)
	assert.Equal(t, Provider("anthropic"), ProviderAnthropic)
}
