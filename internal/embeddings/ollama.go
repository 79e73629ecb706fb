package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nickcecere/docqa/internal/retry"
)

const (
	// maxOllamaBatch caps the inputs sent in one request. Ollama holds a
	// whole request in memory, and a long PDF yields hundreds of chunks.
	maxOllamaBatch = 32

	// ollamaKeepAlive keeps the model loaded between the batches of an
	// ingest.
	ollamaKeepAlive = "10m"
)

// retrievalPrefixes holds the instruction prefixes that retrieval-tuned
// models expect on passages and on questions.
type retrievalPrefixes struct {
	passage  string
	question string
}

var modelPrefixes = map[string]retrievalPrefixes{
	"nomic-embed-text": {
		passage:  "search_document: ",
		question: "search_query: ",
	},
	"mxbai-embed-large": {
		question: "Represent this sentence for searching relevant passages: ",
	},
	"snowflake-arctic-embed": {
		question: "Represent this sentence for searching relevant passages: ",
	},
}

// prefixesFor looks up a model by its base name, so "nomic-embed-text:v1.5"
// and "library/nomic-embed-text" share the prefixes of "nomic-embed-text".
func prefixesFor(model string) retrievalPrefixes {
	name := model
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.Index(name, ":"); i >= 0 {
		name = name[:i]
	}
	return modelPrefixes[name]
}

// OllamaService embeds document chunks and questions with a local Ollama
// model.
type OllamaService struct {
	baseURL    string
	model      string
	prefixes   retrievalPrefixes
	pinned     bool
	dimensions atomic.Int64
	client     *http.Client
}

type ollamaEmbedRequest struct {
	Model     string   `json:"model"`
	Input     []string `json:"input"`
	KeepAlive string   `json:"keep_alive,omitempty"`
	Truncate  bool     `json:"truncate"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewOllamaService creates an Ollama embedding service. A non-zero
// dimensions value is pinned: a model that returns another size is an error,
// since the vectors would not fit the index. Otherwise the known size of the
// model is used and corrected by the first response.
func NewOllamaService(baseURL, model string, dimensions int) (*OllamaService, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		return nil, fmt.Errorf("ollama embedding model is required")
	}

	s := &OllamaService{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		model:    model,
		prefixes: prefixesFor(model),
		pinned:   dimensions > 0,
		client:   &http.Client{Timeout: 60 * time.Second},
	}

	if dimensions == 0 {
		dimensions = GetModelDimensions(model)
	}
	if dimensions == 0 {
		dimensions = 768
		log.Debug("Unknown model dimensions, defaulting", "model", model, "dimensions", dimensions)
	}
	s.dimensions.Store(int64(dimensions))
	return s, nil
}

// Embed embeds one passage of document text.
func (s *OllamaService) Embed(ctx context.Context, text string) ([]float32, error) {
	return s.embedOne(ctx, s.passageInput(text))
}

// EmbedQuery embeds a question.
func (s *OllamaService) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return s.embedOne(ctx, s.questionInput(text))
}

// EmbedBatch embeds document passages, at most maxOllamaBatch per request.
// The result is in input order.
func (s *OllamaService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxOllamaBatch {
		end := min(start+maxOllamaBatch, len(texts))

		inputs := make([]string, 0, end-start)
		for _, text := range texts[start:end] {
			inputs = append(inputs, s.passageInput(text))
		}

		vecs, err := s.embedTexts(ctx, inputs)
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", start, end, err)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// Dimensions returns the embedding dimensions.
func (s *OllamaService) Dimensions() int {
	return int(s.dimensions.Load())
}

// Provider returns the provider name.
func (s *OllamaService) Provider() Provider {
	return ProviderOllama
}

// ModelName returns the model name.
func (s *OllamaService) ModelName() string {
	return s.model
}

// passageInput collapses the layout whitespace left by text extraction and
// adds the model's passage prefix.
func (s *OllamaService) passageInput(text string) string {
	return s.prefixes.passage + strings.Join(strings.Fields(text), " ")
}

func (s *OllamaService) questionInput(text string) string {
	return s.prefixes.question + strings.TrimSpace(text)
}

func (s *OllamaService) embedOne(ctx context.Context, input string) ([]float32, error) {
	vecs, err := s.embedTexts(ctx, []string{input})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (s *OllamaService) embedTexts(ctx context.Context, inputs []string) ([][]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{
		Model:     s.model,
		Input:     inputs,
		KeepAlive: ollamaKeepAlive,
		Truncate:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	log.Debug("Requesting embeddings from Ollama", "model", s.model, "count", len(inputs))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		err := fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(msg))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, retry.Permanent(err)
		}
		return nil, err
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(result.Embeddings) != len(inputs) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d inputs", len(result.Embeddings), len(inputs))
	}

	if got := len(result.Embeddings[0]); got > 0 && got != s.Dimensions() {
		if s.pinned {
			return nil, retry.Permanent(fmt.Errorf("model %s returned %d dimensions, configured %d", s.model, got, s.Dimensions()))
		}
		log.Debug("Corrected embedding dimensions", "model", s.model, "dimensions", got)
		s.dimensions.Store(int64(got))
	}

	return result.Embeddings, nil
}
