package mcp

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickcecere/docqa/internal/config"
	"github.com/nickcecere/docqa/internal/embeddings"
	"github.com/nickcecere/docqa/internal/extract"
	"github.com/nickcecere/docqa/internal/indexer"
	"github.com/nickcecere/docqa/internal/qa"
	"github.com/nickcecere/docqa/internal/store"
)

// keywordEmbedder maps text to a fixed axis by keyword.
type keywordEmbedder struct{}

func (keywordEmbedder) vector(text string) []float32 {
	t := strings.ToLower(text)
	switch {
	case strings.Contains(t, "sky"):
		return []float32{1, 0, 0}
	case strings.Contains(t, "grass"):
		return []float32{0, 1, 0}
	default:
		return []float32{0, 0, 1}
	}
}

func (e keywordEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.vector(text), nil
}

func (e keywordEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.vector(text), nil
}

func (e keywordEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (keywordEmbedder) Dimensions() int                { return 3 }
func (keywordEmbedder) Provider() embeddings.Provider { return embeddings.ProviderOllama }
func (keywordEmbedder) ModelName() string             { return "keyword" }

type echoAnswerer struct{}

func (echoAnswerer) GenerateAnswer(ctx context.Context, passages, question string) (string, error) {
	return "From context: " + passages, nil
}

func setupServer(t *testing.T) (*Server, string) {
	t.Helper()
	dir := t.TempDir()

	st, err := store.NewSQLiteStore(filepath.Join(dir, "test.db"), 3)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := config.DefaultConfig()
	cfg.Ingest.UploadsDir = filepath.Join(dir, "uploads")

	emb := keywordEmbedder{}
	svc := qa.New(st, emb, echoAnswerer{}, qa.Options{TopK: 1})
	up := indexer.New(st, emb, extract.New(), cfg)

	return NewServer(svc, up), dir
}

func callTool(t *testing.T, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]any) (string, bool) {
	t.Helper()

	var req mcp.CallToolRequest
	req.Params.Arguments = args

	result, err := handler(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)

	text, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok)
	return text.Text, result.IsError
}

func uploadFile(t *testing.T, s *Server, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	text, isErr := callTool(t, s.Upload, map[string]any{"path": path})
	require.False(t, isErr, text)
}

func TestRegisteredTools(t *testing.T) {
	s, _ := setupServer(t)

	tools := s.MCPServer().ListTools()
	for _, name := range []string{
		"docqa_ask",
		"docqa_ask_document",
		"docqa_upload",
		"docqa_list_documents",
		"docqa_rename_document",
		"docqa_history",
		"docqa_search_history",
	} {
		assert.Contains(t, tools, name)
	}
	assert.Len(t, tools, 7)
}

func TestUploadAndAsk(t *testing.T) {
	s, dir := setupServer(t)
	uploadFile(t, s, dir, "sky.txt", "The sky is blue.")
	uploadFile(t, s, dir, "grass.txt", "The grass is green.")

	text, isErr := callTool(t, s.Ask, map[string]any{"question": "What color is the sky?"})
	assert.False(t, isErr)
	assert.Equal(t, "From context: The sky is blue.\n\nSources: sky.txt", text)

	text, isErr = callTool(t, s.AskDocument, map[string]any{
		"document": "grass.txt",
		"question": "What color is the sky?",
	})
	assert.False(t, isErr)
	assert.Contains(t, text, "Sources: grass.txt")
}

func TestUploadErrors(t *testing.T) {
	s, dir := setupServer(t)

	text, isErr := callTool(t, s.Upload, map[string]any{})
	assert.True(t, isErr)
	assert.Contains(t, text, "path argument is required")

	text, isErr = callTool(t, s.Upload, map[string]any{"path": filepath.Join(dir, "missing.txt")})
	assert.True(t, isErr)
	assert.Contains(t, text, "failed to read")

	path := filepath.Join(dir, "image.png")
	require.NoError(t, os.WriteFile(path, []byte("png"), 0644))
	text, isErr = callTool(t, s.Upload, map[string]any{"path": path})
	assert.True(t, isErr)
	assert.Contains(t, text, "unsupported")
}

func TestUploadWithName(t *testing.T) {
	s, dir := setupServer(t)

	path := filepath.Join(dir, "tmp123.txt")
	require.NoError(t, os.WriteFile(path, []byte("The sky is blue."), 0644))

	text, isErr := callTool(t, s.Upload, map[string]any{"path": path, "name": "sky.txt"})
	require.False(t, isErr, text)
	assert.True(t, strings.HasPrefix(text, "Uploaded sky.txt"))
}

func TestAskErrors(t *testing.T) {
	s, _ := setupServer(t)

	text, isErr := callTool(t, s.Ask, map[string]any{})
	assert.True(t, isErr)
	assert.Contains(t, text, "question argument is required")

	text, isErr = callTool(t, s.Ask, map[string]any{"question": "   "})
	assert.True(t, isErr)
	assert.Contains(t, text, "question")

	text, isErr = callTool(t, s.AskDocument, map[string]any{"document": "missing.txt", "question": "Why?"})
	assert.True(t, isErr)
	assert.Contains(t, text, "not found")

	text, isErr = callTool(t, s.AskDocument, map[string]any{"document": "", "question": "Why?"})
	assert.True(t, isErr)
	assert.Contains(t, text, "not found")
}

func TestAskWithoutDocuments(t *testing.T) {
	s, _ := setupServer(t)

	text, isErr := callTool(t, s.Ask, map[string]any{"question": "What color is the sky?"})
	assert.False(t, isErr)
	assert.Equal(t, qa.NoContextAnswer, text)
}

func TestListAndRenameDocuments(t *testing.T) {
	s, dir := setupServer(t)

	text, _ := callTool(t, s.ListDocuments, nil)
	assert.Equal(t, "No documents uploaded.", text)

	uploadFile(t, s, dir, "sky.txt", "The sky is blue.")
	uploadFile(t, s, dir, "grass.txt", "The grass is green.")

	text, isErr := callTool(t, s.ListDocuments, nil)
	assert.False(t, isErr)
	assert.Contains(t, text, "2 documents")
	assert.Contains(t, text, "- sky.txt (text/plain")

	text, isErr = callTool(t, s.RenameDocument, map[string]any{"old_name": "sky.txt", "new_name": "heavens.txt"})
	assert.False(t, isErr)
	assert.Equal(t, "Renamed sky.txt to heavens.txt", text)

	text, isErr = callTool(t, s.RenameDocument, map[string]any{"old_name": "heavens.txt", "new_name": "grass.txt"})
	assert.True(t, isErr)
	assert.Contains(t, text, "could not rename")

	text, _ = callTool(t, s.ListDocuments, nil)
	assert.Contains(t, text, "heavens.txt")
	assert.NotContains(t, text, "- sky.txt")
}

func TestHistoryTools(t *testing.T) {
	s, dir := setupServer(t)

	text, _ := callTool(t, s.History, nil)
	assert.Equal(t, "No questions asked yet.", text)

	uploadFile(t, s, dir, "sky.txt", "The sky is blue.")
	uploadFile(t, s, dir, "grass.txt", "The grass is green.")

	_, isErr := callTool(t, s.Ask, map[string]any{"question": "What color is the sky?"})
	require.False(t, isErr)
	_, isErr = callTool(t, s.Ask, map[string]any{"question": "What color is the grass?"})
	require.False(t, isErr)

	text, isErr = callTool(t, s.History, map[string]any{"limit": 1})
	assert.False(t, isErr)
	assert.Contains(t, text, "Q: What color is the grass?")
	assert.NotContains(t, text, "Q: What color is the sky?")

	text, isErr = callTool(t, s.SearchHistory, map[string]any{"query": "SKY"})
	assert.False(t, isErr)
	assert.Contains(t, text, "Q: What color is the sky?")
	assert.Contains(t, text, "Sources: sky.txt")
	assert.NotContains(t, text, "grass")

	text, isErr = callTool(t, s.SearchHistory, map[string]any{"query": "volcano"})
	assert.False(t, isErr)
	assert.Equal(t, "No matching history.", text)

	text, isErr = callTool(t, s.SearchHistory, map[string]any{"query": " "})
	assert.True(t, isErr)
	assert.Contains(t, text, "keyword")

	text, isErr = callTool(t, s.SearchHistory, map[string]any{"query": "is the grass green", "semantic": true})
	assert.False(t, isErr)
	assert.True(t, strings.HasPrefix(text, "100.0% match\n[2] Q: What color is the grass?"), text)
}
