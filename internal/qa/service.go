// Package qa answers questions from the document corpus and keeps the Q&A
// history.
package qa

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/nickcecere/docqa/internal/embeddings"
	"github.com/nickcecere/docqa/internal/errs"
	"github.com/nickcecere/docqa/internal/llm"
	"github.com/nickcecere/docqa/internal/search"
	"github.com/nickcecere/docqa/internal/store"
)

// NoContextAnswer is returned when a search finds nothing to answer from.
const NoContextAnswer = "No relevant document chunks found."

// Options configures retrieval.
type Options struct {
	// TopK is the number of chunks used as context when the caller does not
	// ask for a specific number.
	TopK int

	// MinScore drops chunks scoring below it. Zero disables the filter.
	MinScore float64
}

// Service orchestrates embedding, retrieval, generation and history.
type Service struct {
	store    store.Store
	embedder embeddings.Service
	answerer llm.Answerer
	searcher *search.Searcher
	opts     Options
}

// Answer is the outcome of a question.
type Answer struct {
	RequestID string               `json:"request_id"`
	Question  string               `json:"question"`
	Answer    string               `json:"answer"`
	Sources   []string             `json:"sources"`
	Chunks    []search.ChunkResult `json:"chunks,omitempty"`
	HistoryID int64                `json:"history_id,omitempty"`
}

// Status summarises the corpus and the embedding profile.
type Status struct {
	Documents  int    `json:"documents"`
	Chunks     int    `json:"chunks"`
	History    int    `json:"history"`
	TotalSize  int64  `json:"total_size"`
	Dimensions int    `json:"dimensions"`
	Provider   string `json:"provider"`
	Model      string `json:"model"`
}

// New creates a Service.
func New(st store.Store, emb embeddings.Service, ans llm.Answerer, opts Options) *Service {
	if opts.TopK <= 0 {
		opts.TopK = search.DefaultTopK
	}
	return &Service{
		store:    st,
		embedder: emb,
		answerer: ans,
		searcher: search.New(st),
		opts:     opts,
	}
}

// Ask answers question from the whole corpus using the topK most similar
// chunks. A non-positive topK uses the configured default.
func (s *Service) Ask(ctx context.Context, question string, topK int) (*Answer, error) {
	return s.answer(ctx, "ask", question, topK, nil)
}

// AskInDocument answers question from the chunks of one document. A name
// that is not registered, including the empty name, is NotFound.
func (s *Service) AskInDocument(ctx context.Context, documentName, question string) (*Answer, error) {
	return s.answer(ctx, "ask_document", question, 0, &documentName)
}

// answer runs one request: validate, embed, search, build context, generate
// and log. A nil document searches the whole corpus. Nothing is logged
// unless an answer was generated.
func (s *Service) answer(ctx context.Context, op, question string, topK int, document *string) (*Answer, error) {
	requestID := uuid.NewString()
	logger := log.With("request", requestID, "op", op)
	start := time.Now()

	if strings.TrimSpace(question) == "" {
		return nil, errs.E(errs.Validation, op, errs.ErrEmptyQuestion)
	}
	if topK <= 0 {
		topK = s.opts.TopK
	}

	var documentName string
	if document != nil {
		documentName = *document
		doc, err := s.store.GetDocument(documentName)
		if err != nil {
			return nil, errs.E(errs.Processing, op, fmt.Errorf("failed to get document: %w", err))
		}
		if doc == nil {
			return nil, errs.E(errs.NotFound, op, fmt.Errorf("%w: %s", errs.ErrDocumentNotFound, documentName))
		}
	}

	logger.Debug("Embedding question", "document", documentName, "topK", topK)
	queryVec, err := s.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, errs.E(errs.Processing, op, fmt.Errorf("failed to embed question: %w", err))
	}

	opts := search.Options{TopK: topK, MinScore: s.opts.MinScore}
	var results []search.ChunkResult
	if document != nil {
		results, err = s.searcher.SearchDocument(ctx, documentName, queryVec, opts)
	} else {
		results, err = s.searcher.SearchCorpus(ctx, queryVec, opts)
	}
	if err != nil {
		if errs.IsNotFound(err) {
			return nil, err
		}
		return nil, errs.E(errs.Processing, op, fmt.Errorf("failed to search: %w", err))
	}

	if len(results) == 0 {
		logger.Info("No relevant chunks", "document", documentName)
		return &Answer{
			RequestID: requestID,
			Question:  question,
			Answer:    NoContextAnswer,
		}, nil
	}

	passages := BuildContext(results)
	sources := Sources(results)

	logger.Debug("Generating answer", "chunks", len(results), "sources", len(sources))
	text, err := s.answerer.GenerateAnswer(ctx, passages, question)
	if err != nil {
		return nil, errs.E(errs.Processing, op, err)
	}

	entry, err := s.store.AppendHistory(store.HistoryInput{
		Sources:           strings.Join(sources, ", "),
		Question:          question,
		Answer:            text,
		QuestionEmbedding: queryVec,
	})
	if err != nil {
		return nil, errs.E(errs.Processing, op, fmt.Errorf("failed to record history: %w", err))
	}

	logger.Info("Answered question",
		"sources", strings.Join(sources, ", "),
		"chunks", len(results),
		"duration", time.Since(start).Round(time.Millisecond),
	)

	return &Answer{
		RequestID: requestID,
		Question:  question,
		Answer:    text,
		Sources:   sources,
		Chunks:    results,
		HistoryID: entry.ID,
	}, nil
}

// BuildContext joins the ranked chunk texts with blank lines.
func BuildContext(results []search.ChunkResult) string {
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = r.Content
	}
	return strings.Join(parts, "\n\n")
}

// Sources returns the document names of results, each once, in rank order.
func Sources(results []search.ChunkResult) []string {
	seen := make(map[string]bool, len(results))
	var out []string
	for _, r := range results {
		if seen[r.DocumentName] {
			continue
		}
		seen[r.DocumentName] = true
		out = append(out, r.DocumentName)
	}
	return out
}

// ListDocuments returns every document in creation order.
func (s *Service) ListDocuments() ([]store.DocumentRecord, error) {
	docs, err := s.store.ListDocuments()
	if err != nil {
		return nil, errs.E(errs.Processing, "list_documents", err)
	}
	return docs, nil
}

// RenameDocument renames a document and all its chunks together. It reports
// false when oldName does not exist or newName is taken or blank.
func (s *Service) RenameDocument(oldName, newName string) (bool, error) {
	ok, err := s.store.RenameDocument(oldName, strings.TrimSpace(newName))
	if err != nil {
		return false, errs.E(errs.Processing, "rename_document", err)
	}
	if ok {
		log.Info("Renamed document", "from", oldName, "to", newName)
	}
	return ok, nil
}

// DeleteDocument removes a document, its chunks and its saved file.
func (s *Service) DeleteDocument(name string) (bool, error) {
	const op = "delete_document"

	doc, err := s.store.GetDocument(name)
	if err != nil {
		return false, errs.E(errs.Processing, op, err)
	}
	if doc == nil {
		return false, nil
	}

	ok, err := s.store.DeleteDocument(name)
	if err != nil {
		return false, errs.E(errs.Processing, op, err)
	}

	if ok && doc.Path != "" {
		if err := os.Remove(doc.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn("Failed to remove document file", "path", doc.Path, "error", err)
		}
	}
	if ok {
		log.Info("Deleted document", "document", name, "chunks", doc.ChunkCount)
	}
	return ok, nil
}

// ListHistory returns every history entry, newest first.
func (s *Service) ListHistory() ([]store.HistoryEntry, error) {
	entries, err := s.store.ListHistory()
	if err != nil {
		return nil, errs.E(errs.Processing, "list_history", err)
	}
	return entries, nil
}

// SearchHistory returns history entries whose question or answer contains
// keyword, ignoring case.
func (s *Service) SearchHistory(keyword string) ([]store.HistoryEntry, error) {
	if strings.TrimSpace(keyword) == "" {
		return nil, errs.E(errs.Validation, "search_history", errs.ErrEmptyKeyword)
	}
	entries, err := s.store.SearchHistory(keyword)
	if err != nil {
		return nil, errs.E(errs.Processing, "search_history", err)
	}
	return entries, nil
}

// SearchHistorySemantic ranks past questions by similarity to question.
func (s *Service) SearchHistorySemantic(ctx context.Context, question string, topK int) ([]search.HistoryResult, error) {
	const op = "search_history_semantic"

	if strings.TrimSpace(question) == "" {
		return nil, errs.E(errs.Validation, op, errs.ErrEmptyQuestion)
	}
	if topK <= 0 {
		topK = s.opts.TopK
	}

	queryVec, err := s.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, errs.E(errs.Processing, op, fmt.Errorf("failed to embed question: %w", err))
	}

	results, err := s.searcher.SearchHistory(ctx, queryVec, search.Options{TopK: topK, MinScore: s.opts.MinScore})
	if err != nil {
		return nil, errs.E(errs.Processing, op, err)
	}
	return results, nil
}

// Status returns corpus counts and the embedding profile.
func (s *Service) Status() (*Status, error) {
	stats, err := s.store.GetStats()
	if err != nil {
		return nil, errs.E(errs.Processing, "status", err)
	}
	return &Status{
		Documents:  stats.DocumentCount,
		Chunks:     stats.ChunkCount,
		History:    stats.HistoryCount,
		TotalSize:  stats.TotalSize,
		Dimensions: stats.Dimensions,
		Provider:   string(s.embedder.Provider()),
		Model:      s.embedder.ModelName(),
	}, nil
}
