// Package search ranks stored chunks and history entries by cosine
// similarity to a query embedding.
package search

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/nickcecere/docqa/internal/errs"
	"github.com/nickcecere/docqa/internal/store"
)

// DefaultTopK is used when a caller passes a non-positive top-k.
const DefaultTopK = 5

// Corpus is the read side of the store the searcher needs.
type Corpus interface {
	ScanAll() ([]store.ChunkRecord, error)
	ScanDocument(documentName string) ([]store.ChunkRecord, error)
	GetDocument(name string) (*store.DocumentRecord, error)
	ScanHistory() ([]store.HistoryEntry, error)
}

// Searcher provides similarity search over the three scopes: the whole
// corpus, a single document, and the Q&A history.
type Searcher struct {
	corpus Corpus
}

// ChunkResult is a ranked chunk.
type ChunkResult struct {
	DocumentName string  `json:"document_name"`
	ChunkIndex   int     `json:"chunk_index"`
	Content      string  `json:"content"`
	Score        float64 `json:"score"` // cosine similarity, higher is better
}

// HistoryResult is a ranked history entry.
type HistoryResult struct {
	Entry store.HistoryEntry `json:"entry"`
	Score float64            `json:"score"`
}

// Options configures a search.
type Options struct {
	// TopK is the maximum number of results to return.
	TopK int

	// MinScore drops results scoring below it. Zero disables the filter.
	MinScore float64
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{TopK: DefaultTopK}
}

// New creates a new Searcher.
func New(corpus Corpus) *Searcher {
	return &Searcher{corpus: corpus}
}

// SearchCorpus ranks every stored chunk against query.
func (s *Searcher) SearchCorpus(ctx context.Context, query []float32, opts Options) ([]ChunkResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	chunks, err := s.corpus.ScanAll()
	if err != nil {
		return nil, fmt.Errorf("failed to scan chunks: %w", err)
	}

	log.Debug("Searching corpus", "candidates", len(chunks), "topK", opts.TopK)
	return rankChunks(query, chunks, opts)
}

// SearchDocument ranks the chunks of one document against query. An unknown
// document is a NotFound error, reported before any chunk is read.
func (s *Searcher) SearchDocument(ctx context.Context, documentName string, query []float32, opts Options) ([]ChunkResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc, err := s.corpus.GetDocument(documentName)
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	if doc == nil {
		return nil, errs.E(errs.NotFound, "search_document", fmt.Errorf("%w: %s", errs.ErrDocumentNotFound, documentName))
	}

	chunks, err := s.corpus.ScanDocument(documentName)
	if err != nil {
		return nil, fmt.Errorf("failed to scan document chunks: %w", err)
	}

	log.Debug("Searching document", "document", documentName, "candidates", len(chunks), "topK", opts.TopK)
	return rankChunks(query, chunks, opts)
}

// SearchHistory ranks past questions by similarity to query.
func (s *Searcher) SearchHistory(ctx context.Context, query []float32, opts Options) ([]HistoryResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := s.corpus.ScanHistory()
	if err != nil {
		return nil, fmt.Errorf("failed to scan history: %w", err)
	}

	ranked, err := Rank(query, entries, func(e store.HistoryEntry) []float32 { return e.QuestionEmbedding }, topK(opts))
	if err != nil {
		return nil, err
	}

	results := []HistoryResult{}
	for _, r := range filterScore(ranked, opts.MinScore) {
		results = append(results, HistoryResult{Entry: r.Item, Score: r.Score})
	}
	return results, nil
}

func rankChunks(query []float32, chunks []store.ChunkRecord, opts Options) ([]ChunkResult, error) {
	ranked, err := Rank(query, chunks, func(c store.ChunkRecord) []float32 { return c.Embedding }, topK(opts))
	if err != nil {
		return nil, err
	}

	results := []ChunkResult{}
	for _, r := range filterScore(ranked, opts.MinScore) {
		results = append(results, ChunkResult{
			DocumentName: r.Item.DocumentName,
			ChunkIndex:   r.Item.ChunkIndex,
			Content:      r.Item.Content,
			Score:        r.Score,
		})
	}
	return results, nil
}

func topK(opts Options) int {
	if opts.TopK <= 0 {
		return DefaultTopK
	}
	return opts.TopK
}

func filterScore[T any](ranked []Scored[T], minScore float64) []Scored[T] {
	if minScore <= 0 {
		return ranked
	}
	kept := ranked[:0]
	for _, r := range ranked {
		if r.Score >= minScore {
			kept = append(kept, r)
		}
	}
	return kept
}
