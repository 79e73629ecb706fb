package search

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickcecere/docqa/internal/errs"
	"github.com/nickcecere/docqa/internal/store"
)

// countingCorpus wraps a Corpus and counts chunk scans.
type countingCorpus struct {
	Corpus
	scans int
}

func (c *countingCorpus) ScanAll() ([]store.ChunkRecord, error) {
	c.scans++
	return c.Corpus.ScanAll()
}

func (c *countingCorpus) ScanDocument(name string) ([]store.ChunkRecord, error) {
	c.scans++
	return c.Corpus.ScanDocument(name)
}

func createTestStore(t *testing.T) *store.SQLiteStore {
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), 3)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	_, err = st.IngestDocument(store.DocumentInput{Name: "sky.txt"}, []store.ChunkInput{
		{Content: "The sky is blue.", Embedding: []float32{1, 0, 0}},
		{Content: "Clouds are white.", Embedding: []float32{0.7, 0.7, 0}},
	})
	require.NoError(t, err)

	_, err = st.IngestDocument(store.DocumentInput{Name: "grass.txt"}, []store.ChunkInput{
		{Content: "The grass is green.", Embedding: []float32{0, 1, 0}},
		{Content: "Soil is brown.", Embedding: []float32{0, 0, 1}},
	})
	require.NoError(t, err)

	return st
}

func TestSearchCorpus(t *testing.T) {
	searcher := New(createTestStore(t))

	results, err := searcher.SearchCorpus(context.Background(), []float32{1, 0, 0}, Options{TopK: 2})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "The sky is blue.", results[0].Content)
	assert.Equal(t, "sky.txt", results[0].DocumentName)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.Equal(t, "Clouds are white.", results[1].Content)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
}

func TestSearchCorpus_TopKLargerThanCorpus(t *testing.T) {
	searcher := New(createTestStore(t))

	results, err := searcher.SearchCorpus(context.Background(), []float32{0, 1, 0}, Options{TopK: 50})
	require.NoError(t, err)
	assert.Len(t, results, 4)
}

func TestSearchCorpus_DefaultTopK(t *testing.T) {
	searcher := New(createTestStore(t))

	results, err := searcher.SearchCorpus(context.Background(), []float32{0, 1, 0}, Options{})
	require.NoError(t, err)
	assert.Len(t, results, 4)
	assert.Equal(t, 5, DefaultOptions().TopK)
}

func TestSearchCorpus_Empty(t *testing.T) {
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "empty.db"), 3)
	require.NoError(t, err)
	defer st.Close()

	results, err := New(st).SearchCorpus(context.Background(), []float32{1, 0, 0}, Options{TopK: 5})
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestSearchCorpus_MinScore(t *testing.T) {
	searcher := New(createTestStore(t))

	results, err := searcher.SearchCorpus(context.Background(), []float32{1, 0, 0}, Options{TopK: 10, MinScore: 0.5})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, "sky.txt", r.DocumentName)
	}
}

func TestSearchCorpus_DimensionMismatch(t *testing.T) {
	searcher := New(createTestStore(t))

	_, err := searcher.SearchCorpus(context.Background(), []float32{1, 0}, Options{TopK: 5})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestSearchDocument(t *testing.T) {
	searcher := New(createTestStore(t))

	results, err := searcher.SearchDocument(context.Background(), "grass.txt", []float32{1, 0, 0}, Options{TopK: 5})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, "grass.txt", r.DocumentName)
	}
}

func TestSearchDocument_NotFound(t *testing.T) {
	corpus := &countingCorpus{Corpus: createTestStore(t)}
	searcher := New(corpus)

	_, err := searcher.SearchDocument(context.Background(), "missing.txt", []float32{1, 0, 0}, Options{TopK: 5})
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))
	assert.ErrorIs(t, err, errs.ErrDocumentNotFound)
	assert.Zero(t, corpus.scans)
}

func TestSearchHistory(t *testing.T) {
	st := createTestStore(t)
	_, err := st.AppendHistory(store.HistoryInput{Question: "sky?", Answer: "blue", QuestionEmbedding: []float32{1, 0, 0}})
	require.NoError(t, err)
	_, err = st.AppendHistory(store.HistoryInput{Question: "grass?", Answer: "green", QuestionEmbedding: []float32{0, 1, 0}})
	require.NoError(t, err)

	results, err := New(st).SearchHistory(context.Background(), []float32{0.1, 0.9, 0}, Options{TopK: 1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "grass?", results[0].Entry.Question)
}

func TestSearchCancellation(t *testing.T) {
	searcher := New(createTestStore(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := searcher.SearchCorpus(ctx, []float32{1, 0, 0}, Options{TopK: 5})
	assert.ErrorIs(t, err, context.Canceled)
}
