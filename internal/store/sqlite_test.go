package store

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDims = 4

func TestNewSQLiteStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "test.db")

	store, err := NewSQLiteStore(dbPath, testDims)
	require.NoError(t, err)
	defer store.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err)
	assert.Equal(t, testDims, store.Dimensions())
}

func TestNewSQLiteStore_DimensionsArePinned(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := NewSQLiteStore(dbPath, testDims)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// Reopening with the same dimension is fine.
	store, err = NewSQLiteStore(dbPath, testDims)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = NewSQLiteStore(dbPath, 8)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = NewSQLiteStore(dbPath, 0)
	assert.Error(t, err)
}

func TestIngestAndScanDocument(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	doc, err := store.IngestDocument(DocumentInput{
		Name:      "report.pdf",
		Path:      "/uploads/report.pdf",
		MIME:      "application/pdf",
		SizeBytes: 1024,
		Hash:      "abc",
	}, []ChunkInput{
		{Content: "first", Embedding: vec(1, 0, 0, 0)},
		{Content: "second", Embedding: vec(0, 1, 0, 0)},
		{Content: "third", Embedding: vec(0, 0, 1, 0)},
	})
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", doc.Name)
	assert.Equal(t, 3, doc.ChunkCount)

	chunks, err := store.ScanDocument("report.pdf")
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	for i, c := range chunks {
		assert.Equal(t, i, c.ChunkIndex)
		assert.Equal(t, "report.pdf", c.DocumentName)
		assert.Len(t, c.Embedding, testDims)
	}
	assert.Equal(t, "second", chunks[1].Content)
	assert.Equal(t, vec(0, 1, 0, 0), chunks[1].Embedding)

	got, err := store.GetDocument("report.pdf")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, doc.ID, got.ID)
	assert.Equal(t, "application/pdf", got.MIME)
	assert.Equal(t, int64(1024), got.SizeBytes)
	assert.Equal(t, 3, got.ChunkCount)
	assert.False(t, got.CreatedAt.IsZero())

	byHash, err := store.GetDocumentByHash("abc")
	require.NoError(t, err)
	require.NotNil(t, byHash)
	assert.Equal(t, "report.pdf", byHash.Name)

	missing, err := store.GetDocument("missing.pdf")
	require.NoError(t, err)
	assert.Nil(t, missing)

	none, err := store.ScanDocument("missing.pdf")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestIngestDocument_DuplicateName(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	_, err := store.AddDocument(DocumentInput{Name: "a.txt"})
	require.NoError(t, err)

	_, err = store.IngestDocument(DocumentInput{Name: "a.txt"}, []ChunkInput{{Content: "x", Embedding: vec(1, 0, 0, 0)}})
	assert.Error(t, err)

	chunks, err := store.ScanAll()
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestIngestDocument_DimensionMismatchPersistsNothing(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	_, err := store.IngestDocument(DocumentInput{Name: "a.txt"}, []ChunkInput{
		{Content: "ok", Embedding: vec(1, 0, 0, 0)},
		{Content: "bad", Embedding: []float32{1, 0}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	doc, err := store.GetDocument("a.txt")
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestInsertChunk_AppendsAtNextIndex(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	_, err := store.AddDocument(DocumentInput{Name: "notes.md"})
	require.NoError(t, err)

	id1, err := store.InsertChunk("notes.md", "one", vec(1, 0, 0, 0))
	require.NoError(t, err)
	id2, err := store.InsertChunk("notes.md", "two", vec(0, 1, 0, 0))
	require.NoError(t, err)
	assert.Greater(t, id2, id1)

	require.NoError(t, store.InsertBatch("notes.md", []ChunkInput{
		{Content: "three", Embedding: vec(0, 0, 1, 0)},
		{Content: "four", Embedding: vec(0, 0, 0, 1)},
	}))

	chunks, err := store.ScanDocument("notes.md")
	require.NoError(t, err)
	require.Len(t, chunks, 4)
	for i, c := range chunks {
		assert.Equal(t, i, c.ChunkIndex)
	}
	assert.Equal(t, "four", chunks[3].Content)
}

func TestInsertChunk_UnknownDocument(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	_, err := store.InsertChunk("ghost.txt", "boo", vec(1, 0, 0, 0))
	assert.Error(t, err)

	chunks, err := store.ScanAll()
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestInsertBatch_RejectsWholeBatch(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	_, err := store.AddDocument(DocumentInput{Name: "a.txt"})
	require.NoError(t, err)

	err = store.InsertBatch("a.txt", []ChunkInput{
		{Content: "ok", Embedding: vec(1, 0, 0, 0)},
		{Content: "bad", Embedding: vec(1, 0, 0)},
	})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	chunks, err := store.ScanDocument("a.txt")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestScanAll_InsertionOrder(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ingest(t, store, "a.txt", "a0", "a1")
	ingest(t, store, "b.txt", "b0")
	_, err := store.InsertChunk("a.txt", "a2", vec(1, 1, 0, 0))
	require.NoError(t, err)

	chunks, err := store.ScanAll()
	require.NoError(t, err)

	var contents []string
	for _, c := range chunks {
		contents = append(contents, c.Content)
	}
	assert.Equal(t, []string{"a0", "a1", "b0", "a2"}, contents)
}

func TestListDocuments(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	docs, err := store.ListDocuments()
	require.NoError(t, err)
	assert.Empty(t, docs)

	ingest(t, store, "first.txt", "x")
	ingest(t, store, "second.txt", "y", "z")

	docs, err = store.ListDocuments()
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "first.txt", docs[0].Name)
	assert.Equal(t, "second.txt", docs[1].Name)
	assert.Equal(t, 2, docs[1].ChunkCount)
}

func TestRenameDocument(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ingest(t, store, "a.txt", "one", "two")
	ingest(t, store, "b.txt", "three")

	t.Run("moves every chunk", func(t *testing.T) {
		ok, err := store.RenameDocument("a.txt", "c.txt")
		require.NoError(t, err)
		assert.True(t, ok)

		old, err := store.ScanDocument("a.txt")
		require.NoError(t, err)
		assert.Empty(t, old)

		moved, err := store.ScanDocument("c.txt")
		require.NoError(t, err)
		assert.Len(t, moved, 2)

		doc, err := store.GetDocument("c.txt")
		require.NoError(t, err)
		require.NotNil(t, doc)
		assert.Equal(t, 2, doc.ChunkCount)
	})

	for _, tt := range []struct {
		name     string
		from, to string
	}{
		{"unknown source returns false", "missing.txt", "d.txt"},
		{"existing target returns false", "c.txt", "b.txt"},
		{"same name returns false", "b.txt", "b.txt"},
		{"blank target returns false", "c.txt", "  "},
	} {
		t.Run(tt.name, func(t *testing.T) {
			before := takeSnapshot(t, store)

			ok, err := store.RenameDocument(tt.from, tt.to)
			require.NoError(t, err)
			assert.False(t, ok)

			assert.Equal(t, before, takeSnapshot(t, store))
		})
	}
}

// snapshot is the full registry and chunk state of a store.
type snapshot struct {
	docs   []DocumentRecord
	chunks []ChunkRecord
}

func takeSnapshot(t *testing.T, s *SQLiteStore) snapshot {
	t.Helper()
	docs, err := s.ListDocuments()
	require.NoError(t, err)
	chunks, err := s.ScanAll()
	require.NoError(t, err)
	return snapshot{docs: docs, chunks: chunks}
}

func TestRenameDocument_FailureRollsBackBothTables(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ingest(t, store, "a.txt", "one", "two")

	_, err := store.db.Exec(`
		CREATE TRIGGER fail_rename BEFORE UPDATE OF document_name ON chunks
		WHEN NEW.document_name = 'boom.txt'
		BEGIN
			SELECT RAISE(ABORT, 'injected failure');
		END;
	`)
	require.NoError(t, err)
	before := takeSnapshot(t, store)

	ok, err := store.RenameDocument("a.txt", "boom.txt")
	require.Error(t, err)
	assert.False(t, ok)
	assert.Contains(t, err.Error(), "injected failure")
	assert.Equal(t, before, takeSnapshot(t, store))

	doc, err := store.GetDocument("a.txt")
	require.NoError(t, err)
	require.NotNil(t, doc)

	renamed, err := store.GetDocument("boom.txt")
	require.NoError(t, err)
	assert.Nil(t, renamed)

	chunks, err := store.ScanDocument("a.txt")
	require.NoError(t, err)
	assert.Len(t, chunks, 2)
}

func TestRenameOwner(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ingest(t, store, "a.txt", "one")

	// The target must be registered; otherwise the foreign key rejects it.
	err := store.RenameOwner("a.txt", "unregistered.txt")
	require.Error(t, err)

	chunks, err := store.ScanDocument("a.txt")
	require.NoError(t, err)
	assert.Len(t, chunks, 1)

	_, err = store.AddDocument(DocumentInput{Name: "b.txt"})
	require.NoError(t, err)
	require.NoError(t, store.RenameOwner("a.txt", "b.txt"))

	chunks, err = store.ScanDocument("b.txt")
	require.NoError(t, err)
	assert.Len(t, chunks, 1)
}

func TestRenameDocument_ConcurrentScansSeeOneName(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ingest(t, store, "left.txt", "a", "b", "c", "d")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		names := []string{"left.txt", "right.txt"}
		for i := 0; i < 20; i++ {
			ok, err := store.RenameDocument(names[i%2], names[(i+1)%2])
			assert.NoError(t, err)
			assert.True(t, ok)
		}
	}()

	for i := 0; i < 50; i++ {
		chunks, err := store.ScanAll()
		require.NoError(t, err)
		require.Len(t, chunks, 4)
		for _, c := range chunks {
			assert.Equal(t, chunks[0].DocumentName, c.DocumentName, "scan observed a partial rename")
		}
	}
	wg.Wait()
}

func TestDeleteDocument(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ingest(t, store, "a.txt", "one", "two")
	ingest(t, store, "b.txt", "three")

	ok, err := store.DeleteDocument("a.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	doc, err := store.GetDocument("a.txt")
	require.NoError(t, err)
	assert.Nil(t, doc)

	chunks, err := store.ScanAll()
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "b.txt", chunks[0].DocumentName)

	ok, err = store.DeleteDocument("a.txt")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHistory(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	entries, err := store.ListHistory()
	require.NoError(t, err)
	assert.Empty(t, entries)

	first, err := store.AppendHistory(HistoryInput{
		Sources:           "sky.txt",
		Question:          "What colour is the sky?",
		Answer:            "Blue.",
		QuestionEmbedding: vec(1, 0, 0, 0),
	})
	require.NoError(t, err)
	assert.NotZero(t, first.ID)

	_, err = store.AppendHistory(HistoryInput{
		Sources:           "grass.txt, sky.txt",
		Question:          "Is the grass GREEN?",
		Answer:            "Yes, Ünïcode green.",
		QuestionEmbedding: vec(0, 1, 0, 0),
	})
	require.NoError(t, err)

	t.Run("lists newest first", func(t *testing.T) {
		entries, err := store.ListHistory()
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "Is the grass GREEN?", entries[0].Question)
		assert.Equal(t, "grass.txt, sky.txt", entries[0].Sources)
	})

	t.Run("keyword search is case-insensitive", func(t *testing.T) {
		matches, err := store.SearchHistory("green")
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "Is the grass GREEN?", matches[0].Question)

		matches, err = store.SearchHistory("ÜNÏCODE")
		require.NoError(t, err)
		assert.Len(t, matches, 1)

		matches, err = store.SearchHistory("BLUE")
		require.NoError(t, err)
		assert.Len(t, matches, 1)

		matches, err = store.SearchHistory("purple")
		require.NoError(t, err)
		assert.NotNil(t, matches)
		assert.Empty(t, matches)
	})

	t.Run("scan includes embeddings in insertion order", func(t *testing.T) {
		entries, err := store.ScanHistory()
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, first.ID, entries[0].ID)
		assert.Equal(t, vec(1, 0, 0, 0), entries[0].QuestionEmbedding)
	})

	t.Run("rejects wrong dimension", func(t *testing.T) {
		_, err := store.AppendHistory(HistoryInput{Question: "q", Answer: "a", QuestionEmbedding: vec(1, 0)})
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})
}

func TestGetStats(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	_, err := store.IngestDocument(DocumentInput{Name: "a.txt", SizeBytes: 100}, []ChunkInput{
		{Content: "x", Embedding: vec(1, 0, 0, 0)},
		{Content: "y", Embedding: vec(0, 1, 0, 0)},
	})
	require.NoError(t, err)
	_, err = store.AppendHistory(HistoryInput{Question: "q", Answer: "a", QuestionEmbedding: vec(1, 0, 0, 0)})
	require.NoError(t, err)

	stats, err := store.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DocumentCount)
	assert.Equal(t, 2, stats.ChunkCount)
	assert.Equal(t, 1, stats.HistoryCount)
	assert.Equal(t, int64(100), stats.TotalSize)
	assert.Equal(t, testDims, stats.Dimensions)
}

func TestSerializeEmbedding(t *testing.T) {
	embedding := []float32{1.0, -2.5, 0, float32(math.Pi)}
	blob := serializeEmbedding(embedding)
	assert.Len(t, blob, 16)
	assert.Equal(t, embedding, deserializeEmbedding(blob))
}

func setupTestStore(t *testing.T) *SQLiteStore {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := NewSQLiteStore(dbPath, testDims)
	require.NoError(t, err)

	return store
}

// ingest registers name with one chunk per content, each with a distinct
// embedding.
func ingest(t *testing.T, store *SQLiteStore, name string, contents ...string) {
	t.Helper()
	chunks := make([]ChunkInput, len(contents))
	for i, c := range contents {
		e := make([]float32, testDims)
		e[i%testDims] = 1
		chunks[i] = ChunkInput{Content: c, Embedding: e}
	}
	_, err := store.IngestDocument(DocumentInput{Name: name, Path: fmt.Sprintf("/uploads/%s", name)}, chunks)
	require.NoError(t, err)
}

func vec(values ...float32) []float32 {
	return values
}
