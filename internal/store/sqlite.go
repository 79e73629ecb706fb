package store

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	_ "github.com/mattn/go-sqlite3"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

func init() {
	// Register sqlite-vec extension
	sqlite_vec.Auto()
}

var _ Store = (*SQLiteStore)(nil)

// Fixed-width so that text ordering matches time ordering.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements Store using SQLite and sqlite-vec.
//
// Reads hold the read lock and writes hold the write lock for their whole
// transaction, so a scan never observes a partially applied write.
type SQLiteStore struct {
	db         *sql.DB
	mu         sync.RWMutex
	dimensions int
}

// NewSQLiteStore opens (or creates) the database at dbPath for embeddings of
// the given dimension.
func NewSQLiteStore(dbPath string, dimensions int) (*SQLiteStore, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("invalid embedding dimensions: %d", dimensions)
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Open database with foreign keys enabled
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if err := ensureVectorTables(db, dimensions); err != nil {
		db.Close()
		return nil, err
	}

	log.Debug("Opened SQLite store", "path", dbPath, "dimensions", dimensions)

	return &SQLiteStore{db: db, dimensions: dimensions}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Dimensions returns the embedding dimension the database is pinned to.
func (s *SQLiteStore) Dimensions() int {
	return s.dimensions
}

func (s *SQLiteStore) checkDimensions(embedding []float32) error {
	if len(embedding) != s.dimensions {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(embedding), s.dimensions)
	}
	return nil
}

// InsertChunk appends one chunk to a registered document.
func (s *SQLiteStore) InsertChunk(documentName, text string, embedding []float32) (int64, error) {
	if err := s.checkDimensions(embedding); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	next, err := nextChunkIndex(tx, documentName)
	if err != nil {
		return 0, err
	}

	id, err := insertChunkTx(tx, documentName, next, text, embedding)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit chunk: %w", err)
	}
	return id, nil
}

// InsertBatch appends chunks to a registered document in one transaction.
func (s *SQLiteStore) InsertBatch(documentName string, chunks []ChunkInput) error {
	for i, c := range chunks {
		if err := s.checkDimensions(c.Embedding); err != nil {
			return fmt.Errorf("chunk %d: %w", i, err)
		}
	}
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	next, err := nextChunkIndex(tx, documentName)
	if err != nil {
		return err
	}

	for i, c := range chunks {
		if _, err := insertChunkTx(tx, documentName, next+i, c.Content, c.Embedding); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunks: %w", err)
	}
	return nil
}

func nextChunkIndex(tx *sql.Tx, documentName string) (int, error) {
	var next int
	err := tx.QueryRow("SELECT COALESCE(MAX(chunk_index) + 1, 0) FROM chunks WHERE document_name = ?", documentName).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("failed to get next chunk index: %w", err)
	}
	return next, nil
}

func insertChunkTx(tx *sql.Tx, documentName string, index int, content string, embedding []float32) (int64, error) {
	result, err := tx.Exec(`
		INSERT INTO chunks (document_name, chunk_index, content)
		VALUES (?, ?, ?)
	`, documentName, index, content)
	if err != nil {
		return 0, fmt.Errorf("failed to insert chunk %d: %w", index, err)
	}

	chunkID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get chunk ID: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO chunk_vectors (chunk_id, embedding)
		VALUES (?, ?)
	`, chunkID, serializeEmbedding(embedding))
	if err != nil {
		return 0, fmt.Errorf("failed to insert vector for chunk %d: %w", index, err)
	}

	return chunkID, nil
}

// ScanAll returns every chunk with its embedding, in insertion order.
func (s *SQLiteStore) ScanAll() ([]ChunkRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.scanChunks(`
		SELECT c.id, c.document_name, c.chunk_index, c.content, v.embedding
		FROM chunks c
		JOIN chunk_vectors v ON v.chunk_id = c.id
		ORDER BY c.id
	`)
}

// ScanDocument returns one document's chunks in insertion order. An unknown
// document yields an empty slice.
func (s *SQLiteStore) ScanDocument(documentName string) ([]ChunkRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.scanChunks(`
		SELECT c.id, c.document_name, c.chunk_index, c.content, v.embedding
		FROM chunks c
		JOIN chunk_vectors v ON v.chunk_id = c.id
		WHERE c.document_name = ?
		ORDER BY c.id
	`, documentName)
}

func (s *SQLiteStore) scanChunks(query string, args ...any) ([]ChunkRecord, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to scan chunks: %w", err)
	}
	defer rows.Close()

	chunks := []ChunkRecord{}
	for rows.Next() {
		var record ChunkRecord
		var blob []byte
		if err := rows.Scan(&record.ID, &record.DocumentName, &record.ChunkIndex, &record.Content, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		record.Embedding = deserializeEmbedding(blob)
		chunks = append(chunks, record)
	}

	return chunks, rows.Err()
}

// RenameOwner moves all chunks of oldName to newName. newName must already be
// a registered document or the commit fails on the foreign key.
func (s *SQLiteStore) RenameOwner(oldName, newName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := renameOwnerTx(tx, oldName, newName); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rename: %w", err)
	}
	return nil
}

func renameOwnerTx(tx *sql.Tx, oldName, newName string) error {
	if _, err := tx.Exec("UPDATE chunks SET document_name = ? WHERE document_name = ?", newName, oldName); err != nil {
		return fmt.Errorf("failed to rename chunks: %w", err)
	}
	return nil
}

// AddDocument registers a document without chunks.
func (s *SQLiteStore) AddDocument(doc DocumentInput) (*DocumentRecord, error) {
	return s.IngestDocument(doc, nil)
}

// IngestDocument registers a document and stores all of its chunks in one
// transaction. Nothing is persisted if any part fails.
func (s *SQLiteStore) IngestDocument(doc DocumentInput, chunks []ChunkInput) (*DocumentRecord, error) {
	if strings.TrimSpace(doc.Name) == "" {
		return nil, fmt.Errorf("document name cannot be empty")
	}
	for i, c := range chunks {
		if err := s.checkDimensions(c.Embedding); err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	result, err := tx.Exec(`
		INSERT INTO documents (name, path, mime, size_bytes, hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, doc.Name, doc.Path, doc.MIME, doc.SizeBytes, doc.Hash, now.Format(timestampLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to insert document: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get document ID: %w", err)
	}

	for i, c := range chunks {
		if _, err := insertChunkTx(tx, doc.Name, i, c.Content, c.Embedding); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit document: %w", err)
	}

	log.Debug("Stored document", "name", doc.Name, "chunks", len(chunks))

	return &DocumentRecord{
		ID:         id,
		Name:       doc.Name,
		Path:       doc.Path,
		MIME:       doc.MIME,
		SizeBytes:  doc.SizeBytes,
		Hash:       doc.Hash,
		ChunkCount: len(chunks),
		CreatedAt:  now,
	}, nil
}

const documentColumns = `
	d.id, d.name, d.path, d.mime, d.size_bytes, d.hash, d.created_at,
	(SELECT COUNT(*) FROM chunks c WHERE c.document_name = d.name)
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*DocumentRecord, error) {
	var record DocumentRecord
	var createdAt string
	if err := row.Scan(
		&record.ID, &record.Name, &record.Path, &record.MIME,
		&record.SizeBytes, &record.Hash, &createdAt, &record.ChunkCount,
	); err != nil {
		return nil, err
	}
	record.CreatedAt, _ = time.Parse(timestampLayout, createdAt)
	return &record, nil
}

// GetDocument retrieves a document by name. It returns nil, nil when absent.
func (s *SQLiteStore) GetDocument(name string) (*DocumentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, err := scanDocument(s.db.QueryRow("SELECT "+documentColumns+" FROM documents d WHERE d.name = ?", name))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return record, nil
}

// GetDocumentByHash retrieves the oldest document with the given content hash.
func (s *SQLiteStore) GetDocumentByHash(hash string) (*DocumentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, err := scanDocument(s.db.QueryRow("SELECT "+documentColumns+" FROM documents d WHERE d.hash = ? ORDER BY d.id LIMIT 1", hash))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document by hash: %w", err)
	}
	return record, nil
}

// ListDocuments returns all documents in upload order.
func (s *SQLiteStore) ListDocuments() ([]DocumentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query("SELECT " + documentColumns + " FROM documents d ORDER BY d.created_at, d.id")
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	docs := []DocumentRecord{}
	for rows.Next() {
		record, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, *record)
	}

	return docs, rows.Err()
}

// RenameDocument renames a document and all of its chunks atomically. It
// returns false without error when oldName is unknown or newName is taken.
func (s *SQLiteStore) RenameDocument(oldName, newName string) (bool, error) {
	if strings.TrimSpace(newName) == "" {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var oldExists, newExists bool
	if err := tx.QueryRow("SELECT EXISTS(SELECT 1 FROM documents WHERE name = ?)", oldName).Scan(&oldExists); err != nil {
		return false, fmt.Errorf("failed to check document: %w", err)
	}
	if err := tx.QueryRow("SELECT EXISTS(SELECT 1 FROM documents WHERE name = ?)", newName).Scan(&newExists); err != nil {
		return false, fmt.Errorf("failed to check document: %w", err)
	}
	if !oldExists || newExists {
		return false, nil
	}

	// Chunks first; the deferred foreign key is checked at commit.
	if err := renameOwnerTx(tx, oldName, newName); err != nil {
		return false, err
	}
	if _, err := tx.Exec("UPDATE documents SET name = ? WHERE name = ?", newName, oldName); err != nil {
		return false, fmt.Errorf("failed to rename document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit rename: %w", err)
	}

	log.Debug("Renamed document", "from", oldName, "to", newName)
	return true, nil
}

// DeleteDocument removes a document with its chunks and vectors. It returns
// false when the document does not exist.
func (s *SQLiteStore) DeleteDocument(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec("DELETE FROM chunk_vectors WHERE chunk_id IN (SELECT id FROM chunks WHERE document_name = ?)", name)
	if err != nil {
		return false, fmt.Errorf("failed to delete vectors: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM chunks WHERE document_name = ?", name); err != nil {
		return false, fmt.Errorf("failed to delete chunks: %w", err)
	}

	result, err := tx.Exec("DELETE FROM documents WHERE name = ?", name)
	if err != nil {
		return false, fmt.Errorf("failed to delete document: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete document: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit delete: %w", err)
	}
	return true, nil
}

// AppendHistory records an answered question.
func (s *SQLiteStore) AppendHistory(entry HistoryInput) (*HistoryEntry, error) {
	if err := s.checkDimensions(entry.QuestionEmbedding); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	result, err := tx.Exec(`
		INSERT INTO history (sources, question, answer, created_at)
		VALUES (?, ?, ?, ?)
	`, entry.Sources, entry.Question, entry.Answer, now.Format(timestampLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to insert history entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get history ID: %w", err)
	}

	_, err = tx.Exec("INSERT INTO history_vectors (entry_id, embedding) VALUES (?, ?)", id, serializeEmbedding(entry.QuestionEmbedding))
	if err != nil {
		return nil, fmt.Errorf("failed to insert history vector: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit history entry: %w", err)
	}

	return &HistoryEntry{
		ID:                id,
		Sources:           entry.Sources,
		Question:          entry.Question,
		Answer:            entry.Answer,
		QuestionEmbedding: entry.QuestionEmbedding,
		CreatedAt:         now,
	}, nil
}

// ListHistory returns all entries, newest first.
func (s *SQLiteStore) ListHistory() ([]HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryHistory(`
		SELECT id, sources, question, answer, created_at
		FROM history ORDER BY id DESC
	`, false)
}

// SearchHistory returns entries whose question or answer contains keyword,
// ignoring case, newest first.
func (s *SQLiteStore) SearchHistory(keyword string) ([]HistoryEntry, error) {
	all, err := s.ListHistory()
	if err != nil {
		return nil, err
	}

	// SQLite's LIKE only folds ASCII, so matching happens here.
	needle := strings.ToLower(keyword)
	matches := []HistoryEntry{}
	for _, e := range all {
		if strings.Contains(strings.ToLower(e.Question), needle) || strings.Contains(strings.ToLower(e.Answer), needle) {
			matches = append(matches, e)
		}
	}
	return matches, nil
}

// ScanHistory returns all entries with their question embeddings, in
// insertion order.
func (s *SQLiteStore) ScanHistory() ([]HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryHistory(`
		SELECT h.id, h.sources, h.question, h.answer, h.created_at, v.embedding
		FROM history h
		JOIN history_vectors v ON v.entry_id = h.id
		ORDER BY h.id
	`, true)
}

func (s *SQLiteStore) queryHistory(query string, withEmbedding bool) ([]HistoryEntry, error) {
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	entries := []HistoryEntry{}
	for rows.Next() {
		var e HistoryEntry
		var createdAt string
		dest := []any{&e.ID, &e.Sources, &e.Question, &e.Answer, &createdAt}
		var blob []byte
		if withEmbedding {
			dest = append(dest, &blob)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		e.CreatedAt, _ = time.Parse(timestampLayout, createdAt)
		if withEmbedding {
			e.QuestionEmbedding = deserializeEmbedding(blob)
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// GetStats returns row counts for the database.
func (s *SQLiteStore) GetStats() (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{Dimensions: s.dimensions}

	err := s.db.QueryRow("SELECT COUNT(*), COALESCE(SUM(size_bytes), 0) FROM documents").Scan(&stats.DocumentCount, &stats.TotalSize)
	if err != nil {
		return nil, fmt.Errorf("failed to get document stats: %w", err)
	}

	if err := s.db.QueryRow("SELECT COUNT(*) FROM chunks").Scan(&stats.ChunkCount); err != nil {
		return nil, fmt.Errorf("failed to get chunk count: %w", err)
	}

	if err := s.db.QueryRow("SELECT COUNT(*) FROM history").Scan(&stats.HistoryCount); err != nil {
		return nil, fmt.Errorf("failed to get history count: %w", err)
	}

	return &stats, nil
}

// serializeEmbedding converts a float32 slice to bytes for sqlite-vec.
func serializeEmbedding(embedding []float32) []byte {
	buf := make([]byte, len(embedding)*4)
	for i, v := range embedding {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// deserializeEmbedding is the inverse of serializeEmbedding.
func deserializeEmbedding(buf []byte) []float32 {
	embedding := make([]float32, len(buf)/4)
	for i := range embedding {
		embedding[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return embedding
}
