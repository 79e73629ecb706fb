// Package store persists documents, chunk embeddings and Q&A history in SQLite,
// with vectors held in sqlite-vec virtual tables.
package store

import (
	"errors"
	"time"
)

// ErrDimensionMismatch is returned when a vector's length differs from the
// dimension the database was created with.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// ChunkRecord is one stored chunk of a document.
type ChunkRecord struct {
	ID           int64     `json:"id"`
	DocumentName string    `json:"document_name"`
	ChunkIndex   int       `json:"chunk_index"`
	Content      string    `json:"content"`
	Embedding    []float32 `json:"-"`
}

// ChunkInput is a chunk to be stored. Indices are assigned by the store.
type ChunkInput struct {
	Content   string
	Embedding []float32
}

// DocumentRecord is a registered document.
type DocumentRecord struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	MIME       string    `json:"mime"`
	SizeBytes  int64     `json:"size_bytes"`
	Hash       string    `json:"hash"` // xxhash of the uploaded bytes
	ChunkCount int       `json:"chunk_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// DocumentInput represents document data for registration.
type DocumentInput struct {
	Name      string
	Path      string
	MIME      string
	SizeBytes int64
	Hash      string
}

// HistoryEntry is one answered question. Sources holds the contributing
// document names joined with ", ".
type HistoryEntry struct {
	ID                int64     `json:"id"`
	Sources           string    `json:"sources"`
	Question          string    `json:"question"`
	Answer            string    `json:"answer"`
	QuestionEmbedding []float32 `json:"-"`
	CreatedAt         time.Time `json:"created_at"`
}

// HistoryInput represents a history entry to append.
type HistoryInput struct {
	Sources           string
	Question          string
	Answer            string
	QuestionEmbedding []float32
}

// Stats contains row counts for the whole database.
type Stats struct {
	DocumentCount int   `json:"document_count"`
	ChunkCount    int   `json:"chunk_count"`
	HistoryCount  int   `json:"history_count"`
	TotalSize     int64 `json:"total_size"` // Sum of document sizes in bytes
	Dimensions    int   `json:"dimensions"`
}
