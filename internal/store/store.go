package store

// EmbeddingStore holds chunk records and their embeddings.
type EmbeddingStore interface {
	// InsertChunk appends a chunk at the document's next chunk index.
	InsertChunk(documentName, text string, embedding []float32) (int64, error)
	// InsertBatch appends all chunks in one transaction, or none of them.
	InsertBatch(documentName string, chunks []ChunkInput) error
	// ScanAll returns every chunk in insertion order.
	ScanAll() ([]ChunkRecord, error)
	// ScanDocument returns the chunks of one document in insertion order.
	ScanDocument(documentName string) ([]ChunkRecord, error)
	// RenameOwner moves every chunk of old to new atomically. The new name
	// must already be registered.
	RenameOwner(oldName, newName string) error
}

// DocumentRegistry holds document identity.
type DocumentRegistry interface {
	AddDocument(doc DocumentInput) (*DocumentRecord, error)
	IngestDocument(doc DocumentInput, chunks []ChunkInput) (*DocumentRecord, error)
	GetDocument(name string) (*DocumentRecord, error)
	GetDocumentByHash(hash string) (*DocumentRecord, error)
	ListDocuments() ([]DocumentRecord, error)
	RenameDocument(oldName, newName string) (bool, error)
	DeleteDocument(name string) (bool, error)
}

// HistoryStore is the append-only Q&A log.
type HistoryStore interface {
	AppendHistory(entry HistoryInput) (*HistoryEntry, error)
	ListHistory() ([]HistoryEntry, error)
	SearchHistory(keyword string) ([]HistoryEntry, error)
	ScanHistory() ([]HistoryEntry, error)
}

// Store is the full persistence surface used by the services.
type Store interface {
	EmbeddingStore
	DocumentRegistry
	HistoryStore

	Dimensions() int
	GetStats() (*Stats, error)
	Close() error
}
