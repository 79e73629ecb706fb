// Package indexer turns uploaded files into registered documents with
// embedded chunks.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nickcecere/docqa/internal/config"
	"github.com/nickcecere/docqa/internal/embeddings"
	"github.com/nickcecere/docqa/internal/errs"
	"github.com/nickcecere/docqa/internal/extract"
	"github.com/nickcecere/docqa/internal/fs"
	"github.com/nickcecere/docqa/internal/store"
)

// embedBatchSize is the number of chunks sent in one embedding request.
const embedBatchSize = 50

// Uploader validates, saves, extracts, chunks, embeds and registers
// documents.
type Uploader struct {
	store     store.Store
	embedder  embeddings.Service
	extractor extract.Extractor
	chunker   *fs.TextChunker
	cfg       *config.Config

	uploadsDir string
	maxBytes   int64

	// names serialises picking a free name and creating its file.
	names sync.Mutex

	// Progress tracking
	progress Progress
	mu       sync.Mutex
}

// UploadResult describes a stored upload.
type UploadResult struct {
	SavedAs   string `json:"saved_as"`
	SizeBytes int64  `json:"size_bytes"`
	MIME      string `json:"mime"`
	Chunks    int    `json:"chunks"`
}

// New creates an Uploader. Files are saved under cfg.Ingest.UploadsDir.
func New(st store.Store, emb embeddings.Service, ext extract.Extractor, cfg *config.Config) *Uploader {
	uploadsDir := cfg.Ingest.UploadsDir
	if uploadsDir == "" {
		uploadsDir = config.DefaultUploadsDir()
	}
	maxBytes := cfg.Ingest.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = config.DefaultMaxUploadBytes
	}

	chunker := fs.NewTextChunker(fs.ChunkOptions{
		ChunkSize:    cfg.Ingest.ChunkSize,
		ChunkOverlap: cfg.Ingest.ChunkOverlap,
	})
	if got := chunker.Options(); got.ChunkOverlap != cfg.Ingest.ChunkOverlap {
		log.Warn("Adjusted chunk overlap", "configured", cfg.Ingest.ChunkOverlap, "using", got.ChunkOverlap, "chunk_size", got.ChunkSize)
	}

	return &Uploader{
		store:     st,
		embedder:  emb,
		extractor: ext,
		chunker:   chunker,
		cfg:        cfg,
		uploadsDir: uploadsDir,
		maxBytes:   maxBytes,
	}
}

// UploadsDir returns the directory uploads are saved in.
func (u *Uploader) UploadsDir() string {
	return u.uploadsDir
}

// SanitizeFilename reduces name to a bare file name with no path components
// or parent references.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, "..", "")
	base = strings.TrimSpace(base)
	if base == "." || base == "/" {
		return ""
	}
	return base
}

// UploadDocument stores content as a new document. Validation failures are
// reported before anything is written. The saved file name, which is also
// the document name, is suffixed _1, _2, ... when the name is taken.
func (u *Uploader) UploadDocument(ctx context.Context, content []byte, filename string) (*UploadResult, error) {
	const op = "upload_document"

	name := SanitizeFilename(filename)
	if name == "" {
		return nil, errs.Validationf(op, errs.ErrInvalidName, "%q", filename)
	}
	ext := strings.ToLower(filepath.Ext(name))
	if !extract.Supported(name) {
		return nil, errs.Validationf(op, errs.ErrUnsupportedType, "%q", ext)
	}
	if len(content) == 0 {
		return nil, errs.E(errs.Validation, op, errs.ErrEmptyFile)
	}
	if int64(len(content)) > u.maxBytes {
		return nil, errs.Validationf(op, errs.ErrTooLarge, "%d bytes exceeds the %d byte limit", len(content), u.maxBytes)
	}

	start := time.Now()
	mime := extract.DetectMIME(name, content)

	u.names.Lock()
	dest, err := u.saveUnique(name, content)
	u.names.Unlock()
	if err != nil {
		return nil, errs.E(errs.Processing, op, err)
	}
	savedAs := filepath.Base(dest)

	n, err := u.process(ctx, dest, savedAs, mime, content)
	if err != nil {
		if rmErr := os.Remove(dest); rmErr != nil {
			log.Warn("Failed to remove unprocessed upload", "path", dest, "error", rmErr)
		}
		return nil, errs.E(errs.Processing, op, err)
	}

	log.Info("Uploaded document",
		"document", savedAs,
		"bytes", len(content),
		"chunks", n,
		"duration", time.Since(start).Round(time.Millisecond),
	)

	return &UploadResult{
		SavedAs:   savedAs,
		SizeBytes: int64(len(content)),
		MIME:      mime,
		Chunks:    n,
	}, nil
}

// UploadFile reads path and uploads it under its base name.
func (u *Uploader) UploadFile(ctx context.Context, path string) (*UploadResult, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.E(errs.Processing, "upload_file", fmt.Errorf("failed to read file: %w", err))
	}
	return u.UploadDocument(ctx, content, filepath.Base(path))
}

// UploadFileIfNew uploads path unless a document with the same content is
// already registered. It reports whether the file was skipped.
func (u *Uploader) UploadFileIfNew(ctx context.Context, path string) (*UploadResult, bool, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, false, errs.E(errs.Processing, "upload_file", fmt.Errorf("failed to read file: %w", err))
	}
	if u.registered(fs.HashContent(content), path) != "" {
		return nil, true, nil
	}
	res, err := u.UploadDocument(ctx, content, filepath.Base(path))
	if err != nil {
		return nil, false, err
	}
	return res, false, nil
}

// registered returns the name of the document holding content with hash, or
// "" when there is none. Lookup failures count as not registered.
func (u *Uploader) registered(hash, path string) string {
	existing, err := u.store.GetDocumentByHash(hash)
	if err != nil {
		log.Debug("Error checking existing document", "path", path, "error", err)
		return ""
	}
	if existing == nil {
		return ""
	}
	log.Debug("Content already registered, skipping", "path", path, "document", existing.Name)
	return existing.Name
}

// process extracts, chunks and embeds the saved file, then registers it with
// all its chunks in one transaction.
func (u *Uploader) process(ctx context.Context, path, name, mime string, content []byte) (int, error) {
	text, err := u.extractor.Extract(ctx, path)
	if err != nil {
		return 0, err
	}

	// A document without text is still registered, with no chunks.
	chunks := u.chunker.Chunk(text)
	if len(chunks) == 0 {
		log.Warn("No text to index", "document", name)
	}

	inputs, err := u.embedChunks(ctx, chunks)
	if err != nil {
		return 0, err
	}

	_, err = u.store.IngestDocument(store.DocumentInput{
		Name:      name,
		Path:      path,
		MIME:      mime,
		SizeBytes: int64(len(content)),
		Hash:      fs.HashContent(content),
	}, inputs)
	if err != nil {
		return 0, err
	}
	return len(inputs), nil
}

// embedChunks embeds chunks in batches, keeping their order.
func (u *Uploader) embedChunks(ctx context.Context, chunks []fs.Chunk) ([]store.ChunkInput, error) {
	inputs := make([]store.ChunkInput, 0, len(chunks))

	for i := 0; i < len(chunks); i += embedBatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := min(i+embedBatchSize, len(chunks))
		batch := chunks[i:end]

		texts := make([]string, len(batch))
		for j, c := range batch {
			texts[j] = c.Content
		}

		vectors, err := u.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("failed to generate embeddings: %w", err)
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(batch))
		}

		for j, c := range batch {
			inputs = append(inputs, store.ChunkInput{
				Content:   c.Content,
				Embedding: vectors[j],
			})
		}

		u.mu.Lock()
		u.progress.ProcessedChunks += len(batch)
		u.mu.Unlock()
	}

	return inputs, nil
}

// saveUnique writes content under the first free name in the uploads
// directory. A name is free when neither a file nor a document holds it.
func (u *Uploader) saveUnique(name string, content []byte) (string, error) {
	if err := os.MkdirAll(u.uploadsDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create uploads directory: %w", err)
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	for i := 0; ; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s_%d%s", stem, i, ext)
		}

		existing, err := u.store.GetDocument(candidate)
		if err != nil {
			return "", fmt.Errorf("failed to check document name: %w", err)
		}
		if existing != nil {
			continue
		}

		dest := filepath.Join(u.uploadsDir, candidate)
		f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to create %s: %w", candidate, err)
		}

		if _, err := f.Write(content); err != nil {
			f.Close()
			os.Remove(dest)
			return "", fmt.Errorf("failed to write %s: %w", candidate, err)
		}
		if err := f.Close(); err != nil {
			os.Remove(dest)
			return "", fmt.Errorf("failed to write %s: %w", candidate, err)
		}
		return dest, nil
	}
}

// Progress returns the current ingest progress.
func (u *Uploader) Progress() Progress {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.progress
}
