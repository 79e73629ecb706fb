// Package fs provides the file system side of ingestion: walking a document
// tree and splitting extracted text into chunks.
package fs

import "time"

// FileInfo represents metadata about a document file found by the walker.
type FileInfo struct {
	Path    string    // Absolute path to the file
	RelPath string    // Path relative to the root
	Size    int64     // File size in bytes
	ModTime time.Time // Last modification time
	Hash    string    // xxhash of file contents
	Ext     string    // Lower-cased extension including the dot
}

// Chunk is one window of a document's text.
//
// StartChar and EndChar are rune offsets into the trimmed text the chunk was
// cut from; EndChar is exclusive.
type Chunk struct {
	Content    string
	StartChar  int
	EndChar    int
	ChunkIndex int
}

// WalkOptions configures the document walker.
type WalkOptions struct {
	// Root is the directory to start walking from.
	Root string

	// MaxFileSize is the largest document accepted, in bytes.
	MaxFileSize int64

	// MaxFileCount stops the walk after this many documents.
	MaxFileCount int

	// IgnorePatterns are additional patterns to ignore (gitignore syntax).
	IgnorePatterns []string

	// IgnoreFiles are gitignore-syntax files read from the root, if present.
	IgnoreFiles []string

	// IncludeHidden includes hidden files and directories.
	IncludeHidden bool

	// Extensions limits the walk to these document types (e.g. ".pdf").
	// Empty means every file.
	Extensions []string
}

// ChunkOptions configures the chunker.
type ChunkOptions struct {
	// ChunkSize is the maximum size of a chunk in characters.
	ChunkSize int

	// ChunkOverlap is the number of characters shared by consecutive chunks.
	ChunkOverlap int
}

// DefaultWalkOptions returns sensible defaults for walking.
func DefaultWalkOptions() WalkOptions {
	return WalkOptions{
		MaxFileSize:  50 * 1024 * 1024,
		MaxFileCount: 10000,
		IgnoreFiles:  []string{".gitignore", ".docqaignore"},
	}
}

// DefaultChunkOptions returns sensible defaults for chunking.
func DefaultChunkOptions() ChunkOptions {
	return ChunkOptions{
		ChunkSize:    1000,
		ChunkOverlap: 200,
	}
}

// Walker walks a directory tree and yields documents.
type Walker interface {
	// Walk calls fn for each document. The walk stops if fn returns an error.
	Walk(fn func(FileInfo) error) error

	// Stats returns statistics about the last walk.
	Stats() WalkStats
}

// WalkStats counts what a walk found and why files were passed over.
type WalkStats struct {
	Documents    int
	TotalBytes   int64
	TempFiles    int // lock, backup and partial-download files
	Unsupported  int // extension not accepted
	Ignored      int // hidden or matched by an ignore rule
	Empty        int
	TooLarge     int
	SkippedBytes int64 // bytes of files over the size limit
	DirsSkipped  int
}

// FilesSkipped returns the number of files passed over for any reason.
func (s WalkStats) FilesSkipped() int {
	return s.TempFiles + s.Unsupported + s.Ignored + s.Empty + s.TooLarge
}

// Chunker splits document text into chunks.
type Chunker interface {
	Chunk(text string) []Chunk
}
