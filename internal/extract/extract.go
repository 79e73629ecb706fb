// Package extract turns uploaded files into plain text for chunking.
package extract

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/log"
)

// Extractor reads a stored file and returns its text content.
type Extractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// format converts raw file bytes to text.
type format func(path string, data []byte) (string, error)

// formats maps lower-case extensions to their converter.
var formats = map[string]format{
	".txt":      plainText,
	".text":     plainText,
	".csv":      plainText,
	".json":     plainText,
	".md":       markdownText,
	".markdown": markdownText,
	".html":     htmlText,
	".htm":      htmlText,
	".docx":     docxText,
	".pdf":      pdfText,
}

// fallbackMIME covers types missing from the system mime tables.
var fallbackMIME = map[string]string{
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".csv":      "text/csv",
	".docx":     "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// FileExtractor dispatches on the file extension.
type FileExtractor struct{}

var _ Extractor = (*FileExtractor)(nil)

// New creates a FileExtractor.
func New() *FileExtractor {
	return &FileExtractor{}
}

// Supported reports whether files named like filename can be extracted.
func Supported(filename string) bool {
	_, ok := formats[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// SupportedExtensions returns the accepted extensions, sorted.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(formats))
	for ext := range formats {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// DetectMIME returns the MIME type for a file, preferring the extension and
// sniffing content when the extension is unknown to the system.
func DetectMIME(filename string, content []byte) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if t, ok := fallbackMIME[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return http.DetectContentType(content)
}

// Extract reads path and converts it according to its extension.
func (e *FileExtractor) Extract(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ext := strings.ToLower(filepath.Ext(path))
	convert, ok := formats[ext]
	if !ok {
		return "", fmt.Errorf("no extractor for %q", ext)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	text, err := convert(path, data)
	if err != nil {
		return "", fmt.Errorf("failed to extract %s: %w", filepath.Base(path), err)
	}

	log.Debug("Extracted text", "path", path, "bytes", len(data), "chars", utf8.RuneCountInString(text))
	return text, nil
}

func plainText(_ string, data []byte) (string, error) {
	data = trimBOM(data)
	if !utf8.Valid(data) {
		return "", fmt.Errorf("file is not valid UTF-8 text")
	}
	return strings.ReplaceAll(string(data), "\r\n", "\n"), nil
}

func trimBOM(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return data[3:]
	}
	return data
}
