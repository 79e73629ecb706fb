package fs

import (
	"strings"
	"unicode"
)

// TextChunker splits text into overlapping windows of at most ChunkSize
// characters, preferring to cut at sentence ends and then at whitespace.
type TextChunker struct {
	opts ChunkOptions
}

// NewTextChunker creates a new text chunker.
func NewTextChunker(opts ChunkOptions) *TextChunker {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkOptions().ChunkSize
	}
	if opts.ChunkOverlap < 0 {
		opts.ChunkOverlap = 0
	}
	if opts.ChunkOverlap >= opts.ChunkSize {
		opts.ChunkOverlap = opts.ChunkSize / 4
	}

	return &TextChunker{opts: opts}
}

// Options returns the effective options after normalisation.
func (c *TextChunker) Options() ChunkOptions {
	return c.opts
}

// Chunk splits text into chunks. Surrounding whitespace is trimmed first; an
// empty result yields no chunks. No chunk is whitespace only.
func (c *TextChunker) Chunk(text string) []Chunk {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	runes := []rune(trimmed)
	if len(runes) <= c.opts.ChunkSize {
		return []Chunk{{Content: trimmed, StartChar: 0, EndChar: len(runes)}}
	}

	var chunks []Chunk
	start := 0
	for start < len(runes) {
		end := start + c.opts.ChunkSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = c.boundary(runes, start, end)
		}

		// Whitespace-only windows come from layout runs in extracted text.
		// Skip them; the run carries nothing worth embedding.
		if isBlank(runes[start:end]) {
			start = end
			continue
		}

		chunks = append(chunks, Chunk{
			Content:    string(runes[start:end]),
			StartChar:  start,
			EndChar:    end,
			ChunkIndex: len(chunks),
		})

		if end == len(runes) {
			break
		}

		next := end - c.opts.ChunkOverlap
		if next <= start {
			next = end
		}
		start = next
	}

	return chunks
}

// boundary pulls end back to a natural break inside runes[start:end]. The
// window keeps at least half its size; otherwise end is returned unchanged.
func (c *TextChunker) boundary(runes []rune, start, end int) int {
	floor := start + c.opts.ChunkSize/2
	if floor <= start {
		floor = start + 1
	}

	// Sentence terminator followed by whitespace; the cut lands after the
	// terminator so the whitespace opens the next chunk.
	for i := end - 1; i >= floor; i-- {
		if isSentenceEnd(runes[i]) && i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
			return i + 1
		}
	}

	for i := end - 1; i >= floor; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}

	return end
}

func isBlank(runes []rune) bool {
	for _, r := range runes {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', '\n', '。', '！', '？':
		return true
	}
	return false
}
