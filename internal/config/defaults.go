package config

import (
	"os"
	"path/filepath"
)

// Default configuration values
const (
	// Embedding defaults
	DefaultEmbeddingProvider = "ollama"
	DefaultOllamaURL         = "http://localhost:11434"
	DefaultOllamaEmbedModel  = "nomic-embed-text"
	DefaultOpenAIEmbedModel  = "text-embedding-3-small"

	// LLM defaults
	DefaultLLMProvider    = "ollama"
	DefaultOllamaLLMModel = "llama3"
	DefaultOpenAILLMModel = "gpt-4o-mini"
	DefaultAnthropicModel = "claude-3-haiku-20240307"
	DefaultTemperature    = 0.2
	DefaultMaxTokens      = 1024

	// Ingest defaults
	DefaultChunkSize      = 1000
	DefaultChunkOverlap   = 200
	DefaultMaxUploadBytes = 50 << 20 // 50MB
	DefaultMaxFileCount   = 10000
	DefaultIngestWorkers  = 4

	// Search defaults
	DefaultTopK = 5

	// Database
	DefaultDBFileName = "docqa.db"
)

// DefaultRateLimit returns the default provider throttling.
func DefaultRateLimit() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 10,
		Burst:             10,
		MaxAttempts:       3,
		BaseDelayMS:       500,
	}
}

// DefaultIgnorePatterns returns the default list of patterns skipped by
// directory ingest.
func DefaultIgnorePatterns() []string {
	return []string{
		// Dependencies and build outputs
		"node_modules/",
		"vendor/",
		".venv/",
		"venv/",
		"dist/",
		"build/",
		"__pycache__/",

		// IDE/Editor
		".idea/",
		".vscode/",
		"*.swp",
		"*~",

		// Version control
		".git/",
		".svn/",
		".hg/",

		// Office lock and temp files
		"~$*",
		"*.tmp",

		// Misc
		".DS_Store",
		"Thumbs.db",
		".env",
		".env.*",
		"*.log",
	}
}

// DefaultConfigDir returns the default configuration directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/docqa"
	}
	return filepath.Join(home, ".config", "docqa")
}

// DefaultDataDir returns the default data directory path.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".local/share/docqa"
	}
	return filepath.Join(home, ".local", "share", "docqa")
}

// DefaultDatabasePath returns the default database file path.
func DefaultDatabasePath() string {
	return filepath.Join(DefaultDataDir(), DefaultDBFileName)
}

// DefaultUploadsDir returns the directory uploaded files are saved in.
func DefaultUploadsDir() string {
	return filepath.Join(DefaultDataDir(), "uploads")
}
