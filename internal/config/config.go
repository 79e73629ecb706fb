// Package config handles configuration loading and validation for docqa.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the complete docqa configuration.
type Config struct {
	Embeddings EmbeddingsConfig `mapstructure:"embeddings"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Ingest     IngestConfig     `mapstructure:"ingest"`
	Search     SearchConfig     `mapstructure:"search"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Ignore     []string         `mapstructure:"ignore"`
}

// EmbeddingsConfig configures the embedding service.
type EmbeddingsConfig struct {
	Provider  string            `mapstructure:"provider"`
	Ollama    OllamaEmbedConfig `mapstructure:"ollama"`
	OpenAI    OpenAIEmbedConfig `mapstructure:"openai"`
	RateLimit RateLimitConfig   `mapstructure:"rate_limit"`
}

// OllamaEmbedConfig configures Ollama embeddings.
type OllamaEmbedConfig struct {
	URL        string `mapstructure:"url"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
}

// OpenAIEmbedConfig configures OpenAI embeddings.
type OpenAIEmbedConfig struct {
	Model      string `mapstructure:"model"`
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	Dimensions int    `mapstructure:"dimensions"`
}

// RateLimitConfig throttles and retries calls to a provider.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
	MaxAttempts       int     `mapstructure:"max_attempts"`
	BaseDelayMS       int     `mapstructure:"base_delay_ms"`
}

// DatabaseConfig configures the SQLite database.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// IngestConfig configures uploads and chunking.
type IngestConfig struct {
	ChunkSize      int    `mapstructure:"chunk_size"`
	ChunkOverlap   int    `mapstructure:"chunk_overlap"`
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes"`
	MaxFileCount   int    `mapstructure:"max_file_count"`
	UploadsDir     string `mapstructure:"uploads_dir"`
	InboxDir       string `mapstructure:"inbox_dir"`
	Workers        int    `mapstructure:"workers"`
}

// SearchConfig configures retrieval.
type SearchConfig struct {
	TopK     int     `mapstructure:"top_k"`
	MinScore float64 `mapstructure:"min_score"`
}

// LLMConfig configures the answer generation service.
type LLMConfig struct {
	Provider    string          `mapstructure:"provider"`
	Temperature float64         `mapstructure:"temperature"`
	MaxTokens   int             `mapstructure:"max_tokens"`
	Ollama      OllamaLLMConfig `mapstructure:"ollama"`
	OpenAI      OpenAILLMConfig `mapstructure:"openai"`
	Anthropic   AnthropicConfig `mapstructure:"anthropic"`
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
}

// OllamaLLMConfig configures Ollama LLM.
type OllamaLLMConfig struct {
	URL   string `mapstructure:"url"`
	Model string `mapstructure:"model"`
}

// OpenAILLMConfig configures OpenAI LLM.
type OpenAILLMConfig struct {
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// AnthropicConfig configures Anthropic LLM.
type AnthropicConfig struct {
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// Global configuration instance
var cfg *Config

// Get returns the current configuration.
func Get() *Config {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return cfg
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Embeddings: EmbeddingsConfig{
			Provider: DefaultEmbeddingProvider,
			Ollama: OllamaEmbedConfig{
				URL:   DefaultOllamaURL,
				Model: DefaultOllamaEmbedModel,
			},
			OpenAI: OpenAIEmbedConfig{
				Model: DefaultOpenAIEmbedModel,
			},
			RateLimit: DefaultRateLimit(),
		},
		Database: DatabaseConfig{
			Path: DefaultDatabasePath(),
		},
		Ingest: IngestConfig{
			ChunkSize:      DefaultChunkSize,
			ChunkOverlap:   DefaultChunkOverlap,
			MaxUploadBytes: DefaultMaxUploadBytes,
			MaxFileCount:   DefaultMaxFileCount,
			UploadsDir:     DefaultUploadsDir(),
			Workers:        DefaultIngestWorkers,
		},
		Search: SearchConfig{
			TopK: DefaultTopK,
		},
		LLM: LLMConfig{
			Provider:    DefaultLLMProvider,
			Temperature: DefaultTemperature,
			MaxTokens:   DefaultMaxTokens,
			Ollama: OllamaLLMConfig{
				URL:   DefaultOllamaURL,
				Model: DefaultOllamaLLMModel,
			},
			OpenAI: OpenAILLMConfig{
				Model: DefaultOpenAILLMModel,
			},
			Anthropic: AnthropicConfig{
				Model: DefaultAnthropicModel,
			},
			RateLimit: DefaultRateLimit(),
		},
		Ignore: DefaultIgnorePatterns(),
	}
}

// Load reads configuration from file and environment variables. A .env file
// in the working directory is loaded first; variables already set win.
func Load(configFile string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("Failed to load .env file", "error", err)
	}

	// Set defaults
	setDefaults()

	// Set config file if specified
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		// Search for config in standard locations
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(DefaultConfigDir())
		viper.AddConfigPath(".")

		// Also check for .docqarc.yaml in current directory and parents
		if rcPath := findRCFile(); rcPath != "" {
			viper.SetConfigFile(rcPath)
		}
	}

	// Environment variables
	viper.SetEnvPrefix("DOCQA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		log.Debug("No config file found, using defaults")
	} else {
		log.Debug("Loaded config from", "file", viper.ConfigFileUsed())
	}

	// Unmarshal into config struct
	loaded := &Config{}
	if err := viper.Unmarshal(loaded); err != nil {
		return fmt.Errorf("error parsing config: %w", err)
	}

	loadAPIKeysFromEnv(loaded)

	if err := loaded.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	cfg = loaded
	return nil
}

// Validate checks values that would otherwise fail deep inside a request.
// ingest.chunk_overlap is not checked here: the chunker clamps a negative
// overlap to zero and an overlap of chunk_size or more to a quarter of it.
func (c *Config) Validate() error {
	if c.Ingest.ChunkSize <= 0 {
		return fmt.Errorf("ingest.chunk_size must be positive, got %d", c.Ingest.ChunkSize)
	}
	if c.Ingest.MaxUploadBytes <= 0 {
		return fmt.Errorf("ingest.max_upload_bytes must be positive, got %d", c.Ingest.MaxUploadBytes)
	}
	if c.Ingest.Workers < 1 {
		return fmt.Errorf("ingest.workers must be at least 1, got %d", c.Ingest.Workers)
	}
	if c.Search.TopK < 1 {
		return fmt.Errorf("search.top_k must be at least 1, got %d", c.Search.TopK)
	}
	if c.Search.MinScore < -1 || c.Search.MinScore > 1 {
		return fmt.Errorf("search.min_score must be within [-1, 1], got %g", c.Search.MinScore)
	}
	return nil
}

// setDefaults sets default values in viper.
func setDefaults() {
	// Embeddings
	viper.SetDefault("embeddings.provider", DefaultEmbeddingProvider)
	viper.SetDefault("embeddings.ollama.url", DefaultOllamaURL)
	viper.SetDefault("embeddings.ollama.model", DefaultOllamaEmbedModel)
	viper.SetDefault("embeddings.ollama.dimensions", 0)
	viper.SetDefault("embeddings.openai.model", DefaultOpenAIEmbedModel)
	viper.SetDefault("embeddings.openai.base_url", "")
	viper.SetDefault("embeddings.openai.api_key", "")
	viper.SetDefault("embeddings.openai.dimensions", 0)
	setRateLimitDefaults("embeddings.rate_limit")

	// Database
	viper.SetDefault("database.path", DefaultDatabasePath())

	// Ingest
	viper.SetDefault("ingest.chunk_size", DefaultChunkSize)
	viper.SetDefault("ingest.chunk_overlap", DefaultChunkOverlap)
	viper.SetDefault("ingest.max_upload_bytes", DefaultMaxUploadBytes)
	viper.SetDefault("ingest.max_file_count", DefaultMaxFileCount)
	viper.SetDefault("ingest.uploads_dir", DefaultUploadsDir())
	viper.SetDefault("ingest.inbox_dir", "")
	viper.SetDefault("ingest.workers", DefaultIngestWorkers)

	// Search
	viper.SetDefault("search.top_k", DefaultTopK)
	viper.SetDefault("search.min_score", 0.0)

	// LLM
	viper.SetDefault("llm.provider", DefaultLLMProvider)
	viper.SetDefault("llm.temperature", DefaultTemperature)
	viper.SetDefault("llm.max_tokens", DefaultMaxTokens)
	viper.SetDefault("llm.ollama.url", DefaultOllamaURL)
	viper.SetDefault("llm.ollama.model", DefaultOllamaLLMModel)
	viper.SetDefault("llm.openai.model", DefaultOpenAILLMModel)
	viper.SetDefault("llm.openai.base_url", "")
	viper.SetDefault("llm.openai.api_key", "")
	viper.SetDefault("llm.anthropic.model", DefaultAnthropicModel)
	viper.SetDefault("llm.anthropic.base_url", "")
	viper.SetDefault("llm.anthropic.api_key", "")
	setRateLimitDefaults("llm.rate_limit")

	// Ignore patterns
	viper.SetDefault("ignore", DefaultIgnorePatterns())
}

func setRateLimitDefaults(prefix string) {
	rl := DefaultRateLimit()
	viper.SetDefault(prefix+".requests_per_second", rl.RequestsPerSecond)
	viper.SetDefault(prefix+".burst", rl.Burst)
	viper.SetDefault(prefix+".max_attempts", rl.MaxAttempts)
	viper.SetDefault(prefix+".base_delay_ms", rl.BaseDelayMS)
}

// findRCFile searches for .docqarc.yaml starting from current directory.
func findRCFile() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	dir := cwd
	for {
		rcPath := filepath.Join(dir, ".docqarc.yaml")
		if _, err := os.Stat(rcPath); err == nil {
			return rcPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// loadAPIKeysFromEnv loads API keys from environment variables if not already set.
func loadAPIKeysFromEnv(c *Config) {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		if c.Embeddings.OpenAI.APIKey == "" {
			c.Embeddings.OpenAI.APIKey = key
		}
		if c.LLM.OpenAI.APIKey == "" {
			c.LLM.OpenAI.APIKey = key
		}
	}

	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && c.LLM.Anthropic.APIKey == "" {
		c.LLM.Anthropic.APIKey = key
	}
}

// ConfigFilePath returns the path of the loaded config file, or empty string if none.
func ConfigFilePath() string {
	return viper.ConfigFileUsed()
}

// GlobalConfigPath returns the path to the global config file.
func GlobalConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}
