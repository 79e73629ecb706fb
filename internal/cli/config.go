package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nickcecere/docqa/internal/config"
	"github.com/nickcecere/docqa/internal/ui"
)

var configShowPath bool

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show configuration",
	Long: `Display current configuration settings and config file locations.

Examples:
  # Show current configuration
  docqa config

  # Show config file paths
  docqa config --path`,
	RunE: runConfig,
}

func init() {
	configCmd.Flags().BoolVar(&configShowPath, "path", false, "show config file paths")
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	if configShowPath {
		fmt.Println(ui.SectionTitle.Render("Configuration Paths"))
		fmt.Println()
		fmt.Printf("Global config: %s\n", config.GlobalConfigPath())
		fmt.Printf("Local config:  .docqarc.yaml (searched from cwd upward)\n")
		fmt.Printf("Active config: %s\n", config.ConfigFilePath())
		fmt.Printf("Database:      %s\n", cfg.Database.Path)
		return nil
	}

	if jsonOutput {
		redacted := *cfg
		redacted.Embeddings.OpenAI.APIKey = redact(cfg.Embeddings.OpenAI.APIKey)
		redacted.LLM.OpenAI.APIKey = redact(cfg.LLM.OpenAI.APIKey)
		redacted.LLM.Anthropic.APIKey = redact(cfg.LLM.Anthropic.APIKey)
		return printJSON(redacted)
	}

	fmt.Println(ui.SectionTitle.Render("Current Configuration"))
	fmt.Println()

	fmt.Println(ui.Bold.Render("Embeddings:"))
	fmt.Printf("  Provider: %s\n", cfg.Embeddings.Provider)
	fmt.Printf("  Ollama URL: %s\n", cfg.Embeddings.Ollama.URL)
	fmt.Printf("  Ollama Model: %s\n", cfg.Embeddings.Ollama.Model)
	fmt.Printf("  OpenAI Model: %s\n", cfg.Embeddings.OpenAI.Model)
	if cfg.Embeddings.OpenAI.BaseURL != "" {
		fmt.Printf("  OpenAI Base URL: %s\n", cfg.Embeddings.OpenAI.BaseURL)
	}
	fmt.Printf("  OpenAI API Key: %s\n", redact(cfg.Embeddings.OpenAI.APIKey))
	fmt.Println()

	fmt.Println(ui.Bold.Render("LLM:"))
	fmt.Printf("  Provider: %s\n", cfg.LLM.Provider)
	fmt.Printf("  Temperature: %g\n", cfg.LLM.Temperature)
	fmt.Printf("  Max Tokens: %d\n", cfg.LLM.MaxTokens)
	fmt.Printf("  Ollama URL: %s\n", cfg.LLM.Ollama.URL)
	fmt.Printf("  Ollama Model: %s\n", cfg.LLM.Ollama.Model)
	fmt.Printf("  OpenAI Model: %s\n", cfg.LLM.OpenAI.Model)
	fmt.Printf("  Anthropic Model: %s\n", cfg.LLM.Anthropic.Model)
	fmt.Printf("  Anthropic API Key: %s\n", redact(cfg.LLM.Anthropic.APIKey))
	fmt.Println()

	fmt.Println(ui.Bold.Render("Ingest:"))
	fmt.Printf("  Chunk Size: %d\n", cfg.Ingest.ChunkSize)
	fmt.Printf("  Chunk Overlap: %d\n", cfg.Ingest.ChunkOverlap)
	fmt.Printf("  Max Upload Size: %s\n", formatBytes(cfg.Ingest.MaxUploadBytes))
	fmt.Printf("  Max File Count: %d\n", cfg.Ingest.MaxFileCount)
	fmt.Printf("  Workers: %d\n", cfg.Ingest.Workers)
	fmt.Printf("  Uploads Dir: %s\n", cfg.Ingest.UploadsDir)
	if cfg.Ingest.InboxDir != "" {
		fmt.Printf("  Inbox Dir: %s\n", cfg.Ingest.InboxDir)
	}
	fmt.Println()

	fmt.Println(ui.Bold.Render("Search:"))
	fmt.Printf("  Top K: %d\n", cfg.Search.TopK)
	fmt.Printf("  Min Score: %g\n", cfg.Search.MinScore)
	fmt.Println()

	fmt.Println(ui.Bold.Render("Database:"))
	fmt.Printf("  Path: %s\n", cfg.Database.Path)
	fmt.Println()

	fmt.Println(ui.Bold.Render("Ignore Patterns:"))
	fmt.Printf("  %d patterns configured\n", len(cfg.Ignore))

	return nil
}

// redact hides all but the last four characters of a secret.
func redact(secret string) string {
	if secret == "" {
		return "(not set)"
	}
	if len(secret) <= 8 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}
