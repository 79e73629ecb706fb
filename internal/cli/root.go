// Package cli implements the command-line interface for docqa.
package cli

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nickcecere/docqa/internal/config"
	"github.com/nickcecere/docqa/internal/ui"
)

var (
	// Version information set at build time
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile    string
	debug      bool
	jsonOutput bool
)

// SetVersionInfo sets the version information from build flags.
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "docqa",
	Short: "Ask questions about your documents",
	Long: `docqa answers natural-language questions from documents you upload.

Documents are split into chunks, embedded locally (Ollama) or with a cloud
provider (OpenAI), and stored in SQLite. Questions are answered by an LLM
from the most similar chunks, and every answer is kept in a searchable history.

Examples:
  # Upload a document
  docqa upload handbook.pdf

  # Upload every supported file in a directory
  docqa ingest ./docs

  # Ask a question
  docqa ask "How many vacation days do I get?"

  # Ask about one document only
  docqa ask --doc handbook.pdf "What is the dress code?"`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if debug {
			ui.SetDebug(true)
			log.Debug("Debug logging enabled")
		} else if jsonOutput {
			ui.SetQuiet()
		}

		if err := config.Load(cfgFile); err != nil {
			log.Warn("Failed to load config", "error", err)
		}

		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	ui.InitLogger()

	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/docqa/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output results as JSON")

	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(docsCmd)
	rootCmd.AddCommand(renameCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(uninstallCmd)
	rootCmd.AddCommand(versionCmd)
}

// versionCmd shows version information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("docqa %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}
