package cli

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/docqa/internal/qa"
	"github.com/nickcecere/docqa/internal/ui"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show corpus statistics",
	Long: `Display information about the document corpus including:
- Number of documents, chunks and history entries
- Embedding provider, model and dimensions
- Database and uploads locations`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	log.Debug("Showing status")

	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	status, err := a.qa.Status()
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(status)
	}

	fmt.Println(ui.Header.Render("Corpus Status"))
	fmt.Println()

	fmt.Printf("  %s %d (%s)\n", ui.Dim.Render("Documents:"), status.Documents, formatBytes(status.TotalSize))
	fmt.Printf("  %s %d\n", ui.Dim.Render("Chunks:"), status.Chunks)
	fmt.Printf("  %s %d\n", ui.Dim.Render("History:"), status.History)
	fmt.Printf("  %s %s (%s)\n", ui.Dim.Render("Model:"), status.Model, status.Provider)
	fmt.Printf("  %s %d\n", ui.Dim.Render("Dimensions:"), status.Dimensions)
	fmt.Printf("  %s %s\n", ui.Dim.Render("Health:"), healthStatus(status))

	fmt.Println()
	fmt.Println(ui.Dim.Render("Configuration:"))
	fmt.Printf("  Database: %s\n", a.cfg.Database.Path)
	fmt.Printf("  Uploads:  %s\n", a.uploader.UploadsDir())
	if a.cfg.Ingest.InboxDir != "" {
		fmt.Printf("  Inbox:    %s\n", a.cfg.Ingest.InboxDir)
	}
	fmt.Printf("  LLM:      %s\n", a.cfg.LLM.Provider)

	return nil
}

// healthStatus returns a health indicator based on corpus counts.
func healthStatus(s *qa.Status) string {
	if s.Documents == 0 {
		return ui.Warning.Render("empty (no documents uploaded)")
	}
	if s.Chunks < s.Documents {
		return ui.Warning.Render("some documents have no chunks")
	}
	return ui.Success.Render("healthy")
}
