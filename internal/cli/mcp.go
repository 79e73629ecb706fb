package cli

import (
	"context"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/docqa/internal/indexer"
	"github.com/nickcecere/docqa/internal/mcp"
	"github.com/nickcecere/docqa/internal/ui"
	"github.com/nickcecere/docqa/internal/watcher"
)

var (
	mcpNoWatch bool
)

// mcpCmd represents the MCP server command.
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server for AI assistant integration",
	Long: `Start a Model Context Protocol (MCP) server for AI assistants.

The server communicates via stdin/stdout and provides tools for:
  - docqa_ask: Answer a question from all documents
  - docqa_ask_document: Answer a question from one document
  - docqa_upload: Upload a local file
  - docqa_list_documents: List documents
  - docqa_rename_document: Rename a document
  - docqa_history: List past questions and answers
  - docqa_search_history: Search past questions and answers

When ingest.inbox_dir is configured the server also watches the inbox in the
background. Use --no-watch to disable this.

This command is typically started by an MCP client, not run directly.`,
	Args: cobra.NoArgs,
	RunE: runMcpCmd,
}

func init() {
	mcpCmd.Flags().BoolVar(&mcpNoWatch, "no-watch", false, "disable background inbox watching")
}

func runMcpCmd(cmd *cobra.Command, args []string) error {
	// stdout carries the protocol
	ui.SetOutput(os.Stderr)

	ctx, cancel := interruptContext()
	defer cancel()

	a, err := openApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	if !mcpNoWatch && a.cfg.Ingest.InboxDir != "" {
		go startBackgroundWatcher(ctx, a.cfg.Ingest.InboxDir, a.uploader)
	}

	server := mcp.NewServer(a.qa, a.uploader)
	return server.Run(ctx)
}

// startBackgroundWatcher watches the inbox until ctx is cancelled.
func startBackgroundWatcher(ctx context.Context, inbox string, up *indexer.Uploader) {
	// Let the MCP handshake finish first
	select {
	case <-ctx.Done():
		return
	case <-time.After(2 * time.Second):
	}

	log.Info("Starting background inbox watcher", "path", inbox)

	w, err := watcher.New(
		inbox,
		up,
		watcher.WithDebounceTime(1*time.Second),
		watcher.WithEventCallback(func(event, path string) {
			log.Debug("Background watcher event", "event", event, "path", path)
		}),
	)
	if err != nil {
		log.Error("Failed to create watcher", "error", err)
		return
	}

	if err := w.Start(ctx); err != nil && ctx.Err() == nil {
		log.Error("Watcher error", "error", err)
	}
}
