package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/docqa/internal/ui"
	"github.com/nickcecere/docqa/internal/watcher"
)

var (
	watchNoInitial bool
	watchDebounce  time.Duration
)

// watchCmd represents the watch command.
var watchCmd = &cobra.Command{
	Use:   "watch [inbox]",
	Short: "Upload files dropped into an inbox directory",
	Long: `Watch an inbox directory and upload every supported file that appears in it.

The inbox defaults to ingest.inbox_dir from the configuration. Files already
in the inbox are uploaded on start unless --no-initial is given. Files whose
content is already uploaded are skipped.

Examples:
  # Watch the configured inbox
  docqa watch

  # Watch a specific directory
  docqa watch ~/Documents/inbox`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatchCmd,
}

func init() {
	watchCmd.Flags().BoolVar(&watchNoInitial, "no-initial", false, "skip files already in the inbox")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 500*time.Millisecond, "quiet time before a changed file is uploaded")
}

func runWatchCmd(cmd *cobra.Command, args []string) error {
	ctx, cancel := interruptContext()
	defer cancel()

	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	inbox := a.cfg.Ingest.InboxDir
	if len(args) > 0 {
		inbox = args[0]
	}
	if inbox == "" {
		return fmt.Errorf("no inbox directory: pass one or set ingest.inbox_dir")
	}

	absPath, err := filepath.Abs(inbox)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	w, err := watcher.New(
		absPath,
		a.uploader,
		watcher.WithDebounceTime(watchDebounce),
		watcher.WithInitialScan(!watchNoInitial),
		watcher.WithEventCallback(func(event, path string) {
			switch event {
			case watcher.EventUpload:
				fmt.Printf("%s %s\n", ui.Success.Render("uploaded"), path)
			case watcher.EventError:
				fmt.Printf("%s %s\n", ui.Error.Render("failed"), path)
			default:
				log.Debug("File event", "event", event, "path", path)
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	fmt.Println(ui.Header.Render("Watching Inbox"))
	fmt.Printf("Directory: %s\n", absPath)
	fmt.Println("Press Ctrl+C to stop.")
	fmt.Println()

	if err := w.Start(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
