package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/docqa/internal/qa"
	"github.com/nickcecere/docqa/internal/ui"
)

var (
	askDocument   string
	askTopK       int
	askShowChunks bool
)

// askCmd represents the ask command
var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question about your documents",
	Long: `Answer a question from the most similar chunks of your documents.

By default every document is searched. With --doc only the named document is
used. The answer is saved in the history together with its sources.

Examples:
  # Ask across all documents
  docqa ask "What is the refund policy?"

  # Ask one document
  docqa ask --doc contract.pdf "When does the contract end?"

  # Use more context and show the passages used
  docqa ask -k 10 -c "Summarise the onboarding steps"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askDocument, "doc", "d", "", "only use this document")
	askCmd.Flags().IntVarP(&askTopK, "top-k", "k", 0, "number of chunks to answer from (default from config)")
	askCmd.Flags().BoolVarP(&askShowChunks, "show-chunks", "c", false, "show the chunks the answer was drawn from")
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.Join(args, " ")

	ctx, cancel := interruptContext()
	defer cancel()

	a, err := openApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	log.Debug("Asking",
		"question", question,
		"document", askDocument,
		"topK", askTopK,
	)

	var stop func()
	if !jsonOutput {
		stop = startSpinner("Thinking")
	}

	var ans *qa.Answer
	if askDocument != "" {
		ans, err = a.qa.AskInDocument(ctx, askDocument, question)
	} else {
		ans, err = a.qa.Ask(ctx, question, askTopK)
	}

	if stop != nil {
		stop()
	}

	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	if jsonOutput {
		return printJSON(ans)
	}

	displayAnswer(ans, askShowChunks)
	return nil
}

// displayAnswer renders the answer, its sources and optionally its chunks.
func displayAnswer(ans *qa.Answer, showChunks bool) {
	fmt.Println(ui.Header.Render("Answer"))
	fmt.Println()

	rendered, err := renderMarkdown(ans.Answer)
	if err != nil {
		fmt.Println(ans.Answer)
		fmt.Println()
	} else {
		fmt.Print(rendered)
	}

	if len(ans.Sources) > 0 {
		fmt.Println(ui.Dim.Render("Sources:"))
		for i, s := range ans.Sources {
			fmt.Printf("  %s %s\n", ui.Citation.Render(fmt.Sprintf("[%d]", i+1)), ui.SourceRef.Render(s))
		}
	}

	if showChunks && len(ans.Chunks) > 0 {
		fmt.Println(ui.SectionTitle.Render("Chunks"))
		for i, c := range ans.Chunks {
			fmt.Printf("%s %s #%d %s\n",
				ui.Highlight.Render(fmt.Sprintf("[%d]", i+1)),
				ui.DocName.Render(c.DocumentName),
				c.ChunkIndex,
				ui.FormatScore(c.Score),
			)
			fmt.Println(ui.ResultContent.Render(truncate(c.Content, 400)))
			fmt.Println()
		}
	}
}

// startSpinner shows an animated spinner with message until the returned
// function is called.
func startSpinner(message string) func() {
	stopCh := make(chan struct{})
	doneCh := make(chan struct{})
	go showSpinner(message, stopCh, doneCh)
	return func() {
		close(stopCh)
		<-doneCh
	}
}

// showSpinner displays an animated spinner until stopCh is closed.
func showSpinner(message string, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	ticker := time.NewTicker(80 * time.Millisecond)
	defer ticker.Stop()
	defer close(doneCh)

	i := 0
	for {
		select {
		case <-stopCh:
			// Clear spinner line
			fmt.Print("\r\033[2K")
			return
		case <-ticker.C:
			fmt.Printf("\r%s %s", ui.Highlight.Render(frames[i]), message)
			i = (i + 1) % len(frames)
		}
	}
}

// renderMarkdown renders markdown content using glamour.
func renderMarkdown(content string) (string, error) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return "", err
	}
	return renderer.Render(content)
}
