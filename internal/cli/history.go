package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nickcecere/docqa/internal/store"
	"github.com/nickcecere/docqa/internal/ui"
)

var (
	historySearch  string
	historySimilar string
	historyLimit   int
	historyFull    bool
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past questions and answers",
	Long: `Show past questions and answers, newest first.

Examples:
  # Recent history
  docqa history

  # Entries whose question or answer mentions a keyword
  docqa history --search invoice

  # Past questions similar to a new one
  docqa history --similar "how do I reset my password"`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVarP(&historySearch, "search", "s", "", "only entries containing this keyword")
	historyCmd.Flags().StringVar(&historySimilar, "similar", "", "rank entries by similarity to this question")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "m", 20, "maximum number of entries")
	historyCmd.Flags().BoolVar(&historyFull, "full", false, "show full answers")
	historyCmd.MarkFlagsMutuallyExclusive("search", "similar")
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	if cmd.Flags().Changed("similar") {
		ctx, cancel := interruptContext()
		defer cancel()

		results, err := a.qa.SearchHistorySemantic(ctx, historySimilar, historyLimit)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(results)
		}
		if len(results) == 0 {
			fmt.Println("No matching history.")
			return nil
		}
		for _, r := range results {
			displayEntry(r.Entry, ui.FormatScore(r.Score))
		}
		return nil
	}

	var entries []store.HistoryEntry
	if cmd.Flags().Changed("search") {
		entries, err = a.qa.SearchHistory(historySearch)
	} else {
		entries, err = a.qa.ListHistory()
	}
	if err != nil {
		return err
	}

	if historyLimit > 0 && len(entries) > historyLimit {
		entries = entries[:historyLimit]
	}

	if jsonOutput {
		return printJSON(entries)
	}
	if len(entries) == 0 {
		if cmd.Flags().Changed("search") {
			fmt.Println("No matching history.")
		} else {
			fmt.Println("No questions asked yet.")
		}
		return nil
	}

	for _, e := range entries {
		displayEntry(e, "")
	}
	return nil
}

func displayEntry(e store.HistoryEntry, suffix string) {
	fmt.Printf("%s %s %s\n",
		ui.Highlight.Render(fmt.Sprintf("[%d]", e.ID)),
		ui.Dim.Render(formatTime(e.CreatedAt)),
		suffix,
	)
	fmt.Printf("  %s %s\n", ui.Bold.Render("Q:"), e.Question)

	answer := e.Answer
	if !historyFull {
		answer = truncate(answer, 200)
	}
	fmt.Printf("  %s %s\n", ui.Bold.Render("A:"), answer)
	if e.Sources != "" {
		fmt.Printf("  %s\n", ui.SourceRef.Render("Sources: "+e.Sources))
	}
	fmt.Println()
}
