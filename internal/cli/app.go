package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nickcecere/docqa/internal/config"
	"github.com/nickcecere/docqa/internal/embeddings"
	"github.com/nickcecere/docqa/internal/extract"
	"github.com/nickcecere/docqa/internal/indexer"
	"github.com/nickcecere/docqa/internal/llm"
	"github.com/nickcecere/docqa/internal/qa"
	"github.com/nickcecere/docqa/internal/store"
)

// app holds the services a command works with.
type app struct {
	cfg      *config.Config
	store    *store.SQLiteStore
	embedder embeddings.Service
	qa       *qa.Service
	uploader *indexer.Uploader
	llm      llm.Service
}

// openApp opens the database and builds the services. The LLM is only
// created when withLLM is set, so commands that never generate answers work
// without LLM credentials.
func openApp(withLLM bool) (*app, error) {
	cfg := config.Get()

	emb, err := embeddings.NewService(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding service: %w", err)
	}

	st, err := store.NewSQLiteStore(cfg.Database.Path, emb.Dimensions())
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	a := &app{
		cfg:      cfg,
		store:    st,
		embedder: emb,
	}

	var answerer llm.Answerer
	if withLLM {
		a.llm, err = llm.NewService(cfg)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("failed to create LLM service: %w", err)
		}
		answerer = llm.NewGenerator(a.llm, llm.CompletionOptions{
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
		})
	}

	a.qa = qa.New(st, emb, answerer, qa.Options{
		TopK:     cfg.Search.TopK,
		MinScore: cfg.Search.MinScore,
	})
	a.uploader = indexer.New(st, emb, extract.New(), cfg)

	return a, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// interruptContext returns a context cancelled on SIGINT or SIGTERM.
func interruptContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatBytes formats bytes as human-readable string.
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// formatTime formats a time for display.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}

	// If today, show time only
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return "today at " + t.Format("15:04")
	}

	// If this year, omit year
	if t.Year() == now.Year() {
		return t.Format("Jan 2 at 15:04")
	}

	return t.Format("Jan 2, 2006 at 15:04")
}

// truncate shortens s to maxLen runes, marking the cut.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// truncatePath shortens a path for display, keeping its end.
func truncatePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	return "..." + path[len(path)-maxLen+3:]
}
