package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/docqa/internal/config"
	"github.com/nickcecere/docqa/internal/extract"
	"github.com/nickcecere/docqa/internal/fs"
	"github.com/nickcecere/docqa/internal/indexer"
	"github.com/nickcecere/docqa/internal/ui"
)

var (
	ingestForce      bool
	ingestDryRun     bool
	ingestExtensions []string
	ingestIgnore     []string
)

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest [path]",
	Short: "Upload every supported document in a directory",
	Long: `Upload every supported document under a directory (or the current directory).

Files are found recursively, honouring .gitignore and the configured ignore
patterns. Files whose content is already uploaded are skipped unless --force
is given.

Examples:
  # Ingest the current directory
  docqa ingest

  # Ingest only PDFs and Word documents
  docqa ingest ./contracts --ext .pdf --ext .docx

  # Preview what would be uploaded
  docqa ingest ./docs --dry-run`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVarP(&ingestForce, "force", "f", false, "upload files even if their content is already uploaded")
	ingestCmd.Flags().BoolVarP(&ingestDryRun, "dry-run", "d", false, "preview without uploading")
	ingestCmd.Flags().StringSliceVarP(&ingestExtensions, "ext", "e", nil, "file extensions to include (e.g., .pdf, .md)")
	ingestCmd.Flags().StringSliceVarP(&ingestIgnore, "ignore", "i", nil, "additional patterns to ignore")
}

func runIngest(cmd *cobra.Command, args []string) error {
	path := "."
	if len(args) > 0 {
		path = args[0]
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	cfg := config.Get()

	log.Debug("Starting ingest",
		"path", absPath,
		"force", ingestForce,
		"dry-run", ingestDryRun,
	)

	if ingestDryRun {
		return runDryRun(absPath, cfg)
	}

	ctx, cancel := interruptContext()
	defer cancel()

	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	if !jsonOutput {
		fmt.Println(ui.Header.Render("Ingesting " + filepath.Base(absPath)))
		fmt.Printf("Path: %s\n", absPath)
		fmt.Printf("Embeddings: %s (%s)\n", a.embedder.Provider(), a.embedder.ModelName())
		fmt.Println()
	}

	lastUpdate := time.Now()

	report, err := a.uploader.IngestDirectory(ctx, indexer.IngestOptions{
		Path:           absPath,
		Extensions:     ingestExtensions,
		IgnorePatterns: ingestIgnore,
		Force:          ingestForce,
		OnProgress: func(p indexer.Progress) {
			if jsonOutput || time.Since(lastUpdate) < 100*time.Millisecond {
				return
			}
			lastUpdate = time.Now()

			fmt.Printf("\r\033[K")
			if p.TotalFiles > 0 {
				done := p.ProcessedFiles + p.SkippedFiles + p.FailedFiles
				pct := float64(done) / float64(p.TotalFiles) * 100
				fmt.Printf("Progress: %d/%d files (%.0f%%) | Chunks: %d | %s",
					done, p.TotalFiles, pct, p.ProcessedChunks,
					truncatePath(p.CurrentFile, 40))
			}
		},
	})

	if !jsonOutput {
		fmt.Printf("\r\033[K")
	}

	if err != nil {
		if ctx.Err() != nil {
			fmt.Println(ui.Warning.Render("Ingest cancelled"))
			return nil
		}
		return fmt.Errorf("ingest failed: %w", err)
	}

	if jsonOutput {
		return printJSON(report)
	}

	chunks := 0
	var size int64
	for _, r := range report.Uploaded {
		chunks += r.Chunks
		size += r.SizeBytes
	}

	fmt.Println(ui.Success.Render("Ingest complete!"))
	fmt.Println()
	fmt.Printf("  Uploaded: %d files (%s, %d chunks)\n", len(report.Uploaded), formatBytes(size), chunks)
	fmt.Printf("  Skipped:  %d files already uploaded\n", len(report.Skipped))
	fmt.Printf("  Failed:   %d files\n", len(report.Failed))
	fmt.Printf("  Duration: %s\n", report.Duration.Round(time.Millisecond))

	if len(report.Failed) > 0 {
		fmt.Println()
		fmt.Println(ui.Warning.Render("Failures:"))
		paths := make([]string, 0, len(report.Failed))
		for p := range report.Failed {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		for _, p := range paths {
			fmt.Printf("  %s: %s\n", p, ui.Dim.Render(report.Failed[p]))
		}
	}

	return nil
}

// runDryRun shows what would be uploaded without uploading.
func runDryRun(path string, cfg *config.Config) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("path does not exist: %s", path)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	extensions := ingestExtensions
	if len(extensions) == 0 {
		extensions = extract.SupportedExtensions()
	}

	walkOpts := fs.DefaultWalkOptions()
	walkOpts.Root = path
	walkOpts.MaxFileSize = cfg.Ingest.MaxUploadBytes
	walkOpts.MaxFileCount = cfg.Ingest.MaxFileCount
	walkOpts.IgnorePatterns = append(append([]string{}, cfg.Ignore...), ingestIgnore...)
	walkOpts.Extensions = extensions

	walker, err := fs.NewDocumentWalker(walkOpts)
	if err != nil {
		return fmt.Errorf("failed to create document walker: %w", err)
	}

	files, err := walker.Collect()
	if err != nil {
		return fmt.Errorf("failed to walk directory: %w", err)
	}

	if jsonOutput {
		return printJSON(files)
	}

	stats := walker.Stats()

	fmt.Println(ui.Header.Render("Dry Run - Preview"))
	fmt.Printf("Path: %s\n\n", path)

	byExt := make(map[string]int)
	var totalSize int64
	for _, f := range files {
		byExt[strings.ToLower(f.Ext)]++
		totalSize += f.Size
	}

	exts := make([]string, 0, len(byExt))
	for ext := range byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)

	fmt.Println("Files to upload:")
	for _, ext := range exts {
		fmt.Printf("  %-8s %d\n", ext+":", byExt[ext])
	}
	fmt.Println()
	fmt.Printf("Total files:   %d\n", len(files))
	fmt.Printf("Total size:    %s\n", formatBytes(totalSize))
	fmt.Printf("Skipped:       %d files, %d directories\n", stats.FilesSkipped(), stats.DirsSkipped)
	if stats.FilesSkipped() > 0 {
		fmt.Printf("  unsupported %d, temp %d, ignored %d, empty %d, too large %d\n",
			stats.Unsupported, stats.TempFiles, stats.Ignored, stats.Empty, stats.TooLarge)
	}

	if len(files) > 0 {
		fmt.Println("\nFirst 10 files:")
		for i, f := range files {
			if i >= 10 {
				fmt.Printf("  ... and %d more\n", len(files)-10)
				break
			}
			fmt.Printf("  %s (%s)\n", f.RelPath, formatBytes(f.Size))
		}
	}

	return nil
}
