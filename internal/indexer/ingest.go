package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/nickcecere/docqa/internal/errs"
	"github.com/nickcecere/docqa/internal/extract"
	"github.com/nickcecere/docqa/internal/fs"
)

// Progress tracks directory ingest progress.
type Progress struct {
	TotalFiles      int
	ProcessedFiles  int
	SkippedFiles    int
	FailedFiles     int
	ProcessedChunks int
	StartTime       time.Time
	CurrentFile     string
}

// ProgressFunc is called to report progress during ingest.
type ProgressFunc func(Progress)

// IngestOptions configures a directory ingest.
type IngestOptions struct {
	// Path is the directory to ingest.
	Path string

	// Extensions limits the walk to these extensions. Empty means every
	// supported type.
	Extensions []string

	// IgnorePatterns are added to the configured ignore list.
	IgnorePatterns []string

	// Force uploads files even when a document with the same content exists.
	Force bool

	// OnProgress is called after each file.
	OnProgress ProgressFunc
}

// IngestReport summarises a directory ingest.
type IngestReport struct {
	Files    int               `json:"files"`
	Uploaded []*UploadResult   `json:"uploaded"`
	Skipped  []string          `json:"skipped"`
	Failed   map[string]string `json:"failed,omitempty"`
	Duration time.Duration     `json:"duration"`
}

// IngestDirectory uploads every supported file under opts.Path. Files whose
// content is already registered are skipped unless opts.Force is set. A file
// that fails is recorded in the report and does not stop the others.
func (u *Uploader) IngestDirectory(ctx context.Context, opts IngestOptions) (*IngestReport, error) {
	const op = "ingest_directory"

	absPath, err := filepath.Abs(opts.Path)
	if err != nil {
		return nil, errs.E(errs.Validation, op, fmt.Errorf("failed to resolve path: %w", err))
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, errs.E(errs.NotFound, op, fmt.Errorf("path does not exist: %w", err))
	}
	if !info.IsDir() {
		return nil, errs.E(errs.Validation, op, fmt.Errorf("path is not a directory: %s", absPath))
	}

	extensions := opts.Extensions
	if len(extensions) == 0 {
		extensions = extract.SupportedExtensions()
	}

	walkOpts := fs.DefaultWalkOptions()
	walkOpts.Root = absPath
	walkOpts.MaxFileSize = u.maxBytes
	walkOpts.MaxFileCount = u.cfg.Ingest.MaxFileCount
	walkOpts.IgnorePatterns = append(append([]string{}, u.cfg.Ignore...), opts.IgnorePatterns...)
	walkOpts.Extensions = extensions

	walker, err := fs.NewDocumentWalker(walkOpts)
	if err != nil {
		return nil, errs.E(errs.Processing, op, fmt.Errorf("failed to create document walker: %w", err))
	}

	files, err := walker.Collect()
	if err != nil {
		return nil, errs.E(errs.Processing, op, fmt.Errorf("failed to walk directory: %w", err))
	}

	u.mu.Lock()
	u.progress = Progress{
		TotalFiles: len(files),
		StartTime:  time.Now(),
	}
	u.mu.Unlock()

	stats := walker.Stats()
	log.Info("Found files to ingest",
		"path", absPath,
		"count", len(files),
		"unsupported", stats.Unsupported,
		"temp", stats.TempFiles,
		"too_large", stats.TooLarge,
	)

	report := &IngestReport{
		Files:  len(files),
		Failed: make(map[string]string),
	}
	uploaded := make([]*UploadResult, len(files))
	skipped := make([]bool, len(files))

	workers := u.cfg.Ingest.Workers
	if workers < 1 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, fi := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			res, skip, err := u.ingestFile(gctx, fi, opts.Force)

			u.mu.Lock()
			u.progress.CurrentFile = fi.RelPath
			switch {
			case err != nil:
				u.progress.FailedFiles++
				report.Failed[fi.RelPath] = err.Error()
			case skip:
				u.progress.SkippedFiles++
				skipped[i] = true
			default:
				u.progress.ProcessedFiles++
				uploaded[i] = res
			}
			if opts.OnProgress != nil {
				opts.OnProgress(u.progress)
			}
			u.mu.Unlock()

			if err != nil {
				log.Warn("Failed to ingest file", "path", fi.RelPath, "error", err)
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, fi := range files {
		if uploaded[i] != nil {
			report.Uploaded = append(report.Uploaded, uploaded[i])
		}
		if skipped[i] {
			report.Skipped = append(report.Skipped, fi.RelPath)
		}
	}
	report.Duration = time.Since(u.Progress().StartTime)

	log.Info("Ingest complete",
		"uploaded", len(report.Uploaded),
		"skipped", len(report.Skipped),
		"failed", len(report.Failed),
		"duration", report.Duration.Round(time.Millisecond),
	)

	return report, nil
}

// ingestFile uploads one walked file, or reports it skipped when its content
// is already registered.
func (u *Uploader) ingestFile(ctx context.Context, fi fs.FileInfo, force bool) (*UploadResult, bool, error) {
	if !force && u.registered(fi.Hash, fi.RelPath) != "" {
		return nil, true, nil
	}

	res, err := u.UploadFile(ctx, fi.Path)
	if err != nil {
		return nil, false, err
	}
	return res, false, nil
}
