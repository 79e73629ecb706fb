// Package watcher uploads files dropped into an inbox directory.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/nickcecere/docqa/internal/extract"
	"github.com/nickcecere/docqa/internal/fs"
	"github.com/nickcecere/docqa/internal/indexer"
)

// Uploader uploads one file unless its content is already registered.
type Uploader interface {
	UploadFileIfNew(ctx context.Context, path string) (*indexer.UploadResult, bool, error)
}

// Event names passed to the event callback.
const (
	EventUpload = "upload"
	EventSkip   = "skip"
	EventError  = "error"
)

// Watcher watches an inbox directory and uploads new or changed files once
// they have been quiet for the debounce time.
type Watcher struct {
	root     string
	uploader Uploader

	// pending maps a path to the time of its last event
	pending      map[string]time.Time
	pendingMu    sync.Mutex
	debounceTime time.Duration
	initialScan  bool

	ready chan struct{}

	// callback for status updates
	onEvent func(event string, path string)
}

// Option configures the watcher.
type Option func(*Watcher)

// WithDebounceTime sets how long a file must be quiet before it is uploaded.
func WithDebounceTime(d time.Duration) Option {
	return func(w *Watcher) {
		w.debounceTime = d
	}
}

// WithEventCallback sets a callback for upload outcomes.
func WithEventCallback(fn func(event string, path string)) Option {
	return func(w *Watcher) {
		w.onEvent = fn
	}
}

// WithInitialScan controls whether files already in the inbox are queued on
// start. It is on by default.
func WithInitialScan(enabled bool) Option {
	return func(w *Watcher) {
		w.initialScan = enabled
	}
}

// New creates a watcher for the inbox directory root.
func New(root string, up Uploader, opts ...Option) (*Watcher, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		root:         absRoot,
		uploader:     up,
		pending:      make(map[string]time.Time),
		debounceTime: 500 * time.Millisecond,
		initialScan:  true,
		ready:        make(chan struct{}),
		onEvent:      func(string, string) {}, // noop default
	}

	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

// Root returns the watched directory.
func (w *Watcher) Root() string {
	return w.root
}

// Ready is closed once the inbox is being watched.
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Start begins watching the inbox. Blocks until context is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.root, 0755); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := w.addDirectories(watcher); err != nil {
		return err
	}

	log.Info("Watching inbox", "root", w.root)
	close(w.ready)

	go w.processDebounced(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event, watcher)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error("Watcher error", "error", err)
		}
	}
}

// addDirectories adds the inbox and its subdirectories to the watcher,
// queueing existing files when the initial scan is enabled.
func (w *Watcher) addDirectories(watcher *fsnotify.Watcher) error {
	return filepath.WalkDir(w.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // Skip errors
		}

		if !d.IsDir() {
			if w.initialScan && w.isUploadable(path) {
				w.enqueue(path)
			}
			return nil
		}

		if path != w.root && w.shouldSkipDir(d.Name()) {
			return filepath.SkipDir
		}

		if err := watcher.Add(path); err != nil {
			log.Debug("Failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

// shouldSkipDir returns true if directory should not be watched.
func (w *Watcher) shouldSkipDir(name string) bool {
	return strings.HasPrefix(name, ".") || name == "node_modules" || name == "__pycache__"
}

// handleEvent processes a single file system event.
func (w *Watcher) handleEvent(event fsnotify.Event, watcher *fsnotify.Watcher) {
	path := event.Name

	if strings.HasPrefix(filepath.Base(path), ".") {
		return
	}

	// Removed files stay registered; uploads are copies.
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		return
	}

	if info.IsDir() {
		if event.Has(fsnotify.Create) && !w.shouldSkipDir(info.Name()) {
			if err := watcher.Add(path); err != nil {
				log.Debug("Failed to watch directory", "path", path, "error", err)
			}
		}
		return
	}

	if !w.isUploadable(path) {
		return
	}

	w.enqueue(path)
}

// isUploadable reports whether path has a type the extractor supports and
// is not an editor or office temp file.
func (w *Watcher) isUploadable(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || fs.IsTempFile(name) {
		return false
	}
	return extract.Supported(name)
}

func (w *Watcher) enqueue(path string) {
	w.pendingMu.Lock()
	w.pending[path] = time.Now()
	w.pendingMu.Unlock()
}

// processDebounced uploads quiet files periodically.
func (w *Watcher) processDebounced(ctx context.Context) {
	interval := w.debounceTime / 2
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.flushDebounced(ctx)
		}
	}
}

// flushDebounced uploads every pending file that has had no event for the
// debounce time.
func (w *Watcher) flushDebounced(ctx context.Context) {
	now := time.Now()

	w.pendingMu.Lock()
	var ready []string
	for path, last := range w.pending {
		if now.Sub(last) >= w.debounceTime {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	w.pendingMu.Unlock()

	for _, path := range ready {
		if ctx.Err() != nil {
			return
		}

		relPath, err := filepath.Rel(w.root, path)
		if err != nil {
			relPath = path
		}

		res, skipped, err := w.uploader.UploadFileIfNew(ctx, path)
		switch {
		case err != nil:
			log.Error("Failed to upload inbox file", "path", relPath, "error", err)
			w.onEvent(EventError, relPath)
		case skipped:
			log.Debug("Inbox file already registered", "path", relPath)
			w.onEvent(EventSkip, relPath)
		default:
			log.Info("Uploaded inbox file", "path", relPath, "document", res.SavedAs, "chunks", res.Chunks)
			w.onEvent(EventUpload, relPath)
		}
	}
}
