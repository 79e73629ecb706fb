package fs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/charmbracelet/log"
	gitignore "github.com/sabhiram/go-gitignore"
)

// DocumentWalker finds the documents under a root directory. Each file is
// judged by the cheapest test first: temp-file name, extension, ignore
// rules, size. Only files that pass every test are hashed.
type DocumentWalker struct {
	opts    WalkOptions
	types   map[string]bool
	ignores []*gitignore.GitIgnore
	stats   WalkStats
}

var _ Walker = (*DocumentWalker)(nil)

// NewDocumentWalker creates a walker rooted at opts.Root.
func NewDocumentWalker(opts WalkOptions) (*DocumentWalker, error) {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root path: %w", err)
	}
	opts.Root = root

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("root path does not exist: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path is not a directory: %s", root)
	}

	w := &DocumentWalker{opts: opts}

	if len(opts.Extensions) > 0 {
		w.types = make(map[string]bool, len(opts.Extensions))
		for _, ext := range opts.Extensions {
			w.types[normalizeExt(ext)] = true
		}
	}

	w.loadIgnores()
	return w, nil
}

// loadIgnores compiles the configured patterns and every ignore file present
// in the root. An unreadable ignore file is logged and skipped.
func (w *DocumentWalker) loadIgnores() {
	patterns := append(append([]string{}, defaultIgnorePatterns...), w.opts.IgnorePatterns...)
	w.ignores = append(w.ignores, gitignore.CompileIgnoreLines(patterns...))

	for _, name := range w.opts.IgnoreFiles {
		path := filepath.Join(w.opts.Root, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		gi, err := gitignore.CompileIgnoreFile(path)
		if err != nil {
			log.Warn("Failed to parse ignore file", "path", path, "error", err)
			continue
		}
		log.Debug("Loaded ignore file", "path", path)
		w.ignores = append(w.ignores, gi)
	}
}

// Walk calls fn for every document under the root, in lexical order.
func (w *DocumentWalker) Walk(fn func(FileInfo) error) error {
	w.stats = WalkStats{}

	return filepath.WalkDir(w.opts.Root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			log.Debug("Error accessing path", "path", path, "error", err)
			return nil
		}

		relPath, err := filepath.Rel(w.opts.Root, path)
		if err != nil {
			relPath = path
		}

		if d.IsDir() {
			if path != w.opts.Root && w.skipDir(d.Name(), relPath) {
				w.stats.DirsSkipped++
				return filepath.SkipDir
			}
			return nil
		}

		name := d.Name()
		ext := normalizeExt(filepath.Ext(name))

		switch {
		case IsTempFile(name):
			w.stats.TempFiles++
			return nil
		case w.types != nil && !w.types[ext]:
			w.stats.Unsupported++
			return nil
		case w.ignored(name, relPath):
			w.stats.Ignored++
			return nil
		}

		if w.opts.MaxFileCount > 0 && w.stats.Documents >= w.opts.MaxFileCount {
			log.Warn("Document limit reached", "limit", w.opts.MaxFileCount)
			return filepath.SkipAll
		}

		info, err := d.Info()
		if err != nil {
			log.Debug("Failed to get file info", "path", path, "error", err)
			return nil
		}
		if info.Size() == 0 {
			w.stats.Empty++
			return nil
		}
		if w.opts.MaxFileSize > 0 && info.Size() > w.opts.MaxFileSize {
			w.stats.TooLarge++
			w.stats.SkippedBytes += info.Size()
			return nil
		}

		hash, err := hashFile(path)
		if err != nil {
			log.Debug("Failed to hash file", "path", path, "error", err)
			return nil
		}

		w.stats.Documents++
		w.stats.TotalBytes += info.Size()

		return fn(FileInfo{
			Path:    path,
			RelPath: relPath,
			Size:    info.Size(),
			ModTime: info.ModTime(),
			Hash:    hash,
			Ext:     ext,
		})
	})
}

// Collect walks the tree and returns every document found.
func (w *DocumentWalker) Collect() ([]FileInfo, error) {
	var files []FileInfo
	err := w.Walk(func(fi FileInfo) error {
		files = append(files, fi)
		return nil
	})
	return files, err
}

// Stats returns the statistics of the last walk.
func (w *DocumentWalker) Stats() WalkStats {
	return w.stats
}

func (w *DocumentWalker) skipDir(name, relPath string) bool {
	if name == ".git" {
		return true
	}
	if !w.opts.IncludeHidden && strings.HasPrefix(name, ".") {
		return true
	}
	return w.matches(relPath + "/")
}

func (w *DocumentWalker) ignored(name, relPath string) bool {
	if !w.opts.IncludeHidden && strings.HasPrefix(name, ".") {
		return true
	}
	return w.matches(relPath)
}

func (w *DocumentWalker) matches(relPath string) bool {
	relPath = filepath.ToSlash(relPath)
	for _, gi := range w.ignores {
		if gi.MatchesPath(relPath) {
			return true
		}
	}
	return false
}

// IsTempFile reports whether name is a lock, backup or partial-download file
// left next to a document by an office suite, editor or browser.
func IsTempFile(name string) bool {
	switch {
	case strings.HasPrefix(name, "~$"): // Microsoft Office owner file
		return true
	case strings.HasPrefix(name, ".~lock.") && strings.HasSuffix(name, "#"): // LibreOffice
		return true
	case strings.HasSuffix(name, "~"):
		return true
	}
	switch normalizeExt(filepath.Ext(name)) {
	case ".tmp", ".part", ".crdownload", ".swp":
		return true
	}
	return false
}

func normalizeExt(ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return strings.ToLower(ext)
}

// hashFile streams a file through xxhash.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return fmt.Sprintf("%016x", h.Sum64()), nil
}

// HashContent computes the xxhash of content bytes.
func HashContent(content []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(content))
}

var defaultIgnorePatterns = []string{
	"node_modules/",
	"vendor/",
	"__pycache__/",
	"System Volume Information/",

	"Thumbs.db",
	"desktop.ini",

	// Databases, including our own
	"*.db",
	"*.db-wal",
	"*.db-shm",
	"*.sqlite",
	"*.sqlite3",
}
