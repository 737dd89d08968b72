package preview

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// sourceWatcher watches a source tree recursively, skipping build output.
type sourceWatcher struct {
	fs     *fsnotify.Watcher
	ignore []string // absolute directories never watched
}

func newSourceWatcher(root string, ignore []string) (*sourceWatcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify: %w", err)
	}
	w := &sourceWatcher{fs: fw}
	for _, dir := range ignore {
		if abs, err := filepath.Abs(dir); err == nil {
			w.ignore = append(w.ignore, abs)
		}
	}
	w.addDirsRecursive(root)
	return w, nil
}

func (w *sourceWatcher) Close() error { return w.fs.Close() }

func (w *sourceWatcher) addDirsRecursive(root string) {
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != root && w.ignored(path) {
			return filepath.SkipDir
		}
		if err := w.fs.Add(path); err != nil {
			slog.Warn("watch add failed", "dir", path, "error", err)
		}
		return nil
	})
}

// ignored reports whether changes under path should never trigger a rebuild.
func (w *sourceWatcher) ignored(path string) bool {
	if shouldIgnoreEvent(path) {
		return true
	}
	base := filepath.Base(path)
	if base == "node_modules" {
		return true
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	for _, dir := range w.ignore {
		if abs == dir || strings.HasPrefix(abs, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// handle processes one event and reports whether it should trigger a rebuild.
func (w *sourceWatcher) handle(ev fsnotify.Event) bool {
	if w.ignored(ev.Name) {
		return false
	}
	if ev.Op&fsnotify.Create == fsnotify.Create {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			w.addDirsRecursive(ev.Name)
		}
	}
	if ev.Op == fsnotify.Chmod {
		return false
	}
	slog.Debug("File change detected", "path", ev.Name, "op", ev.Op.String())
	return true
}

// shouldIgnoreEvent returns true for hidden, editor swap and OS metadata files.
func shouldIgnoreEvent(path string) bool {
	base := filepath.Base(path)

	if strings.HasPrefix(base, ".") {
		return true
	}

	if strings.HasSuffix(base, "~") ||
		strings.HasSuffix(base, ".swp") ||
		strings.HasSuffix(base, ".swx") ||
		strings.HasSuffix(base, ".tmp") ||
		strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#") {
		return true
	}

	return base == "Thumbs.db"
}

// newDebouncer returns a trigger that calls fn once delay has passed
// without further triggers.
func newDebouncer(delay time.Duration, fn func()) func() {
	var mu sync.Mutex
	var timer *time.Timer
	return func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(delay, fn)
	}
}
