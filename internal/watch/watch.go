// Package watch re-runs analysis when source files change, debouncing
// bursts of filesystem events into single passes.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce batches rapid event bursts (editor saves, branch
// switches) into one run.
const DefaultDebounce = 500 * time.Millisecond

// Config configures a watcher.
type Config struct {
	Root     string
	Debounce time.Duration

	// OnChange runs after the debounce window closes; changed holds the
	// paths seen since the last invocation.
	OnChange func(ctx context.Context, changed []string) error
}

// Watcher drives the watch loop.
type Watcher struct {
	cfg Config
	fsw *fsnotify.Watcher
}

// New validates the config and prepares the watcher.
func New(cfg Config) (*Watcher, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("root is required")
	}
	if cfg.OnChange == nil {
		return nil, fmt.Errorf("OnChange is required")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	return &Watcher{cfg: cfg, fsw: fsw}, nil
}

// Run watches until the context is cancelled. Directories are watched
// recursively; new directories join the watch as they appear.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	if err := w.addRecursive(w.cfg.Root); err != nil {
		return err
	}

	var (
		pending []string
		timer   *time.Timer
		timerC  <-chan time.Time
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if w.ignored(event.Name) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.addRecursive(event.Name)
				}
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				pending = append(pending, event.Name)
				if timer == nil {
					timer = time.NewTimer(w.cfg.Debounce)
					timerC = timer.C
				} else {
					timer.Reset(w.cfg.Debounce)
				}
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "warning: watch error: %v\n", err)

		case <-timerC:
			timer = nil
			timerC = nil
			changed := pending
			pending = nil
			if err := w.cfg.OnChange(ctx, changed); err != nil {
				fmt.Fprintf(os.Stderr, "warning: change handler failed: %v\n", err)
			}
		}
	}
}

// ignored filters state-directory and VCS churn out of the event stream.
func (w *Watcher) ignored(path string) bool {
	rel, err := filepath.Rel(w.cfg.Root, path)
	if err != nil {
		return true
	}
	rel = filepath.ToSlash(rel)
	for _, prefix := range []string{".ace/", ".git/", "__pycache__/"} {
		if strings.HasPrefix(rel, prefix) {
			return true
		}
	}
	return strings.HasSuffix(rel, ".tmp") || strings.Contains(rel, "/.tmp-")
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		base := filepath.Base(path)
		switch base {
		case ".git", ".ace", "__pycache__", "node_modules", ".venv":
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			fmt.Fprintf(os.Stderr, "warning: cannot watch %s: %v\n", path, err)
		}
		return nil
	})
}
