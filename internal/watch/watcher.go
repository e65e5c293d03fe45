package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces the burst of events a single rewrite produces.
const DefaultDebounce = 100 * time.Millisecond

// Watcher pings a Notifier whenever one of a set of files in a directory is
// written, created or renamed into place.
type Watcher struct {
	dir      string
	names    []string
	notifier *Notifier
	debounce time.Duration
	logger   *slog.Logger
}

// NewWatcher watches the given base names inside dir. A nil logger discards
// output.
func NewWatcher(dir string, names []string, notifier *Notifier, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Watcher{
		dir:      dir,
		names:    names,
		notifier: notifier,
		debounce: DefaultDebounce,
		logger:   logger,
	}
}

// Run watches until ctx is cancelled. The directory is watched rather than
// the files, since atomic writes replace the file and drop any watch on it.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := os.MkdirAll(w.dir, 0o750); err != nil {
		return fmt.Errorf("failed to create watched directory: %w", err)
	}
	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	w.logger.Debug("watching for changes", "dir", w.dir, "files", w.names)

	var (
		mu            sync.Mutex
		debounceTimer *time.Timer
	)
	defer func() {
		mu.Lock()
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}

			mu.Lock()
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, func() {
				w.logger.Debug("file changed", "file", event.Name)
				w.notifier.Broadcast()
			})
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return false
	}
	return slices.Contains(w.names, filepath.Base(event.Name))
}
