package notify

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// FileWatcher observes a document directory and reports when a specific
// document changes. It is the local fallback for watching a workflow when
// no broker is configured: callers re-read the document on each signal and
// diff against what they last saw.
type FileWatcher struct {
	dir    string
	logger *slog.Logger
}

// NewFileWatcher creates a watcher over a store directory.
func NewFileWatcher(dir string, logger *slog.Logger) *FileWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileWatcher{dir: dir, logger: logger}
}

// Watch signals on the returned channel whenever the named document is
// written. Signals are coalesced (a pending signal absorbs later ones), so
// every receive means "re-read now". Cancellation closes the channel and
// releases the watch.
func (fw *FileWatcher) Watch(ctx context.Context, name string) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	// Watch the directory, not the file: document writes replace the file
	// and a direct file watch would be lost on the first replace.
	if err := watcher.Add(fw.dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", fw.dir, err)
	}

	target := filepath.Join(fw.dir, name)
	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				select {
				case out <- struct{}{}:
				default:
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				fw.logger.Warn("file watcher error", "dir", fw.dir, "error", err)
			}
		}
	}()
	return out, nil
}
