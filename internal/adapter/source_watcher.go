package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mouse-blink/storyteller/internal/logging"
	m "github.com/mouse-blink/storyteller/internal/model"
)

// DefaultDebounce is how long a source must stay quiet before a change is reported.
const DefaultDebounce = 200 * time.Millisecond

// SourceWatcher reports changes to one source file.
type SourceWatcher struct {
	path     string
	debounce time.Duration
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
}

// NewSourceWatcher watches the directory holding path, so that editors which
// save by renaming a temp file over the original are still seen.
func NewSourceWatcher(path m.Path, debounce time.Duration, logger *slog.Logger) (*SourceWatcher, error) {
	if logger == nil {
		logger = logging.Discard()
	}

	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	abs, err := filepath.Abs(string(path))
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close()

		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	return &SourceWatcher{
		path:     abs,
		debounce: debounce,
		logger:   logger,
		watcher:  watcher,
	}, nil
}

// Run calls onChange once per burst of writes to the source until ctx is
// cancelled or the watcher is closed.
func (w *SourceWatcher) Run(ctx context.Context, onChange func()) error {
	defer func() {
		_ = w.watcher.Close()
	}()

	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()

			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(event.Name) != w.path {
				continue
			}

			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			w.logger.Debug("source changed", "path", w.path, "op", event.Op.String())
			timer.Reset(w.debounce)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}

			w.logger.Warn("source watcher error", "path", w.path, "error", err)
		case <-timer.C:
			onChange()
		}
	}
}
