package rag

import (
	"context"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher keeps the document index in sync with the document directory.
// Creates and writes re-index the file; removes and renames drop its chunks.
type Watcher struct {
	index    *DocumentIndex
	dir      string
	debounce time.Duration
}

// NewWatcher creates a watcher over dir.
func NewWatcher(index *DocumentIndex, dir string) *Watcher {
	return &Watcher{
		index: index,
		dir:   dir,
		// Editors fire several write events per save; re-index once the
		// burst settles.
		debounce: 500 * time.Millisecond,
	}
}

// Run watches until ctx is cancelled. It blocks; run it in a goroutine.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return err
	}
	slog.Info("Watching document directory", "dir", w.dir)

	pending := make(map[string]time.Time)
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !IsSupported(event.Name) {
				continue
			}

			switch {
			case event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename):
				delete(pending, event.Name)
				if err := w.index.RemoveFile(ctx, event.Name); err != nil {
					slog.Warn("Failed to de-index removed document", "path", event.Name, "error", err)
				} else {
					slog.Info("De-indexed removed document", "path", event.Name)
				}
			case event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write):
				pending[event.Name] = time.Now()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Document watcher error", "error", err)

		case <-ticker.C:
			now := time.Now()
			for path, stamp := range pending {
				if now.Sub(stamp) < w.debounce {
					continue
				}
				delete(pending, path)
				if _, err := w.index.IndexFile(ctx, path); err != nil {
					slog.Warn("Failed to re-index document", "path", path, "error", err)
				}
			}
		}
	}
}
