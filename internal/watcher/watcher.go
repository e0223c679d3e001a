// Package watcher reloads the stylesheet registry when files under the
// store directory change on disk. Bursts of filesystem events, such as an
// editor writing a file several times in a row, are debounced into a single
// reload.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dans-labs/transformer/internal/logging"
	"github.com/dans-labs/transformer/internal/store"
)

// Reloader is the part of the registry the watcher drives.
type Reloader interface {
	ReloadAll(ctx context.Context) ([]string, error)
}

// Watcher observes a stylesheet directory and reloads the registry after
// changes settle.
type Watcher struct {
	dir      string
	reloader Reloader
	fs       *fsnotify.Watcher
	debounce time.Duration
	logger   logging.Logger

	mu      sync.Mutex
	timer   *time.Timer
	pending int
}

// New builds a watcher over dir. The debounce window groups rapid events
// into one reload; zero falls back to 300ms.
func New(dir string, reloader Reloader, debounce time.Duration, logger logging.Logger) (*Watcher, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		dir:      dir,
		reloader: reloader,
		fs:       fs,
		debounce: debounce,
		logger:   logger.WithComponent("watcher"),
	}, nil
}

// Start registers the directory tree and runs the event loop until ctx is
// cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addRecursive(w.dir); err != nil {
		w.fs.Close()
		return err
	}
	go w.loop(ctx)
	return nil
}

// Close stops the underlying filesystem watcher.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return w.fs.Close()
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.fs.Add(path)
		}
		return nil
	})
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.Close()
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(ctx, event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn(ctx, err, "watch error", "dir", w.dir)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	// New subdirectories need their own watch before events inside them
	// can be seen.
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.fs.Add(event.Name); err != nil {
				w.logger.Warn(ctx, err, "watch subdirectory", "path", event.Name)
			}
			return
		}
	}
	if !store.IsStylesheet(event.Name) {
		return
	}
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) &&
		!event.Op.Has(fsnotify.Remove) && !event.Op.Has(fsnotify.Rename) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending++
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		w.flush(ctx)
	})
}

func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	count := w.pending
	w.pending = 0
	w.mu.Unlock()
	if count == 0 {
		return
	}

	names, err := w.reloader.ReloadAll(ctx)
	if err != nil {
		w.logger.Error(ctx, err, "reload after change", "dir", w.dir)
		return
	}
	w.logger.Info(ctx, "stylesheets reloaded", "events", count, "stylesheets", len(names))
}
