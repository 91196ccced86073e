// Package localwatch monitors a local documents directory and rebuilds the
// in-memory caches after edits, so the first request following a change does
// not pay the full load cost.
package localwatch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/ordserve/internal/cache"
	"git.home.luguber.info/inful/ordserve/internal/fingerprint"
	"git.home.luguber.info/inful/ordserve/internal/logfields"
)

// Watcher debounces filesystem events into cache reloads.
type Watcher struct {
	dir          string
	loader       *cache.Loader
	watcher      *fsnotify.Watcher
	stopOnce     sync.Once
	stopChan     chan struct{}
	reloadChan   chan struct{}
	debounceTime time.Duration
}

func New(dir string, loader *cache.Loader) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("resolve watch directory: %w", err)
	}
	return &Watcher{
		dir:          abs,
		loader:       loader,
		watcher:      fsw,
		stopChan:     make(chan struct{}),
		reloadChan:   make(chan struct{}, 1),
		debounceTime: 2 * time.Second,
	}, nil
}

// Start begins watching the directory tree.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addRecursive(w.dir); err != nil {
		return err
	}
	slog.Info("Watching local documents directory", logfields.Path(w.dir))

	go w.watchLoop(ctx)
	go w.reloadLoop(ctx)
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopChan)
		if err := w.watcher.Close(); err != nil {
			slog.Error("Error closing file watcher", logfields.Error(err))
		}
	})
}

// addRecursive watches dir and every subdirectory; fsnotify watches are not
// recursive on their own.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if d.Name() == ".git" {
			return filepath.SkipDir
		}
		if werr := w.watcher.Add(p); werr != nil {
			return fmt.Errorf("watch %s: %w", p, werr)
		}
		return nil
	})
}

func (w *Watcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op.Has(fsnotify.Create) {
				// New subdirectories need their own watch.
				_ = w.addRecursive(event.Name)
			}
			if event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create) ||
				event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename) {
				slog.Debug("Local content change detected", logfields.Path(event.Name))
				w.triggerReload()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("File watcher error", logfields.Error(err))
		}
	}
}

func (w *Watcher) reloadLoop(ctx context.Context) {
	var reloadTimer *time.Timer
	for {
		select {
		case <-ctx.Done():
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			return
		case <-w.stopChan:
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			return
		case <-w.reloadChan:
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			reloadTimer = time.AfterFunc(w.debounceTime, func() {
				if err := w.reload(ctx); err != nil {
					slog.Warn("Failed to reload local documents", logfields.Error(err))
				}
			})
		}
	}
}

func (w *Watcher) triggerReload() {
	select {
	case w.reloadChan <- struct{}{}:
	default:
	}
}

func (w *Watcher) reload(ctx context.Context) error {
	fp, err := fingerprint.ForDirectory(w.dir)
	if err != nil {
		return err
	}
	w.loader.Cache.HasDirectoryHashChanged(w.dir, fp)
	if w.loader.Cache.GetCachedOrdConfig(fp) != nil {
		return nil
	}
	slog.Info("Reloading local documents", logfields.Fingerprint(fp))
	return w.loader.Load(ctx, w.dir, fp)
}
