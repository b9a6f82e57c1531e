package kb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces the burst of events an editor save produces.
const DefaultDebounce = 500 * time.Millisecond

// Watcher reloads a knowledge-base directory into a Store when any of its
// files change. The whole snapshot is replaced on every reload.
type Watcher struct {
	dir      string
	store    *Store
	logger   *slog.Logger
	debounce time.Duration
	onReload func(*Snapshot)

	mu      sync.Mutex
	timer   *time.Timer
	stopped chan struct{}
	cancel  context.CancelFunc
}

// NewWatcher creates a watcher for dir. onReload, if set, runs after each swap.
func NewWatcher(dir string, store *Store, logger *slog.Logger, onReload func(*Snapshot)) (*Watcher, error) {
	if dir == "" {
		return nil, errors.New("kb watcher: empty directory")
	}
	if store == nil {
		return nil, errors.New("kb watcher: nil store")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		dir:      dir,
		store:    store,
		logger:   logger,
		debounce: DefaultDebounce,
		onReload: onReload,
		stopped:  make(chan struct{}),
	}, nil
}

// Start installs the watch on the directory and begins reloading. A watch
// that cannot be installed is returned as an error and nothing is watched.
func (w *Watcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		close(w.stopped)
		return fmt.Errorf("kb watcher: create: %w", err)
	}
	if err := fw.Add(w.dir); err != nil {
		_ = fw.Close()
		close(w.stopped)
		return fmt.Errorf("kb watcher: add %q: %w", w.dir, err)
	}
	w.logger.Info("watching knowledge bases", "path", w.dir, "debounce", w.debounce)

	watchCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	go w.loop(watchCtx, fw)
	return nil
}

// Stop cancels the watch loop and waits for it to exit.
func (w *Watcher) Stop() error {
	if w.cancel != nil {
		w.cancel()
	}
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	select {
	case <-w.stopped:
		return nil
	case <-time.After(5 * time.Second):
		return errors.New("kb watcher: timeout waiting for stop")
	}
}

func (w *Watcher) loop(ctx context.Context, fw *fsnotify.Watcher) {
	defer close(w.stopped)
	defer fw.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			if !isKnowledgeBaseFile(ev.Name) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				w.schedule(ctx)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("kb watcher error", "error", err)
		}
	}
}

func (w *Watcher) schedule(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() { w.reload(ctx) })
}

func (w *Watcher) reload(ctx context.Context) {
	snap, err := LoadDir(ctx, w.dir, w.logger)
	if err != nil {
		w.logger.Warn("knowledge base reload aborted", "path", w.dir, "error", err)
		return
	}
	w.store.Swap(snap)
	w.logger.Info("knowledge bases reloaded", "path", w.dir)
	if w.onReload != nil {
		w.onReload(snap)
	}
}

func isKnowledgeBaseFile(name string) bool {
	switch filepath.Base(name) {
	case SignaturesFile, PluginRulesFile, GraphicsRulesFile, HookFrameworksFile, GuidesFile:
		return true
	}
	return false
}
