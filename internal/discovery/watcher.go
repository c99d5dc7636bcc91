// Package discovery watches custom integration roots and invalidates the
// registry's custom index when integrations are added, removed, or their
// manifests change. Built-in roots are immutable at runtime and are not
// watched.
package discovery

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ErrWatcherClosed is returned when operations are attempted on a closed
// watcher.
var ErrWatcherClosed = errors.New("discovery: watcher closed")

const manifestFile = "manifest.json"

// Invalidator receives notice that the set of custom integrations may have
// changed. Satisfied by *integration.Registry.
type Invalidator interface {
	InvalidateCustom()
}

// Watcher observes custom integration roots for structural changes.
type Watcher struct {
	logger  *zap.Logger
	watcher *fsnotify.Watcher
	inv     Invalidator

	mu     sync.Mutex
	roots  map[string]bool // watched custom roots
	dirs   map[string]bool // watched integration directories
	closed bool

	closeCh  chan struct{}
	closedWg sync.WaitGroup
}

// NewWatcher starts watching the given custom roots. Roots that do not exist
// yet are skipped with a log entry; they can be added later with AddRoot.
func NewWatcher(logger *zap.Logger, inv Invalidator, roots []string) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		logger:  logger,
		watcher: fsw,
		inv:     inv,
		roots:   make(map[string]bool),
		dirs:    make(map[string]bool),
		closeCh: make(chan struct{}),
	}

	for _, root := range roots {
		if err := w.AddRoot(root); err != nil {
			w.logger.Warn("skipping custom root",
				zap.String("root", root),
				zap.Error(err))
		}
	}

	w.closedWg.Add(1)
	go w.processLoop()

	return w, nil
}

// AddRoot starts watching a custom root and its integration directories.
func (w *Watcher) AddRoot(root string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWatcherClosed
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	if w.roots[absRoot] {
		return nil
	}

	if _, err := os.Stat(absRoot); err != nil {
		return err
	}

	if err := w.watcher.Add(absRoot); err != nil {
		return err
	}
	w.roots[absRoot] = true

	// Watch each integration directory so manifest edits are seen.
	entries, err := os.ReadDir(absRoot)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(absRoot, entry.Name())
		if err := w.watcher.Add(dir); err != nil {
			w.logger.Warn("cannot watch integration directory",
				zap.String("dir", dir),
				zap.Error(err))
			continue
		}
		w.dirs[dir] = true
	}

	w.logger.Debug("watching custom root", zap.String("root", absRoot))
	return nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)
	w.mu.Unlock()

	err := w.watcher.Close()
	w.closedWg.Wait()
	return err
}

func (w *Watcher) processLoop() {
	defer w.closedWg.Done()

	for {
		select {
		case <-w.closeCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("discovery watcher error", zap.Error(err))
		}
	}
}

// handleEvent invalidates the custom index when an integration directory is
// created, removed, or renamed under a root, or when a manifest.json changes.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	dirty := false

	switch {
	case filepath.Base(event.Name) == manifestFile:
		dirty = true

	case w.isRootChild(event.Name):
		dirty = true

		// New integration directory appears under a watched root: watch it
		// so later manifest edits are seen too.
		if event.Op.Has(fsnotify.Create) {
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				w.watchDir(event.Name)
			}
		}
	}

	if !dirty {
		return
	}

	w.logger.Debug("custom integration change",
		zap.String("path", event.Name),
		zap.String("op", event.Op.String()))
	w.inv.InvalidateCustom()
}

// isRootChild reports whether path is an immediate child of a watched root.
func (w *Watcher) isRootChild(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.roots[filepath.Dir(path)]
}

func (w *Watcher) watchDir(dir string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || w.dirs[dir] {
		return
	}
	if err := w.watcher.Add(dir); err != nil {
		w.logger.Warn("cannot watch integration directory",
			zap.String("dir", dir),
			zap.Error(err))
		return
	}
	w.dirs[dir] = true
}
