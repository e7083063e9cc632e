package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// FileWatcher monitors file system changes with debouncing.
// Rapid changes are collected and reported in a single onChange call after
// a quiet period.
type FileWatcher struct {
	debounceDelay time.Duration

	// Debouncing state
	timer        *time.Timer
	timerMu      sync.Mutex
	pendingPaths map[string]struct{}
	stopped      bool

	// Callback when changes are ready
	onChange func([]string)

	logger *zap.Logger
}

// NewWatcher creates a file watcher with the specified debounce delay.
// The onChange callback is called with changed paths after debouncing.
func NewWatcher(debounceDelay time.Duration, onChange func([]string), logger *zap.Logger) *FileWatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileWatcher{
		debounceDelay: debounceDelay,
		pendingPaths:  make(map[string]struct{}),
		onChange:      onChange,
		logger:        logger,
	}
}

// FileChanged notifies the watcher of a file change.
// Multiple rapid calls are debounced into a single onChange callback.
func (w *FileWatcher) FileChanged(path string) {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()
	if w.stopped {
		return
	}

	w.pendingPaths[path] = struct{}{}

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounceDelay, w.processPending)
}

// Stop drops pending changes. No callback runs after Stop returns, except
// one that had already started.
func (w *FileWatcher) Stop() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.pendingPaths = make(map[string]struct{})
}

// processPending is called after debounce delay.
func (w *FileWatcher) processPending() {
	w.timerMu.Lock()
	if w.stopped {
		w.timerMu.Unlock()
		return
	}
	paths := make([]string, 0, len(w.pendingPaths))
	for path := range w.pendingPaths {
		paths = append(paths, path)
	}
	w.pendingPaths = make(map[string]struct{})
	w.timer = nil
	w.timerMu.Unlock()

	sort.Strings(paths)
	// Trigger callback (outside lock)
	if len(paths) > 0 && w.onChange != nil {
		w.onChange(paths)
	}
}

// Watch feeds fsnotify events for files into the debouncer until ctx ends.
// Missing parent directories are created.
func (w *FileWatcher) Watch(ctx context.Context, files ...string) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer fsw.Close()

	targets := make(map[string]struct{}, len(files))
	for _, f := range files {
		f = filepath.Clean(f)
		targets[f] = struct{}{}

		dir := filepath.Dir(f)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ensure dir %s: %w", dir, err)
		}
		if err := fsw.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			name := filepath.Clean(event.Name)
			if _, ok := targets[name]; !ok {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.logger.Debug("File changed", zap.String("path", name), zap.String("event", event.Op.String()))
			w.FileChanged(name)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("fsnotify error", zap.Error(err))
		}
	}
}
