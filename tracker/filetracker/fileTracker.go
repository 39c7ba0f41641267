// Package filetracker implements a dependency tracker backed by filesystem
// notifications. Script identifiers are tracked against the source files they
// depend on; a write or removal of a tracked file fans out a dependency-change
// event to all listeners.
package filetracker

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/robbyt/go-polytransform/internal/helpers"
	"github.com/robbyt/go-polytransform/tracker"
)

// FileTracker watches script source files and reports changes as
// dependency-change events keyed by script identifier. It implements
// tracker.Tracker.
type FileTracker struct {
	watcher *fsnotify.Watcher

	mu        sync.Mutex
	paths     map[string][]string // absolute file path -> script IDs depending on it
	listeners []tracker.Listener
	done      chan struct{}

	logHandler slog.Handler
	logger     *slog.Logger
}

// New creates a FileTracker and starts its event loop. Call Close to stop
// watching and release the underlying watcher.
func New(handler slog.Handler) (*FileTracker, error) {
	handler, logger := helpers.SetupLogger(handler, "tracker", "FileTracker")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ft := &FileTracker{
		watcher:    watcher,
		paths:      make(map[string][]string),
		done:       make(chan struct{}),
		logHandler: handler,
		logger:     logger,
	}
	go ft.run()
	return ft, nil
}

func (ft *FileTracker) String() string {
	return "filetracker.FileTracker"
}

// Track registers path as a dependency of scriptID and starts watching it.
func (ft *FileTracker) Track(scriptID string, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path %q: %w", path, err)
	}

	ft.mu.Lock()
	defer ft.mu.Unlock()

	ids, watched := ft.paths[abs]
	if !watched {
		if err := ft.watcher.Add(abs); err != nil {
			return fmt.Errorf("failed to watch %q: %w", abs, err)
		}
	}
	if !slices.Contains(ids, scriptID) {
		ft.paths[abs] = append(ids, scriptID)
	}

	ft.logger.Debug("tracking dependency", "scriptID", scriptID, "path", abs)
	return nil
}

// Untrack removes scriptID's dependency on path. The file stops being watched
// once no script depends on it.
func (ft *FileTracker) Untrack(scriptID string, path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}

	ft.mu.Lock()
	defer ft.mu.Unlock()

	ids := slices.DeleteFunc(ft.paths[abs], func(id string) bool { return id == scriptID })
	if len(ids) == 0 {
		delete(ft.paths, abs)
		if err := ft.watcher.Remove(abs); err != nil {
			ft.logger.Debug("failed to remove watch", "path", abs, "error", err)
		}
		return
	}
	ft.paths[abs] = ids
}

// AddListener implements tracker.Tracker.
func (ft *FileTracker) AddListener(l tracker.Listener) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.listeners = append(ft.listeners, l)
}

// RemoveListener implements tracker.Tracker.
func (ft *FileTracker) RemoveListener(l tracker.Listener) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.listeners = slices.DeleteFunc(ft.listeners, func(existing tracker.Listener) bool {
		return existing == l
	})
}

// Close stops the event loop and releases the filesystem watcher.
func (ft *FileTracker) Close() error {
	close(ft.done)
	return ft.watcher.Close()
}

func (ft *FileTracker) run() {
	for {
		select {
		case <-ft.done:
			return
		case event, ok := <-ft.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			ft.notify(event.Name)
		case err, ok := <-ft.watcher.Errors:
			if !ok {
				return
			}
			ft.logger.Warn("watcher error", "error", err)
		}
	}
}

func (ft *FileTracker) notify(path string) {
	ft.mu.Lock()
	ids := slices.Clone(ft.paths[path])
	listeners := slices.Clone(ft.listeners)
	ft.mu.Unlock()

	for _, id := range ids {
		ft.logger.Debug("dependency changed", "scriptID", id, "path", path)
		for _, l := range listeners {
			l.OnDependencyChange(id)
		}
	}
}
