// Package watch monitors a drop directory for new document files and hands
// them to a caller-supplied handler, debouncing rapid writes so half-copied
// files are not picked up.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"clauseguard/internal/logging"
	"clauseguard/internal/types"

	"github.com/fsnotify/fsnotify"
)

// documentExts are the file extensions treated as droppable documents.
// Text extraction from binary formats happens upstream of this watcher.
var documentExts = map[string]bool{
	".txt": true,
	".md":  true,
}

// Handler receives one document once its file has settled.
type Handler func(doc types.Document)

// DropWatcher watches a directory for created or modified document files.
type DropWatcher struct {
	mu          sync.RWMutex
	watcher     *fsnotify.Watcher
	dir         string
	handler     Handler
	debounceMap map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool

	stats Stats
}

// Stats tracks watcher activity for debugging.
type Stats struct {
	FilesSeen     int
	FilesHandled  int
	Errors        int
	LastEventPath string
	LastEventTime time.Time
}

// New creates a watcher over dir. The handler runs on the watcher goroutine;
// long work should be dispatched elsewhere by the handler itself.
func New(dir string, handler Handler) (*DropWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &DropWatcher{
		watcher:     w,
		dir:         dir,
		handler:     handler,
		debounceMap: make(map[string]time.Time),
		debounceDur: 500 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; the event loop runs in a goroutine.
func (dw *DropWatcher) Start(ctx context.Context) error {
	dw.mu.Lock()
	if dw.running {
		dw.mu.Unlock()
		return nil
	}
	dw.running = true
	dw.mu.Unlock()

	if err := os.MkdirAll(dw.dir, 0755); err != nil {
		logging.WatchWarn("Failed to create drop dir %s: %v (continuing anyway)", dw.dir, err)
	}
	if err := dw.watcher.Add(dw.dir); err != nil {
		logging.WatchWarn("Initial watch of %s failed: %v", dw.dir, err)
	} else {
		logging.Watch("Watching drop directory: %s", dw.dir)
	}

	go dw.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (dw *DropWatcher) Stop() {
	dw.mu.Lock()
	if !dw.running {
		dw.mu.Unlock()
		return
	}
	dw.running = false
	dw.mu.Unlock()

	close(dw.stopCh)
	<-dw.doneCh

	if err := dw.watcher.Close(); err != nil {
		logging.WatchError("Error closing watcher: %v", err)
	}
	logging.Watch("Drop watcher stopped")
}

// Running reports whether the event loop is active.
func (dw *DropWatcher) Running() bool {
	dw.mu.RLock()
	defer dw.mu.RUnlock()
	return dw.running
}

// GetStats returns a snapshot of watcher activity.
func (dw *DropWatcher) GetStats() Stats {
	dw.mu.RLock()
	defer dw.mu.RUnlock()
	return dw.stats
}

func (dw *DropWatcher) run(ctx context.Context) {
	defer close(dw.doneCh)

	debounceTicker := time.NewTicker(100 * time.Millisecond)
	defer debounceTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Watch("Drop watcher: context cancelled")
			return

		case <-dw.stopCh:
			return

		case event, ok := <-dw.watcher.Events:
			if !ok {
				return
			}
			dw.handleEvent(event)

		case err, ok := <-dw.watcher.Errors:
			if !ok {
				return
			}
			logging.WatchError("Drop watcher error: %v", err)
			dw.mu.Lock()
			dw.stats.Errors++
			dw.mu.Unlock()

		case <-debounceTicker.C:
			dw.processSettled()
		}
	}
}

func (dw *DropWatcher) handleEvent(event fsnotify.Event) {
	if !documentExts[strings.ToLower(filepath.Ext(event.Name))] {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	logging.WatchDebug("Drop event: %s %s", event.Op, event.Name)

	dw.mu.Lock()
	dw.stats.FilesSeen++
	dw.stats.LastEventPath = event.Name
	dw.stats.LastEventTime = time.Now()
	dw.debounceMap[event.Name] = time.Now()
	dw.mu.Unlock()
}

// processSettled hands off files whose last event is older than the
// debounce window.
func (dw *DropWatcher) processSettled() {
	dw.mu.Lock()
	now := time.Now()
	var ready []string
	for path, t := range dw.debounceMap {
		if now.Sub(t) >= dw.debounceDur {
			ready = append(ready, path)
			delete(dw.debounceMap, path)
		}
	}
	dw.mu.Unlock()

	for _, path := range ready {
		dw.dispatch(path)
	}
}

func (dw *DropWatcher) dispatch(path string) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.WatchDebug("File removed before pickup: %s", path)
			return
		}
		logging.WatchError("Failed to read dropped file %s: %v", path, err)
		dw.mu.Lock()
		dw.stats.Errors++
		dw.mu.Unlock()
		return
	}
	if len(strings.TrimSpace(string(content))) == 0 {
		logging.WatchDebug("Skipping empty file: %s", path)
		return
	}

	doc := types.Document{
		Content: string(content),
		Metadata: types.DocumentMetadata{
			Filename: filepath.Base(path),
			FilePath: path,
		},
	}
	logging.Watch("Picked up document: %s (%d bytes)", doc.Metadata.Filename, len(content))

	dw.mu.Lock()
	dw.stats.FilesHandled++
	dw.mu.Unlock()

	if dw.handler != nil {
		dw.handler(doc)
	}
}
