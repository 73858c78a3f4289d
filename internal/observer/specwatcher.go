// Package observer watches the specs directory so the dashboard can
// refresh a cached plan when its spec file changes on disk.
package observer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// SpecChangeCallback is called when spec files change.
// specs holds the affected spec names (file base name without extension).
type SpecChangeCallback func(specs []string)

// SpecWatcher monitors a directory of spec files for edits
type SpecWatcher struct {
	watcher  *fsnotify.Watcher
	callback SpecChangeCallback
	debounce time.Duration

	dir string

	// Debounce state
	pending map[string]struct{}
	timer   *time.Timer
	mu      sync.Mutex

	cancel context.CancelFunc
}

// NewSpecWatcher creates a watcher for the given specs directory
func NewSpecWatcher(dir string, callback SpecChangeCallback) (*SpecWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	sw := &SpecWatcher{
		watcher:  watcher,
		callback: callback,
		debounce: 500 * time.Millisecond, // Debounce rapid editor saves
		dir:      dir,
		pending:  make(map[string]struct{}),
	}

	if _, err := os.Stat(dir); err == nil {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return nil, err
		}
	}

	return sw, nil
}

// Start begins watching for file changes
func (sw *SpecWatcher) Start(ctx context.Context) {
	ctx, sw.cancel = context.WithCancel(ctx)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-sw.watcher.Events:
				if !ok {
					return
				}
				sw.handleEvent(event)
			case _, ok := <-sw.watcher.Errors:
				if !ok {
					return
				}
				// Keep watching despite errors
			}
		}
	}()
}

// Stop stops watching for file changes
func (sw *SpecWatcher) Stop() {
	if sw.cancel != nil {
		sw.cancel()
	}
	sw.watcher.Close()
}

func (sw *SpecWatcher) handleEvent(event fsnotify.Event) {
	spec, ok := specName(event.Name)
	if !ok {
		return
	}

	// Only care about writes and creates
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.pending[spec] = struct{}{}

	// Reset or start debounce timer
	if sw.timer != nil {
		sw.timer.Stop()
	}
	sw.timer = time.AfterFunc(sw.debounce, sw.flush)
}

func (sw *SpecWatcher) flush() {
	sw.mu.Lock()
	pending := sw.pending
	sw.pending = make(map[string]struct{})
	sw.mu.Unlock()

	if sw.callback == nil || len(pending) == 0 {
		return
	}

	specs := make([]string, 0, len(pending))
	for s := range pending {
		specs = append(specs, s)
	}
	sw.callback(specs)
}

// SetDebounce sets the debounce duration for batching file changes
func (sw *SpecWatcher) SetDebounce(d time.Duration) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.debounce = d
}

// specName maps a spec file path to its spec name. Only markdown and
// yaml files count as specs.
func specName(path string) (string, bool) {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	switch strings.ToLower(ext) {
	case ".md", ".yaml", ".yml":
		return strings.TrimSuffix(base, ext), true
	}
	return "", false
}
