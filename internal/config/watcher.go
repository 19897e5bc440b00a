package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/modelrelay/modelrelay/internal/logging"
)

// Watcher monitors the config files and invokes a reload callback when
// either document changes. Events are debounced: editors often emit a
// burst of writes for a single save.
type Watcher struct {
	paths    Paths
	onChange func()
	watcher  *fsnotify.Watcher
	stopCh   chan struct{}

	mu      sync.Mutex
	running bool
	pending *time.Timer
}

const watchDebounce = 500 * time.Millisecond

// NewWatcher creates a config watcher. onChange runs on the watcher
// goroutine; callers hand the reload off to their own execution context.
func NewWatcher(paths Paths, onChange func()) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		paths:    paths,
		onChange: onChange,
		watcher:  fw,
		stopCh:   make(chan struct{}),
	}, nil
}

// Start begins watching the config directories. Watching the directory
// rather than the file survives the atomic rename dance editors and our
// own SaveDocument perform.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	dirs := make(map[string]bool)
	for _, p := range []string{w.paths.Global, w.paths.Project} {
		if p == "" {
			continue
		}
		dirs[filepath.Dir(p)] = true
	}
	for dir := range dirs {
		if err := w.watcher.Add(dir); err != nil {
			logging.L_debug("config: cannot watch dir", "dir", dir, "error", err)
		}
	}

	go w.loop()
	logging.L_info("config: watching for changes", "dirs", len(dirs))
	return nil
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(ev.Name) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.debounce()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.L_warn("config: watch error", "error", err)
		}
	}
}

func (w *Watcher) relevant(name string) bool {
	for _, p := range []string{w.paths.Global, w.paths.Project} {
		if p == "" {
			continue
		}
		if name == p {
			return true
		}
		for _, alt := range yamlSiblings(p) {
			if name == alt {
				return true
			}
		}
	}
	return false
}

func (w *Watcher) debounce() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending != nil {
		w.pending.Stop()
	}
	w.pending = time.AfterFunc(watchDebounce, func() {
		logging.L_debug("config: change detected, reloading")
		w.onChange()
	})
}

// Stop shuts the watcher down.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	w.running = false
	close(w.stopCh)
	if w.pending != nil {
		w.pending.Stop()
	}
	w.watcher.Close()
}
