package orchestrator

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/arborio/agentcore/internal/logging"
)

// debounceWindow coalesces bursts of filesystem events (a save in an
// editor often fires several writes in a row) into a single reload.
const debounceWindow = 250 * time.Millisecond

// envWatcher watches an environment directory's skills/mcpservers/prompts
// subtrees for changes and debounces them into a single callback that
// triggers the environment-switch flow.
type envWatcher struct {
	watcher *fsnotify.Watcher
	onReady func()

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// newEnvWatcher creates a watcher on dir (and its skills/mcpservers/prompts
// subdirectories, when present) that calls onChange after a debounce window
// once a write/create/remove/rename event is observed.
func newEnvWatcher(dir string, onChange func()) (*envWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}
	for _, sub := range []string{"skills", "mcpservers", "prompts"} {
		_ = w.Add(dir + "/" + sub) // best-effort: subdirectory may not exist
	}

	return &envWatcher{
		watcher: w,
		onReady: onChange,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// Start begins watching in a background goroutine.
func (w *envWatcher) Start() {
	if w == nil {
		return
	}
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()
	go w.run()
}

func (w *envWatcher) run() {
	defer close(w.doneCh)

	var debounce *time.Timer
	for {
		select {
		case <-w.stopCh:
			if debounce != nil {
				debounce.Stop()
			}
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceWindow, w.onReady)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Logger.Warn().Err(err).Msg("environment watcher error")
		}
	}
}

// Stop halts the watcher and releases its fsnotify handle.
func (w *envWatcher) Stop() {
	if w == nil {
		return
	}
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		_ = w.watcher.Close()
		return
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	_ = w.watcher.Close()
}
