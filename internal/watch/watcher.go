// Package watch turns changes to a file into firings of an evchan channel.
package watch

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/telnet2/evchan/internal/logging"
	"github.com/telnet2/evchan/pkg/evchan"
)

// Change describes one observed change to the watched file.
type Change struct {
	Path string
	Op   string
	Time time.Time
}

// Watcher watches a single file by monitoring its parent directory, so
// editors that replace the file through a rename keep being observed.
type Watcher struct {
	watcher *fsnotify.Watcher
	path    string
	changes evchan.Triggerable[Change]
	logger  zerolog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
	mu      sync.Mutex
}

// NewWatcher creates a watcher for path. The file does not need to exist yet.
func NewWatcher(path string) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, err
	}

	logger := logging.ForComponent("watch")
	logger.Debug().Str("path", abs).Msg("file watcher initialized")

	return &Watcher{
		watcher: w,
		path:    abs,
		changes: evchan.New[Change](),
		logger:  logger,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// Path returns the absolute path being watched.
func (w *Watcher) Path() string {
	return w.path
}

// Changes is fired from the watcher goroutine, one change at a time.
func (w *Watcher) Changes() evchan.Subscribable[Change] {
	return evchan.ReadOnly[Change](w.changes)
}

// Start begins watching.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()
	go w.run()
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			w.fire(Change{Path: w.path, Op: ev.Op.String(), Time: time.Now()})
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("file watcher error")
		}
	}
}

// fire notifies listeners. A failing listener is logged and the loop keeps
// running; later listeners miss that change.
func (w *Watcher) fire(c Change) {
	w.logger.Debug().Str("path", c.Path).Str("op", c.Op).Msg("file changed")
	if err := w.changes.Fire(c); err != nil {
		w.logger.Warn().Err(err).Str("path", c.Path).Msg("change listener failed")
	}
}

// Stop stops the watcher and waits for the watch goroutine to exit.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	started := w.started
	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}
	w.mu.Unlock()

	if started {
		<-w.doneCh
	}

	return w.watcher.Close()
}
