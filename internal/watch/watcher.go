// Package watch reloads a deck when its markdown file changes on disk.
package watch

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce collapses the burst of events editors produce on save.
const DefaultDebounce = 100 * time.Millisecond

// Watcher watches a single deck file and triggers reload.
type Watcher struct {
	watcher  *fsnotify.Watcher
	path     string
	onReload func(path string) error
	debounce time.Duration
	log      *zap.Logger

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher creates a watcher for path. The parent directory is watched so
// atomic saves (write to temp file, rename over) are noticed.
func NewWatcher(path string, onReload func(string) error, debounce time.Duration, log *zap.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsWatcher.Add(filepath.Dir(abs)); err != nil {
		fsWatcher.Close()
		return nil, err
	}
	log.Debug("Watching deck", zap.String("path", abs))

	return &Watcher{
		watcher:  fsWatcher,
		path:     abs,
		onReload: onReload,
		debounce: debounce,
		log:      log,
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching for file changes.
func (w *Watcher) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if filepath.Clean(event.Name) != w.path {
					continue
				}
				w.schedule()

			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.log.Warn("Watch error", zap.Error(err))

			case <-w.done:
				return
			}
		}
	}()
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	select {
	case <-w.done:
		return
	default:
	}
	w.log.Debug("Deck changed", zap.String("path", w.path))
	if err := w.onReload(w.path); err != nil {
		w.log.Warn("Reload failed", zap.String("path", w.path), zap.Error(err))
	}
}

// Stop stops the watcher. Pending reloads are dropped.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
		err = w.watcher.Close()
		w.wg.Wait()
	})
	return err
}
