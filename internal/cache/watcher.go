package cache

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Evicter drops a cached path.
type Evicter interface {
	Evict(path string)
}

// Watcher evicts cached files when their directory reports a change. Directories are
// added lazily through Watch.
type Watcher struct {
	fw      *fsnotify.Watcher
	evicter Evicter
	logger  *zap.Logger

	mu      sync.Mutex
	watched map[string]struct{}
	done    chan struct{}
}

// NewWatcher starts an fsnotify watcher that forwards change events to evicter.
func NewWatcher(evicter Evicter, logger *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Watcher{
		fw:      fw,
		evicter: evicter,
		logger:  logger,
		watched: make(map[string]struct{}),
		done:    make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Watch subscribes to changes in dir. Repeated calls for the same dir are no-ops.
func (w *Watcher) Watch(dir string) error {
	dir = filepath.Clean(dir)
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.watched[dir]; ok {
		return nil
	}
	if err := w.fw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.watched[dir] = struct{}{}
	w.logger.Debug("watching dataset directory", zap.String("dir", dir))
	return nil
}

// Close stops the watcher and waits for the event loop to exit.
func (w *Watcher) Close() error {
	err := w.fw.Close()
	<-w.done
	return err
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debug("dataset file changed", zap.String("path", ev.Name), zap.String("op", ev.Op.String()))
			w.evicter.Evict(filepath.Clean(ev.Name))
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("fsnotify error", zap.Error(err))
		}
	}
}
