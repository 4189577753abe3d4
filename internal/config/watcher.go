package config

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"switchboard/internal/logger"
)

// Watcher reloads the config file whenever it changes on disk and hands the
// result to a callback. It watches the parent directory rather than the file
// itself so editors that save via rename keep triggering events.
type Watcher struct {
	path     string
	onReload func(*Config)
	watcher  *fsnotify.Watcher
	stop     chan struct{}
	stopOnce sync.Once
	log      *logger.Logger
}

// Watch starts watching path. onReload runs on the watcher goroutine for
// every successful reload; it must not block for long.
func Watch(path string, onReload func(*Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		path:     path,
		onReload: onReload,
		watcher:  fsw,
		stop:     make(chan struct{}),
		log:      logger.Global().WithPrefix("config"),
	}

	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.stop:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error("watch error: %v", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		// Editors often produce a truncated intermediate write; keep the
		// previous config and wait for the next event.
		w.log.Warn("reload failed: %v", err)
		return
	}

	w.log.Info("config reloaded from %s", w.path)
	if w.onReload != nil {
		w.onReload(cfg)
	}
}

// Close stops the watcher. Safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stop)
		err = w.watcher.Close()
	})
	return err
}
