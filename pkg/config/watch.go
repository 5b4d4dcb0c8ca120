package config

import (
	"github.com/fsnotify/fsnotify"

	"github.com/kandobyte/mcpbox/pkg/log"
)

// Watcher notifies on every write to the configuration file, grounded on
// the teacher's FileBasedConfiguration.Watch pattern (pkg/gateway/reload.go
// in the teacher). It carries no reload logic of its own: the caller
// re-Loads the file and decides what changed.
type Watcher struct {
	fsw    *fsnotify.Watcher
	Events chan struct{}
}

// Watch starts watching path for writes. Call Close when done.
func Watch(path string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(path); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	w := &Watcher{fsw: fsw, Events: make(chan struct{}, 1)}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			select {
			case w.Events <- struct{}{}:
			default:
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Warnf("config watch error: %v", err)
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
