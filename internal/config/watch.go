package config

import (
	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Watcher reloads a configuration file on change (spec §6 hot-reload).
// It never mutates an in-use *Config in place: on each filesystem event
// it re-runs Load and hands the caller a fresh, fully validated Config,
// leaving the decision of what to do with an invalid reload (keep
// serving the old config, or exit) to onReload.
type Watcher struct {
	watcher *fsnotify.Watcher
	path    string
	log     *logrus.Logger
}

// Watch starts watching path for writes/renames (editors typically
// rename-then-create rather than write in place) and invokes onReload
// with the result of every re-Load. The initial load is not performed
// here; callers are expected to have already loaded the config once via
// Load before registering the watch.
func Watch(path string, log *logrus.Logger, onReload func(*Config, error)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, err
	}
	if log == nil {
		log = logrus.New()
	}

	w := &Watcher{watcher: fw, path: path, log: log}
	go w.loop(onReload)
	return w, nil
}

func (w *Watcher) loop(onReload func(*Config, error)) {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// Some editors replace the file (rename+create); re-add the
			// watch defensively in case the inode changed underneath us.
			_ = w.watcher.Add(w.path)
			cfg, err := Load(w.path)
			if err != nil {
				w.log.WithError(err).WithField("path", w.path).Warn("config: hot-reload rejected, keeping previous configuration")
			} else {
				w.log.WithField("path", w.path).Info("config: hot-reload applied")
			}
			onReload(cfg, err)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Warn("config: watcher error")
		}
	}
}

// Close stops the watch. Safe to call more than once.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
