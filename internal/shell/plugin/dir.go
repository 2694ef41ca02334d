package plugin

import (
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// LoadDir loads every "*.so" file in dir, in directory-listing order, and
// registers each that loads successfully. A plugin that fails to load or
// fails Init is skipped with a logged warning rather than aborting the
// whole directory scan.
func (r *Registry) LoadDir(dir string, shell Shell) error {
	matches, err := filepath.Glob(filepath.Join(dir, "*.so"))
	if err != nil {
		return err
	}
	for _, path := range matches {
		if err := r.loadOne(path, shell); err != nil {
			r.logger.Warnf("%s", err)
		}
	}
	return nil
}

func (r *Registry) loadOne(path string, shell Shell) error {
	m, err := loadSymbol(path)
	if err != nil {
		return err
	}
	return r.Register(m, shell)
}

// Watch installs an fsnotify watch on dir and loads any "*.so" file created
// there after startup, letting a plugin be dropped into the plugin
// directory while the shell is running. Watch returns the underlying
// fsnotify.Watcher so the caller can Close it at shutdown; errors observed
// while watching are logged rather than propagated, since a broken watch
// should never bring down the REPL.
func (r *Registry) Watch(dir string, shell Shell) (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !strings.HasSuffix(ev.Name, ".so") {
					continue
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
					continue
				}
				if err := r.loadOne(ev.Name, shell); err != nil {
					r.logger.Warnf("%s", err)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				r.logger.Warnf("plugin watch: %s", err)
			}
		}
	}()

	return w, nil
}
