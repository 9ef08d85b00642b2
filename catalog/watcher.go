package catalog

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/fsnotify/fsnotify"
)

const (
	defaultDebouncePeriod = 500 * time.Millisecond
)

// Watcher reloads a catalog when its definition file changes.
type Watcher struct {
	// The catalog updated on reloads.
	Catalog *Catalog

	// The YAML file to watch.
	Path string

	// The delay to wait for the file to be quiet before reloading. Defaults to
	// 500ms.
	DebouncePeriod time.Duration

	// Called after each reload attempt with the loading error, if any.
	OnReload func(error)

	mutex         sync.Mutex
	debounceTimer *time.Timer
}

// Reload loads the watched file into the catalog. The catalog is left
// untouched when the file can't be loaded.
func (w *Watcher) Reload() error {
	definitions, err := LoadFile(w.Path)
	if err != nil {
		return err
	}

	w.Catalog.Replace(definitions)
	logs.WithTag("path", w.Path).
		WithTag("definitions", len(definitions)).
		Info("catalog reloaded")
	return nil
}

// Watch watches the catalog file until the given context is canceled. The
// parent directory is watched so that editors replacing the file by a rename
// are handled.
func (w *Watcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.New("creating catalog watcher failed").Wrap(err)
	}
	defer watcher.Close()

	path, err := filepath.Abs(w.Path)
	if err != nil {
		return errors.New("resolving catalog path failed").
			WithTag("path", w.Path).
			Wrap(err)
	}

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return errors.New("watching catalog directory failed").
			WithTag("path", w.Path).
			Wrap(err)
	}
	defer w.stopTimer()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(event.Name) != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			logs.WithTag("path", w.Path).
				WithTag("op", event.Op.String()).
				Debug("catalog file changed")
			w.scheduleReload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logs.Warn(errors.New("catalog watcher error").
				WithTag("path", w.Path).
				Wrap(err))
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}

	period := w.DebouncePeriod
	if period <= 0 {
		period = defaultDebouncePeriod
	}

	w.debounceTimer = time.AfterFunc(period, func() {
		err := w.Reload()
		if err != nil {
			logs.Warn(errors.New("catalog reload failed, keeping previous definitions").
				WithTag("path", w.Path).
				Wrap(err))
		}

		if w.OnReload != nil {
			w.OnReload(err)
		}
	})
}

func (w *Watcher) stopTimer() {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
}
