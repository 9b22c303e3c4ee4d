package web

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 100 * time.Millisecond

// WatchTemplates reloads t whenever a template in its override directory
// changes, calling onReload after each successful reload. It returns
// immediately when t uses the embedded templates, and otherwise runs until
// ctx is cancelled.
func WatchTemplates(ctx context.Context, t *Templates, logger *slog.Logger, onReload func()) error {
	if t.Dir() == "" {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(t.Dir()); err != nil {
		return err
	}
	logger.Info("templates: watching", slog.String("dir", t.Dir()))

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("templates: watcher stopped")
			return nil

		case <-fire:
			fire = nil
			if err := t.Reload(); err != nil {
				logger.Error("templates: reload failed", slog.String("error", err.Error()))
				continue
			}
			logger.Info("templates: reloaded")
			if onReload != nil {
				onReload()
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Ext(ev.Name) != ".tmpl" || ev.Op == fsnotify.Chmod {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				timer.Reset(reloadDebounce)
			}
			fire = timer.C

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("templates: watcher error", slog.String("error", err.Error()))
		}
	}
}
