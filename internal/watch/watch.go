// Package watch reloads the plan when the architecture or functions
// documents change on disk.
package watch

import (
	"context"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/taskgraph/internal/docs"
)

// DefaultDebounce coalesces the bursts of events editors produce on save.
const DefaultDebounce = 200 * time.Millisecond

// Reloader re-reads the documents and reports whether the plan changed.
type Reloader interface {
	Reload(ctx context.Context) (bool, error)
}

// Watch watches dir until ctx is cancelled and calls r.Reload once edits to
// the architecture or functions documents settle for debounce. The progress
// document and temporary files are ignored.
func Watch(ctx context.Context, dir string, r Reloader, logger *slog.Logger, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return err
	}
	logger.Info("watcher: started", slog.String("dir", dir))

	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			timerCh = timer.C
			return
		}
		timer.Reset(debounce)
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-timerCh:
			changed, err := r.Reload(ctx)
			if err != nil {
				logger.Warn("watcher: reload failed", slog.String("error", err.Error()))
				continue
			}
			if changed {
				logger.Info("watcher: plan reloaded")
			} else {
				logger.Debug("watcher: documents unchanged")
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			kind, isDoc := docs.KindOf(ev.Name)
			if !isDoc || kind == docs.Progress {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			logger.Debug("watcher: document event", slog.String("kind", string(kind)), slog.String("op", ev.Op.String()))
			schedule()

		case werr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", werr.Error()))
		}
	}
}
