package rule

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/seqguard/seqguard/internal/logger"
)

// ReloadFunc builds a fresh snapshot from scratch. It is invoked after
// the rules directory settles; returning an error keeps the previous
// snapshot installed.
type ReloadFunc func() (*Snapshot, error)

// Watcher watches a rules directory and installs a new immutable
// snapshot when its contents change. Reload never mutates the running
// snapshot: sessions created before the swap keep evaluating against
// the set they started with.
type Watcher struct {
	dir      string
	reload   ReloadFunc
	install  func(*Snapshot)
	debounce time.Duration
}

// NewWatcher creates a rules-directory watcher. install receives each
// successfully rebuilt snapshot.
func NewWatcher(dir string, reload ReloadFunc, install func(*Snapshot)) *Watcher {
	return &Watcher{
		dir:      dir,
		reload:   reload,
		install:  install,
		debounce: 250 * time.Millisecond,
	}
}

// Run blocks watching the directory until the context is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = fsw.Close() }()

	if err := fsw.Add(w.dir); err != nil {
		return err
	}

	var timer *time.Timer
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !isRuleFile(event.Name) {
				continue
			}
			// Debounce: editors fire several events per save.
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			pending = timer.C
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Str("dir", w.dir).Msg("Rules watcher error")
		case <-pending:
			pending = nil
			snap, err := w.reload()
			if err != nil {
				logger.Warn().Err(err).Str("dir", w.dir).Msg("Rules reload failed, keeping previous snapshot")
				continue
			}
			w.install(snap)
			logger.Info().Int("rules", snap.Len()).Str("dir", w.dir).Msg("Installed new rule snapshot")
		}
	}
}
