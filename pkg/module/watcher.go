package module

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher hot-reloads modules when manifests in a directory change: a written
// or created manifest is reloaded (or installed when new), a removed one is
// unloaded.
type Watcher struct {
	manager  *Manager
	dir      string
	opts     []ResolveOption
	debounce time.Duration
	log      zerolog.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
	wg     sync.WaitGroup
}

// NewWatcher returns a watcher over dir. opts apply to modules it installs.
func NewWatcher(manager *Manager, dir string, log zerolog.Logger, opts ...ResolveOption) *Watcher {
	return &Watcher{
		manager:  manager,
		dir:      dir,
		opts:     opts,
		debounce: defaultDebounce,
		log:      log,
		timers:   make(map[string]*time.Timer),
	}
}

// SetDebounce changes the quiet period before a change is applied.
func (w *Watcher) SetDebounce(d time.Duration) { w.debounce = d }

// Run watches until ctx is done. Pending reloads are cancelled on exit.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.log.Info().Str("event", "module.watcher_started").Str("dir", w.dir).Msg("watching module manifests")

	defer w.stopTimers()
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Str("event", "module.watcher_stopped").Msg("module watcher stopped")
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !IsManifest(ev.Name) {
				continue
			}
			w.log.Debug().
				Str("event", "module.manifest_changed").
				Str("path", ev.Name).
				Str("op", ev.Op.String()).
				Msg("manifest changed")
			w.schedule(ctx, ev.Name)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Error().Err(err).Str("event", "module.watcher_error").Msg("module watcher error")
		}
	}
}

// schedule debounces changes per path. The file is stat'ed when the timer
// fires, so a write followed by a remove ends in an unload.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.wg.Add(1)
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		defer w.wg.Done()
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		w.apply(ctx, path)
	})
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	for path, t := range w.timers {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.timers, path)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *Watcher) apply(ctx context.Context, path string) {
	id := IDForPath(path)
	logger := w.log.With().Str("path", filepath.Base(path)).Logger()

	if !fileExists(path) {
		if mod, ok := w.manager.Get(id); ok {
			w.manager.UnloadModules(ctx, []*Module{mod}, "manifest removed")
		}
		return
	}

	var (
		r   Report
		err error
	)
	if _, ok := w.manager.Get(id); ok {
		r, err = w.manager.Reload(ctx, id)
	} else {
		r, err = w.manager.Install(ctx, path, w.opts...)
	}
	if err != nil {
		logger.Error().Err(err).Str("event", "module.hot_reload_failed").Msg("module reload failed")
		return
	}
	logger.Info().
		Str("event", "module.hot_reloaded").
		Str("module", r.Name).
		Str("state", r.State.String()).
		Msg("module reloaded")
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
