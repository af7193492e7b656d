// Package logwatch watches module log files for writes and triggers
// history updates, so results land in the API between scheduled
// refreshes. Events are debounced per module because a suite run
// produces a burst of appends.
package logwatch

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/Tharunreddy-N/JnP-Automation/internal/config"
)

const defaultDebounce = 2 * time.Second

// Watcher maps filesystem writes on log files to module update
// callbacks.
type Watcher struct {
	modules  map[string]string // log file path -> module id
	onChange func(moduleID string)
	debounce time.Duration
	log      zerolog.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
}

func New(modules []config.Module, onChange func(moduleID string), log zerolog.Logger) *Watcher {
	byPath := make(map[string]string, len(modules))
	for _, m := range modules {
		if m.LogFile != "" {
			byPath[filepath.Clean(m.LogFile)] = m.ID
		}
	}
	return &Watcher{
		modules:  byPath,
		onChange: onChange,
		debounce: defaultDebounce,
		log:      log.With().Str("component", "logwatch").Logger(),
		pending:  make(map[string]*time.Timer),
	}
}

// Run watches until ctx is cancelled. Directories are watched rather
// than the files themselves so log rotation and recreation keep
// working.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dirs := make(map[string]bool)
	for path := range w.modules {
		dirs[filepath.Dir(path)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			w.log.Warn().Err(err).Str("dir", dir).Msg("watch failed, relying on schedule")
		}
	}
	w.log.Info().Int("modules", len(w.modules)).Msg("log watcher started")

	for {
		select {
		case <-ctx.Done():
			w.flush()
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			moduleID, watched := w.modules[filepath.Clean(ev.Name)]
			if !watched {
				continue
			}
			w.schedule(moduleID)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn().Err(err).Msg("watch error")
		}
	}
}

// schedule arms (or re-arms) the debounce timer for one module.
func (w *Watcher) schedule(moduleID string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[moduleID]; ok {
		timer.Reset(w.debounce)
		return
	}
	w.pending[moduleID] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, moduleID)
		w.mu.Unlock()
		w.onChange(moduleID)
	})
}

// flush cancels pending timers on shutdown.
func (w *Watcher) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, timer := range w.pending {
		timer.Stop()
		delete(w.pending, id)
	}
}
