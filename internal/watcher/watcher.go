// Package watcher triggers a catalog reload when one of its source files
// changes on disk.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// ReloadFunc is called once per debounced burst of changes. An error is
// logged and the watcher keeps running.
type ReloadFunc func(ctx context.Context) error

// Config configures a Watcher.
type Config struct {
	// Paths are the files to watch. Their parent directories are watched so
	// atomic replace-by-rename is seen.
	Paths []string
	// Debounce coalesces change events. Default 500ms.
	Debounce time.Duration
}

// Watcher watches source files and calls a ReloadFunc on change.
type Watcher struct {
	cfg    Config
	reload ReloadFunc
	logger zerolog.Logger
	files  map[string]struct{}

	cancel  context.CancelFunc
	stopped chan struct{}
	ready   chan struct{}

	mu            sync.Mutex
	debounceTimer *time.Timer
}

// New creates a watcher. It does nothing until Start.
func New(cfg Config, reload ReloadFunc, logger zerolog.Logger) (*Watcher, error) {
	if len(cfg.Paths) == 0 {
		return nil, fmt.Errorf("at least one path is required")
	}
	if reload == nil {
		return nil, fmt.Errorf("reload callback cannot be nil")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 500 * time.Millisecond
	}

	files := make(map[string]struct{})
	for _, p := range cfg.Paths {
		if p == "" {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", p, err)
		}
		files[abs] = struct{}{}
	}

	return &Watcher{
		cfg:     cfg,
		reload:  reload,
		logger:  logger.With().Str("component", "watcher").Logger(),
		files:   files,
		stopped: make(chan struct{}),
		ready:   make(chan struct{}),
	}, nil
}

// Start begins watching. It returns once the underlying fsnotify watcher is
// set up, or with an error if that fails.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}

	dirs := make(map[string]struct{})
	for f := range w.files {
		dirs[filepath.Dir(f)] = struct{}{}
	}
	for d := range dirs {
		if err := fsw.Add(d); err != nil {
			fsw.Close()
			return fmt.Errorf("watching %s: %w", d, err)
		}
	}

	watchCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	go w.watchLoop(watchCtx, fsw)

	select {
	case <-w.ready:
	case <-ctx.Done():
		return ctx.Err()
	}

	w.logger.Info().
		Int("files", len(w.files)).
		Dur("debounce", w.cfg.Debounce).
		Msg("Watching catalog sources")
	return nil
}

func (w *Watcher) watchLoop(ctx context.Context, fsw *fsnotify.Watcher) {
	defer close(w.stopped)
	defer fsw.Close()

	close(w.ready)

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			if w.debounceTimer != nil {
				w.debounceTimer.Stop()
			}
			w.mu.Unlock()
			return

		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("Source changed")
			w.handleChange(ctx)

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("Watcher error")
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
		return false
	}
	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	_, ok := w.files[abs]
	return ok
}

// handleChange restarts the debounce timer.
func (w *Watcher) handleChange(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.cfg.Debounce, func() {
		if ctx.Err() != nil {
			return
		}
		if err := w.reload(ctx); err != nil {
			w.logger.Error().Err(err).Msg("Reload failed, keeping previous catalog")
			return
		}
		w.logger.Info().Msg("Reloaded after source change")
	})
}

// Stop stops watching and waits up to five seconds for the loop to exit.
func (w *Watcher) Stop() error {
	if w.cancel == nil {
		return nil
	}
	w.cancel()
	select {
	case <-w.stopped:
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout waiting for watcher to stop")
	}
}
