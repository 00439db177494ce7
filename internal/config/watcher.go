package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits after the last change
// before reloading.
const DefaultDebounce = 500 * time.Millisecond

// Watcher reloads the configuration whenever the config file or one of the
// extra watched files changes. Directories are watched rather than files so
// editors that replace files by rename are seen too.
type Watcher struct {
	path     string
	files    map[string]bool
	onReload func(*Config, error)
	debounce time.Duration
	logger   *slog.Logger

	fs      *fsnotify.Watcher
	current *Config
	mu      sync.RWMutex
	reloads atomic.Uint32
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithFiles adds files whose changes also trigger a reload.
func WithFiles(paths ...string) WatcherOption {
	return func(w *Watcher) {
		for _, p := range paths {
			if p != "" {
				w.files[filepath.Clean(p)] = true
			}
		}
	}
}

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// WithLogger sets the logger for watch events.
func WithLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// NewWatcher loads the config at path and prepares to watch it. onReload is
// called after every debounced change with the new config, or with the
// error that prevented loading it.
func NewWatcher(path string, onReload func(*Config, error), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     filepath.Clean(path),
		files:    make(map[string]bool),
		onReload: onReload,
		debounce: DefaultDebounce,
		logger:   slog.New(slog.DiscardHandler),
	}
	w.files[w.path] = true
	for _, opt := range opts {
		opt(w)
	}

	cfg, err := LoadAndValidate(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load initial config: %w", err)
	}
	w.current = cfg

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	dirs := make(map[string]bool)
	for f := range w.files {
		dirs[filepath.Dir(f)] = true
	}
	for d := range dirs {
		if err := fs.Add(d); err != nil {
			_ = fs.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", d, err)
		}
	}
	w.fs = fs
	return w, nil
}

// Run handles file events until ctx is done or Close is called.
func (w *Watcher) Run(ctx context.Context) error {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if !w.watching(event.Name) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.logger.Debug("file changed", "path", event.Name, "op", event.Op.String())
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.reload)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

// Watch adds files whose changes trigger a reload, for example a weights
// path that only appeared in a reloaded config. Files already watched are
// ignored.
func (w *Watcher) Watch(paths ...string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, p := range paths {
		if p == "" {
			continue
		}
		p = filepath.Clean(p)
		if w.files[p] {
			continue
		}
		if err := w.fs.Add(filepath.Dir(p)); err != nil {
			return fmt.Errorf("failed to watch %s: %w", filepath.Dir(p), err)
		}
		w.files[p] = true
		w.logger.Debug("watching file", "path", p)
	}
	return nil
}

func (w *Watcher) watching(name string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.files[filepath.Clean(name)]
}

// Close stops watching. Run returns once the event channels close.
func (w *Watcher) Close() error {
	return w.fs.Close()
}

func (w *Watcher) reload() {
	count := w.reloads.Add(1)
	w.logger.Info("reloading config", "path", w.path, "count", count)

	cfg, err := LoadAndValidate(w.path)
	if err != nil {
		w.logger.Error("failed to reload config", "error", err)
		w.onReload(nil, err)
		return
	}

	w.mu.Lock()
	w.current = cfg
	w.mu.Unlock()
	w.onReload(cfg, nil)
}

// Snapshot returns the most recently loaded config.
func (w *Watcher) Snapshot() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// ReloadCount returns how many reloads have run.
func (w *Watcher) ReloadCount() uint32 {
	return w.reloads.Load()
}
