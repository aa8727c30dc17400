package config

import (
	"context"
	"fmt"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/personaforge/personaforge/pkg/logger"
)

// DefaultDebounce collapses the burst of events one save produces.
const DefaultDebounce = 500 * time.Millisecond

// Watcher reloads a config file when it changes and hands the new Config to
// the registered callbacks. Only the log level is applied at runtime; other
// changes are reported as needing a restart.
type Watcher struct {
	mu        sync.RWMutex
	fs        *fsnotify.Watcher
	loader    *Loader
	path      string
	callbacks []func(*Config)
	debounce  time.Duration
	log       logger.Logger

	current  *Config
	running  bool
	stopCh   chan struct{}
	stopOnce sync.Once
}

// WatcherOption is a functional option for Watcher configuration.
type WatcherOption func(*Watcher)

// WithDebounce sets the quiet period after the last file event before a
// reload.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithWatcherLogger sets the logger used for reload reports.
func WithWatcherLogger(l logger.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.log = l
		}
	}
}

// WithCurrent sets the config in force, so the first reload can tell which
// settings changed.
func WithCurrent(cfg *Config) WatcherOption {
	return func(w *Watcher) {
		w.current = cfg
	}
}

// NewWatcher creates a watcher for configPath. A nil loader gets a fresh one.
func NewWatcher(configPath string, loader *Loader, opts ...WatcherOption) (*Watcher, error) {
	if configPath == "" {
		return nil, fmt.Errorf("config path is required for watching")
	}
	if loader == nil {
		loader = NewLoader()
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		fs:       fs,
		loader:   loader,
		path:     filepath.Clean(configPath),
		debounce: DefaultDebounce,
		stopCh:   make(chan struct{}),
		log:      logger.Global(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Watch blocks until ctx is done or Stop is called. The parent directory is
// watched so files replaced by rename (editors, config maps) are seen.
func (w *Watcher) Watch(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher is already running")
	}
	w.running = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	if err := w.fs.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch config file %s: %w", w.path, err)
	}

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			return nil

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			timer.Reset(w.debounce)

		case <-timer.C:
			w.reload()

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("config watcher error", "path", w.path, "error", err)
		}
	}
}

// reload reads the file and runs the callbacks in registration order. A
// file that fails to load or validate leaves the current config in force.
func (w *Watcher) reload() {
	cfg, err := w.loader.Reload(w.path)
	if err != nil {
		w.log.Error("failed to reload config", "path", w.path, "error", err)
		return
	}

	w.mu.Lock()
	prev := w.current
	w.current = cfg
	callbacks := append([]func(*Config){}, w.callbacks...)
	w.mu.Unlock()

	if prev != nil && RequiresRestart(prev, cfg) {
		w.log.Warn("config changed outside hot-reloadable settings; restart to apply", "path", w.path)
	}
	w.log.Info("config reloaded", "path", w.path)

	for _, cb := range callbacks {
		w.run(cb, cfg)
	}
}

func (w *Watcher) run(cb func(*Config), cfg *Config) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("config callback panic", "panic", r)
		}
	}()
	cb(cfg)
}

// OnChange registers a callback for every successful reload.
func (w *Watcher) OnChange(callback func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Current returns the last config loaded by the watcher, or the one given
// through WithCurrent.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Stop ends Watch and releases the fsnotify handle.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stopCh)
		err = w.fs.Close()
	})
	return err
}

// IsRunning reports whether Watch is active.
func (w *Watcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// ConfigPath returns the path being watched.
func (w *Watcher) ConfigPath() string {
	return w.path
}

// HotReloadableConfig contains configuration values that can be hot-reloaded.
// Everything else requires a restart.
type HotReloadableConfig struct {
	LogLevel string
}

// ExtractHotReloadable extracts hot-reloadable values from Config.
func ExtractHotReloadable(cfg *Config) HotReloadableConfig {
	return HotReloadableConfig{LogLevel: cfg.Log.Level}
}

// RequiresRestart reports whether next differs from prev in anything but the
// hot-reloadable settings.
func RequiresRestart(prev, next *Config) bool {
	a, b := *prev, *next
	a.Log.Level, b.Log.Level = "", ""
	return !reflect.DeepEqual(a, b)
}

// LogLevelApplier returns an OnChange callback that moves l to the
// reloaded log level.
func LogLevelApplier(l logger.Logger) func(*Config) {
	var mu sync.Mutex
	return func(cfg *Config) {
		mu.Lock()
		defer mu.Unlock()
		next := logger.ParseLevel(ExtractHotReloadable(cfg).LogLevel)
		if l.GetLevel() == next {
			return
		}
		l.Info("log level changed", "from", l.GetLevel().String(), "to", next.String())
		l.SetLevel(next)
	}
}
