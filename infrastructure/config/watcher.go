package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/suibari/graph-be-more-blue/pkg/errors"
)

// Watcher reloads the YAML configuration file when it changes and notifies
// registered callbacks with the validated result. A reload that fails to
// parse or validate keeps the current configuration.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	logger  *zap.Logger

	mu       sync.RWMutex
	current  *Config
	onChange []func(*Config)

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewWatcher creates a watcher for the config file at path. initial is the
// configuration the process started with.
func NewWatcher(path string, initial *Config, logger *zap.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.NewConfigurationError("failed to create file watcher").WithCause(err)
	}

	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, errors.NewConfigurationError("failed to watch config file").WithCause(err)
	}
	// Editors and config management tools often replace the file instead of
	// writing in place, so watch the directory for the rename too.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		logger.Warn("failed to watch config directory", zap.Error(err))
	}

	return &Watcher{
		path:    path,
		watcher: fsw,
		logger:  logger,
		current: initial,
		stopCh:  make(chan struct{}),
	}, nil
}

// OnChange registers a callback invoked after each successful reload.
func (w *Watcher) OnChange(handler func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = append(w.onChange, handler)
}

// Current returns the configuration from the latest successful reload.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Start begins watching in a background goroutine.
func (w *Watcher) Start() {
	go w.watchLoop()
	w.logger.Info("configuration watcher started", zap.String("path", w.path))
}

// Stop stops watching.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.watcher.Close()
	})
}

func (w *Watcher) watchLoop() {
	var debounce *time.Timer
	const debounceDelay = 100 * time.Millisecond

	for {
		select {
		case <-w.stopCh:
			if debounce != nil {
				debounce.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDelay, w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("file watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Error("failed to reload configuration, keeping current", zap.Error(err))
		return
	}

	w.mu.Lock()
	w.current = cfg
	handlers := append([]func(*Config){}, w.onChange...)
	w.mu.Unlock()

	w.logger.Info("configuration reloaded", zap.String("path", w.path))

	for _, handler := range handlers {
		handler(cfg)
	}
}
