package config

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// ChangeHandler is a callback function called when configuration changes.
type ChangeHandler func(*Config) error

// ErrorHandler receives reload and handler failures.
type ErrorHandler func(error)

// Watcher monitors the configuration file and pushes reloads to handlers.
type Watcher struct {
	loader   *Loader
	config   *Config
	handlers []ChangeHandler
	onError  ErrorHandler
	mu       sync.RWMutex
	watching bool
}

// NewWatcher creates a new configuration watcher. Reloaded values are copied
// into cfg so every holder of the pointer sees them.
func NewWatcher(loader *Loader, cfg *Config, onError ErrorHandler) *Watcher {
	if onError == nil {
		onError = func(error) {}
	}
	return &Watcher{
		loader:  loader,
		config:  cfg,
		onError: onError,
	}
}

// AddHandler registers a handler to be called when configuration changes.
func (w *Watcher) AddHandler(handler ChangeHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, handler)
}

// Start begins watching the configuration file for changes.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.watching {
		w.mu.Unlock()
		return fmt.Errorf("watcher already started")
	}
	w.watching = true
	w.mu.Unlock()

	w.loader.viper.OnConfigChange(func(e fsnotify.Event) {
		if !w.isWatching() {
			return
		}
		if err := w.reload(); err != nil {
			w.onError(fmt.Errorf("reloading %s: %w", e.Name, err))
		}
	})
	w.loader.viper.WatchConfig()

	return nil
}

// Stop makes subsequent change events no-ops. Viper offers no way to remove
// its fsnotify watch, so the goroutine lives until the process exits.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.watching = false
}

func (w *Watcher) isWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.watching
}

// reload re-reads the file, validates it offline and notifies handlers.
func (w *Watcher) reload() error {
	newConfig, err := w.loader.Reload()
	if err != nil {
		return err
	}
	if err := ValidateOffline(newConfig); err != nil {
		return err
	}

	w.config.replaceFrom(newConfig)
	w.notifyHandlers(w.config)
	return nil
}

// notifyHandlers calls all registered handlers with the new configuration.
func (w *Watcher) notifyHandlers(cfg *Config) {
	w.mu.RLock()
	handlers := make([]ChangeHandler, len(w.handlers))
	copy(handlers, w.handlers)
	w.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(cfg); err != nil {
			w.onError(fmt.Errorf("config change handler: %w", err))
		}
	}
}
