package manager

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatcherConfig contains configuration for the Watcher.
type WatcherConfig struct {
	// Path is the directory to watch.
	Path string

	// DebounceInterval is the quiet period after the last event before a
	// reload fires. Editor saves and git checkouts produce event bursts;
	// debouncing collapses each burst into one reload.
	// Default: 200ms
	DebounceInterval time.Duration

	// Extensions lists the file extensions that trigger reloads.
	// Default: .yaml, .yml
	Extensions []string
}

// Watcher triggers policy reloads on file changes.
type Watcher struct {
	config  WatcherConfig
	watcher *fsnotify.Watcher
	manager *Manager
	logger  *slog.Logger
}

// NewWatcher creates a Watcher bound to a Manager.
func NewWatcher(config WatcherConfig, manager *Manager) (*Watcher, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("watcher requires a path")
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = 200 * time.Millisecond
	}
	if len(config.Extensions) == 0 {
		config.Extensions = []string{".yaml", ".yml"}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	return &Watcher{
		config:  config,
		watcher: fsw,
		manager: manager,
		logger:  slog.Default().With("component", "policy.watcher"),
	}, nil
}

// Watch blocks, reloading the manager on debounced changes, until the
// context is cancelled.
func (w *Watcher) Watch(ctx context.Context) error {
	if err := w.watcher.Add(w.config.Path); err != nil {
		return fmt.Errorf("watch %s: %w", w.config.Path, err)
	}

	w.logger.Info("policy watcher started",
		"path", w.config.Path,
		"debounce_ms", w.config.DebounceInterval.Milliseconds(),
	)

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("policy watcher stopped")
			return w.watcher.Close()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.config.DebounceInterval)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.config.DebounceInterval)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			if err := w.manager.Reload(); err != nil {
				w.logger.Error("watched reload failed", "error", err)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("policy watcher error", "error", err)
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(event.Name))
	for _, allowed := range w.config.Extensions {
		if ext == allowed {
			return true
		}
	}
	return false
}
