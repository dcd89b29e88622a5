package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	xglog "github.com/ManuGH/videocat/internal/log"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultReloadDebounce collapses the burst of events an editor produces
// when saving a file.
const DefaultReloadDebounce = 500 * time.Millisecond

// ApplyFunc receives every successfully reloaded configuration together with
// the one it replaces.
type ApplyFunc func(old, next AppConfig)

// Watcher reloads the configuration file when it changes. Edits that fail
// to load or validate are logged and the previous configuration is kept.
type Watcher struct {
	path    string
	version string
	apply   ApplyFunc
	logger  zerolog.Logger

	// Debounce delays a reload after the last file event.
	Debounce time.Duration

	mu      sync.RWMutex
	current AppConfig
}

// NewWatcher watches path, starting from current.
func NewWatcher(path, version string, current AppConfig, apply ApplyFunc) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	return &Watcher{
		path:     abs,
		version:  version,
		apply:    apply,
		logger:   xglog.WithComponent("config"),
		Debounce: DefaultReloadDebounce,
		current:  current,
	}, nil
}

// Current returns the configuration in effect.
func (w *Watcher) Current() AppConfig {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Reload loads and validates the file, and applies it on success.
func (w *Watcher) Reload() error {
	next, err := NewLoader(w.path, w.version).Load()
	if err != nil {
		w.logger.Error().Err(err).Str(xglog.FieldEvent, "config.reload_failed").
			Msg("configuration change rejected, keeping the current one")
		return err
	}

	w.mu.Lock()
	old := w.current
	w.current = next
	w.mu.Unlock()

	if w.apply != nil {
		w.apply(old, next)
	}
	w.logger.Info().Str(xglog.FieldEvent, "config.reload_success").Msg("configuration reloaded")
	return nil
}

// Run watches the directory of the file, so that editors replacing the file
// by rename are seen too, until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch config dir: %w", err)
	}
	w.logger.Info().Str(xglog.FieldEvent, "config.watcher_started").Str(xglog.FieldPath, w.path).
		Msg("watching config file for changes")

	fire := make(chan struct{}, 1)
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			w.logger.Debug().Str(xglog.FieldEvent, "config.file_changed").Str("op", ev.Op.String()).
				Msg("config file changed")
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.Debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case <-fire:
			_ = w.Reload()

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Str(xglog.FieldEvent, "config.watcher_error").Msg("config watcher error")
		}
	}
}
