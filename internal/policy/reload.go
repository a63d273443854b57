package policy

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const reloadDebounce = 500 * time.Millisecond

// Reloader watches the engine's rule file and reloads it on change.
type Reloader struct {
	watcher *fsnotify.Watcher
	engine  *Engine
	logger  *zap.Logger
}

// NewReloader starts watching the engine's rule file.
func NewReloader(engine *Engine) (*Reloader, error) {
	if engine.Path() == "" {
		return nil, fmt.Errorf("no policy rule file to watch")
	}
	if _, err := os.Stat(engine.Path()); err != nil {
		return nil, fmt.Errorf("cannot watch %q: %w", engine.Path(), err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(engine.Path()); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", engine.Path(), err)
	}
	return &Reloader{watcher: watcher, engine: engine, logger: engine.logger}, nil
}

// Run reloads on write or create, debounced. Blocks until ctx is cancelled.
func (r *Reloader) Run(ctx context.Context) error {
	defer r.watcher.Close()

	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case ev, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(reloadDebounce, func() {
					if err := r.engine.Reload(); err != nil {
						r.logger.Warn("policy hot-reload failed", zap.Error(err))
					}
				})
			}

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("policy file watcher error", zap.Error(err))
		}
	}
}
