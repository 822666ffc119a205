package config

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watch watches the config file for changes and calls onChange with the
// freshly loaded configuration on every write. It blocks until ctx is
// cancelled. A reload failure is logged and skipped; the previous
// configuration stays in effect.
func Watch(ctx context.Context, path string, logger *slog.Logger, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	logger.Info("watching config file for changes", slog.String("path", path))

	for {
		select {
		case <-ctx.Done():
			logger.Debug("config watch stopped")
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			// Only reload on write events
			if event.Op&fsnotify.Write == fsnotify.Write {
				logger.Info("config file changed, reloading", slog.String("path", event.Name))

				cfg, err := LoadFile(path)
				if err != nil {
					logger.Error("failed to reload config",
						slog.String("error", err.Error()),
						slog.String("path", path))
					continue
				}

				onChange(cfg)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("config watch error", slog.String("error", err.Error()))
		}
	}
}
