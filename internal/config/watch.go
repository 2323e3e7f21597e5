package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/HMasataka/huddle/internal/metrics"
	"github.com/fsnotify/fsnotify"
)

// Watch reloads the file at path whenever it is written and passes the new config to onUpdate.
// Only settings that are safe to change at runtime should be applied by onUpdate.
// It returns when ctx is done.
func Watch(ctx context.Context, path string, onUpdate func(Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}

	// editors replace the file on save, so watch the directory instead
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch config dir: %w", err)
	}

	go func() {
		defer watcher.Close()

		target := filepath.Clean(path)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}

				cfg, err := Load(path)
				if err != nil {
					slog.Error("error reloading config", slog.String("file", path), slog.String("error", err.Error()))
					continue
				}
				metrics.ConfigReloads.Inc()
				slog.Info("configuration reloaded", slog.String("file", path))
				onUpdate(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("config watcher error", slog.String("error", err.Error()))
			}
		}
	}()

	return nil
}
