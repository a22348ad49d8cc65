package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads cfg in place whenever the file at path changes.
// Secrets still come from env (Load re-applies overrides), so a reload
// can never drop a runtime credential. onReload, if non-nil, runs after
// each successful swap. Blocks until ctx is done.
func Watch(ctx context.Context, path string, cfg *Config, onReload func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory: editors replace the file via rename, which
	// drops a watch set on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	lastHash := cfg.Hash()
	var debounce <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			debounce = time.After(250 * time.Millisecond)

		case <-debounce:
			debounce = nil
			next, err := Load(path)
			if err != nil {
				slog.Warn("config.reload_failed", "path", path, "error", err)
				continue
			}
			h := next.Hash()
			if h == lastHash {
				continue
			}
			lastHash = h
			cfg.ReplaceFrom(next)
			slog.Info("config.reloaded", "path", path, "hash", h)
			if onReload != nil {
				onReload()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("config.watch_error", "error", err)
		}
	}
}
