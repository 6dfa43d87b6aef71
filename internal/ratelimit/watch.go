package ratelimit

import (
	"context"
	"os"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// WatchOverrides reloads the backend rate-limit overrides whenever the
// backends.yaml they came from changes on disk, then invokes onChange so the
// caller can push the new budget into its live limiter. Returns a stop
// function; a missing file or watch failure is not fatal, the current limits
// just stay in effect.
func WatchOverrides(ctx context.Context, onChange func(), logger *zap.Logger) (func(), error) {
	path := ""
	for _, p := range defaultPaths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			path = p
			break
		}
	}
	if path == "" {
		if found, ok := findUpConfig(); ok {
			path = found
		}
	}
	if path == "" {
		return func() {}, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					logger.Info("Backend rate limits changed, reloading",
						zap.String("path", event.Name))
					Reload()
					if onChange != nil {
						onChange()
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("Rate limit watcher error", zap.Error(err))
			case <-ctx.Done():
				return
			}
		}
	}()

	return func() { watcher.Close() }, nil
}
