package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"Tunehub/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
)

// ReloadOrigins re-reads envFile and rebuilds the origin allow-list from it.
// Values set in the process environment still win over the file.
func ReloadOrigins(envFile string) ([]string, error) {
	values, err := godotenv.Read(envFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", envFile, err)
	}

	lookup := func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		return values[key]
	}
	return Origins(lookup("FRONTEND_URL"), lookup("ALLOWED_ORIGINS")), nil
}

// WatchEnvFile swaps the policy's allow-list whenever envFile is written.
// The parent directory is watched so that editors that replace the file are
// picked up too. It blocks until ctx is cancelled.
func WatchEnvFile(ctx context.Context, envFile string, policy *OriginPolicy) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(envFile)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", envFile, err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			origins, err := ReloadOrigins(abs)
			if err != nil {
				logger.Warn("origin reload failed", logger.ErrorField(err))
				continue
			}
			policy.Set(origins)
			logger.Info("origin allow-list reloaded", logger.Int("count", len(origins)))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("env watcher error", logger.ErrorField(err))
		}
	}
}
