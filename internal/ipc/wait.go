package ipc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WaitForEndpoint blocks until path exists or ctx is done. The simulator
// creates its socket lazily, so callers use this before the first Connect.
func WaitForEndpoint(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("ipc: watch %s: %w", path, err)
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("ipc: watch %s: %w", dir, err)
	}

	// The socket may have appeared between the first Stat and Add.
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return errors.New("ipc: watcher closed")
			}
			if filepath.Clean(event.Name) == target && event.Has(fsnotify.Create) {
				return nil
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("ipc: watcher closed")
			}
			return fmt.Errorf("ipc: watch %s: %w", dir, err)
		}
	}
}
