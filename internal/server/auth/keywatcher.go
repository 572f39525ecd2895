package auth

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/gophgate/internal/logging"
	"github.com/fsnotify/fsnotify"
)

// LoadKeyFile reads a signing key, trimming surrounding whitespace.
func LoadKeyFile(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading key file: %w", err)
	}
	return bytes.TrimSpace(b), nil
}

// KeyFileWatcher rotates a KeyRing whenever its key file changes.
type KeyFileWatcher struct {
	path   string
	ring   *KeyRing
	logger logging.Logger
	ready  chan struct{}
}

func NewKeyFileWatcher(path string, ring *KeyRing, logger logging.Logger) *KeyFileWatcher {
	return &KeyFileWatcher{
		path:   filepath.Clean(path),
		ring:   ring,
		logger: logger.With("module", "keywatcher"),
		ready:  make(chan struct{}),
	}
}

// Ready is closed once the watch is registered.
func (w *KeyFileWatcher) Ready() <-chan struct{} {
	return w.ready
}

// Run blocks until ctx is done. The parent directory is watched so that
// editors and secret managers replacing the file by rename are noticed.
func (w *KeyFileWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watching %s: %w", w.path, err)
	}
	close(w.ready)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.reload(ctx)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn(ctx, "key watcher error", "error", err)
		}
	}
}

func (w *KeyFileWatcher) reload(ctx context.Context) {
	key, err := LoadKeyFile(w.path)
	if err != nil {
		w.logger.Warn(ctx, "key reload failed", "error", err)
		return
	}
	if err := w.ring.Rotate(key); err != nil {
		w.logger.Warn(ctx, "rejected new signing key", "error", err)
		return
	}
	w.logger.Info(ctx, "signing key rotated", "version", w.ring.Version())
}
