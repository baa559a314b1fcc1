// Package reload re-imports the engine config whenever its file changes on
// disk.
package reload

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kazz187/permguard/internal/engine"
	"github.com/kazz187/permguard/internal/engine/repositoryimpl"
)

// DebounceInterval lets bursts of events from one save settle before the
// file is read.
const DebounceInterval = 100 * time.Millisecond

type Watcher struct {
	path     string
	engine   *engine.Engine
	debounce time.Duration
	onReload func(changed bool, err error)

	mu       sync.Mutex
	lastHash [sha256.Size]byte
}

type Option func(*Watcher)

func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithReloadHook is called after every reload attempt triggered by the
// watcher.
func WithReloadHook(fn func(changed bool, err error)) Option {
	return func(w *Watcher) { w.onReload = fn }
}

func NewWatcher(path string, e *engine.Engine, opts ...Option) *Watcher {
	w := &Watcher{path: path, engine: e, debounce: DebounceInterval}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Reload imports the file if its content changed since the last successful
// reload. A missing file is not an error and leaves the engine untouched, as
// does a file that fails to parse.
func (w *Watcher) Reload(ctx context.Context) (bool, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read %s: %w", w.path, err)
	}
	sum := sha256.Sum256(data)

	w.mu.Lock()
	defer w.mu.Unlock()
	if sum == w.lastHash {
		return false, nil
	}
	cfg, err := repositoryimpl.Decode(data)
	if err != nil {
		return false, err
	}
	w.engine.ImportConfig(*cfg)
	w.lastHash = sum
	slog.InfoContext(ctx, "config reloaded", "path", w.path, "permissions", len(cfg.Permissions), "policy", cfg.Policy != nil)
	return true, nil
}

// Start watches the parent directory of the config file so that atomic
// replace-by-rename is observed. It returns once the watch is established;
// watching stops when ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	if data, err := os.ReadFile(w.path); err == nil {
		w.mu.Lock()
		w.lastHash = sha256.Sum256(data)
		w.mu.Unlock()
	}

	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", dir, err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}
	slog.InfoContext(ctx, "watching config", "path", w.path)

	go w.loop(ctx, watcher)
	return nil
}

func (w *Watcher) loop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()

	name := filepath.Base(w.path)
	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, func() {
				changed, err := w.Reload(ctx)
				if err != nil {
					slog.ErrorContext(ctx, "config reload failed, keeping previous config", "path", w.path, "error", err)
				}
				if w.onReload != nil {
					w.onReload(changed, err)
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.WarnContext(ctx, "fsnotify error", "error", err)

		case <-ctx.Done():
			return
		}
	}
}
