package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/zhuyongyong/crosswalk/internal/logging"
)

// Watcher reports changes to the runtime directory. It watches the parent so
// the directory may not exist yet, which is the case before a store install.
type Watcher struct {
	dir      string
	debounce time.Duration
	log      *zap.Logger

	mu      sync.Mutex
	fs      *fsnotify.Watcher
	timer   *time.Timer
	stopped bool
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets how long the watcher waits for changes to settle.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) {
		w.log = l
	}
}

// NewWatcher creates a watcher for dir.
func NewWatcher(dir string, opts ...WatcherOption) (*Watcher, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving runtime directory: %w", err)
	}
	w := &Watcher{dir: abs, debounce: time.Second}
	for _, opt := range opts {
		opt(w)
	}
	w.log = logging.OrNop(w.log)
	return w, nil
}

// Start begins watching. onChange runs on a timer goroutine once changes
// under the directory settle; it may run several times.
func (w *Watcher) Start(ctx context.Context, onChange func()) error {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}

	parent := filepath.Dir(w.dir)
	if err := os.MkdirAll(parent, 0755); err != nil {
		fs.Close()
		return fmt.Errorf("creating %s: %w", parent, err)
	}
	if err := fs.Add(parent); err != nil {
		fs.Close()
		return fmt.Errorf("watching %s: %w", parent, err)
	}
	// Best effort: the directory itself exists only after an install.
	_ = fs.Add(w.dir)

	w.mu.Lock()
	w.fs = fs
	w.mu.Unlock()

	w.log.Info("Watching runtime directory", zap.String("dir", w.dir))
	go w.loop(ctx, fs, onChange)
	return nil
}

// Stop ends watching and cancels a pending notification.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return nil
	}
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
	}
	if w.fs == nil {
		return nil
	}
	return w.fs.Close()
}

func (w *Watcher) loop(ctx context.Context, fs *fsnotify.Watcher, onChange func()) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case event, ok := <-fs.Events:
			if !ok {
				return
			}
			if !w.relevant(event.Name) {
				continue
			}
			if event.Name == w.dir && event.Op&fsnotify.Create != 0 {
				_ = fs.Add(w.dir)
			}
			w.log.Debug("Runtime directory changed", zap.String("path", event.Name), zap.Stringer("op", event.Op))
			w.schedule(onChange)
		case err, ok := <-fs.Errors:
			if !ok {
				return
			}
			w.log.Warn("Runtime watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) relevant(name string) bool {
	return name == w.dir || strings.HasPrefix(name, w.dir+string(filepath.Separator))
}

func (w *Watcher) schedule(onChange func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, onChange)
}
