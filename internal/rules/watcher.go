package rules

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize seed file watcher")

const defaultWatchDebounce = 250 * time.Millisecond

// Watcher re-imports a seed file whenever it changes on disk.
//
// The parent directory is watched rather than the file itself, since editors
// and config-management tools usually replace files by rename.
type Watcher struct {
	path     string
	upserter Upserter
	logger   *zap.Logger
	debounce time.Duration
	now      func() time.Time

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}

	mu      sync.Mutex
	running bool
	reloads int
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets how long the watcher waits for writes to settle.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher creates a watcher for the seed file at path.
func NewWatcher(path string, upserter Upserter, logger *zap.Logger, opts ...WatcherOption) (*Watcher, error) {
	if upserter == nil {
		return nil, fmt.Errorf("upserter cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving seed path: %w", err)
	}
	w := &Watcher{
		path:     abs,
		upserter: upserter,
		logger:   logger,
		debounce: defaultWatchDebounce,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Reload imports the seed file once.
func (w *Watcher) Reload(ctx context.Context) (ImportSummary, error) {
	defs, err := LoadSeedFile(w.path, w.now())
	if err != nil {
		return ImportSummary{}, err
	}
	return Import(ctx, w.upserter, defs, "seed:"+filepath.Base(w.path))
}

// Reloads returns the number of change-triggered reload attempts.
func (w *Watcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

// Start begins watching. Changes are imported in a background goroutine
// until Stop is called or ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		_ = fw.Close()
		return fmt.Errorf("watching %s: %w", filepath.Dir(w.path), err)
	}

	w.watcher = fw
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.running = true

	go w.run(ctx)

	w.logger.Info("watching rule seed file", zap.String("path", w.path))
	return nil
}

// Stop halts the watcher and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	doneCh := w.doneCh
	w.mu.Unlock()

	<-doneCh
	_ = w.watcher.Close()
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			w.safeReload(ctx)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("seed watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) safeReload(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("panic during seed reload", zap.Any("panic", r))
		}
		w.mu.Lock()
		w.reloads++
		w.mu.Unlock()
	}()

	sum, err := w.Reload(ctx)
	if err != nil {
		w.logger.Error("seed reload failed, keeping current rules",
			zap.String("path", w.path), zap.Error(err))
		return
	}
	w.logger.Info("rule seed file reloaded",
		zap.String("path", w.path),
		zap.Int("created", sum.Created),
		zap.Int("updated", sum.Updated),
		zap.Int("unchanged", sum.Unchanged))
}
