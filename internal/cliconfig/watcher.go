package cliconfig

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/mwdispatch/pkg/log"
)

// LevelSetter is implemented by loggers whose level can change at run time.
type LevelSetter interface {
	SetLevel(log.Level)
}

// Watcher reloads a config file when it changes and applies the settings
// that can change while a run is in progress. Today that is the log level.
type Watcher struct {
	mu sync.Mutex

	path     string
	delay    time.Duration
	target   LevelSetter
	logger   log.Logger
	onReload func(FileConfig)

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	debounce *time.Timer
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets the delay between the last file event and the reload.
// Default: 100 milliseconds
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.delay = d
		}
	}
}

// WithReloadHook is called with every successfully parsed file.
func WithReloadHook(fn func(FileConfig)) WatcherOption {
	return func(w *Watcher) { w.onReload = fn }
}

// NewWatcher creates a watcher for the config file at path.
func NewWatcher(path string, target LevelSetter, logger log.Logger, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		path:   path,
		delay:  100 * time.Millisecond,
		target: target,
		logger: log.OrNoop(logger),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching the file's directory. Editors often replace the
// file instead of writing it, so the directory is watched, not the file.
func (w *Watcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		fw.Close()
		return err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()

	w.wg.Add(1)
	go w.watchLoop(watchCtx, fw)
	w.logger.Info("watching config file", log.String("path", w.path))
	return nil
}

// Stop ends the watch and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.cancel != nil {
		w.cancel()
	}
	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *Watcher) watchLoop(ctx context.Context, fw *fsnotify.Watcher) {
	defer w.wg.Done()
	defer fw.Close()

	name := filepath.Base(w.path)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.debounceReload(ctx)

		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watcher error", log.Err(err))
		}
	}
}

func (w *Watcher) debounceReload(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(w.delay, func() {
		if ctx.Err() != nil {
			return
		}
		w.reload()
	})
}

func (w *Watcher) reload() {
	fc, err := LoadFileConfig(w.path)
	if err != nil {
		w.logger.Warn("config reload failed", log.String("path", w.path), log.Err(err))
		return
	}
	if fc.LogLevel != "" && w.target != nil {
		lvl, err := log.ParseLevel(fc.LogLevel)
		if err != nil {
			w.logger.Warn("config reload: bad log level", log.String("log_level", fc.LogLevel))
		} else {
			w.target.SetLevel(lvl)
			w.logger.Info("log level changed", log.String("level", string(lvl)))
		}
	}
	if w.onReload != nil {
		w.onReload(fc)
	}
}
