package daemon

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/grovetools/cowork/logging"
)

// DefaultDebounce is how long the watcher waits for writes to settle.
const DefaultDebounce = 200 * time.Millisecond

// ConfigWatcher watches the loaded configuration files and calls onReload
// once a burst of changes has settled.
type ConfigWatcher struct {
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   *logrus.Entry
	onReload func(file string)

	// targets maps each watched path, symlink targets included, to the
	// configured file it stands for.
	targets map[string]string

	mu      sync.Mutex
	timer   *time.Timer
	pending string
	closed  bool
}

// NewConfigWatcher creates a ConfigWatcher for files. The parent directory
// of each file is watched so editors that save by renaming are noticed.
// fsnotify doesn't follow symlinks, so link targets are watched too.
func NewConfigWatcher(files []string, debounce time.Duration, onReload func(string)) (*ConfigWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	logger := logging.NewLogger("config-watcher")
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w := &ConfigWatcher{
		watcher:  watcher,
		debounce: debounce,
		logger:   logger,
		onReload: onReload,
		targets:  make(map[string]string),
	}

	watchedDirs := make(map[string]bool)
	watchDir := func(dir string) error {
		if watchedDirs[dir] {
			return nil
		}
		if err := watcher.Add(dir); err != nil {
			return err
		}
		watchedDirs[dir] = true
		return nil
	}

	for _, file := range files {
		abs, err := filepath.Abs(file)
		if err != nil {
			watcher.Close()
			return nil, err
		}
		if err := watchDir(filepath.Dir(abs)); err != nil {
			watcher.Close()
			return nil, err
		}
		w.targets[abs] = abs

		info, err := os.Lstat(abs)
		if err != nil || info.Mode()&os.ModeSymlink == 0 {
			continue
		}
		target, err := filepath.EvalSymlinks(abs)
		if err != nil {
			logger.WithError(err).Warnf("Failed to resolve symlink %s", abs)
			continue
		}
		if err := watchDir(filepath.Dir(target)); err != nil {
			logger.WithError(err).Warnf("Failed to watch symlink target dir %s", filepath.Dir(target))
			continue
		}
		w.targets[target] = abs
		logger.Debugf("Watching symlink target: %s", target)
	}

	return w, nil
}

// Files returns the configured files being watched.
func (w *ConfigWatcher) Files() []string {
	seen := make(map[string]bool)
	var files []string
	for _, file := range w.targets {
		if !seen[file] {
			seen[file] = true
			files = append(files, file)
		}
	}
	return files
}

// Start begins watching for config changes. It blocks until the context is cancelled.
func (w *ConfigWatcher) Start(ctx context.Context) {
	defer w.Close()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.logger.Debugf("fsnotify event: %s op=%v", event.Name, event.Op)

			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if file, ok := w.targets[filepath.Clean(event.Name)]; ok {
				w.handleChange(file)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Errorf("Watcher error: %v", err)
		case <-ctx.Done():
			return
		}
	}
}

// handleChange schedules onReload after the debounce period, restarting
// the period on every change.
func (w *ConfigWatcher) handleChange(file string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	w.pending = file
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.fire)
}

func (w *ConfigWatcher) fire() {
	w.mu.Lock()
	if w.closed || w.pending == "" {
		w.mu.Unlock()
		return
	}
	file := w.pending
	w.pending = ""
	w.mu.Unlock()

	w.logger.Infof("Config changed: %s", filepath.Base(file))
	if w.onReload != nil {
		w.onReload(file)
	}
}

// Close stops the watcher and releases resources. Pending reloads are dropped.
func (w *ConfigWatcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return w.watcher.Close()
}
