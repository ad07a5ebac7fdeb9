package debuggee

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-logr/logr"
)

// WatchDebounce is how long the watcher waits for changes to settle before
// reporting them.
const WatchDebounce = 300 * time.Millisecond

// WatchOptions configures a Watcher.
type WatchOptions struct {
	Paths    []string // Files or directories; directories are watched recursively
	Ignore   []string // Glob patterns matched against the base name and the full path
	Debounce time.Duration
	OnChange func(path string)
}

// Watcher reports source changes so a launched debuggee can be restarted.
type Watcher struct {
	opts      WatchOptions
	fs        *fsnotify.Watcher
	log       logr.Logger
	debouncer *debouncer

	mu      sync.Mutex
	running bool
	done    chan struct{}
}

// NewWatcher creates a watcher. Call Start to begin watching.
func NewWatcher(opts WatchOptions, log logr.Logger) (*Watcher, error) {
	if len(opts.Paths) == 0 {
		return nil, errors.New("at least one watch path is required")
	}
	if opts.Debounce <= 0 {
		opts.Debounce = WatchDebounce
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	w := &Watcher{
		opts: opts,
		fs:   fs,
		log:  log.WithName("watch"),
		done: make(chan struct{}),
	}
	w.debouncer = newDebouncer(opts.Debounce, func(path string) {
		if opts.OnChange != nil {
			opts.OnChange(path)
		}
	})
	return w, nil
}

// Start adds the watch paths and starts the event loop.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return errors.New("watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	for _, path := range w.opts.Paths {
		if err := w.addPath(path); err != nil {
			_ = w.fs.Close()
			close(w.done)
			return fmt.Errorf("watch %s: %w", path, err)
		}
	}

	go w.eventLoop()
	return nil
}

// Stop stops watching and waits for the event loop to exit. A pending
// debounced change is dropped.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	w.debouncer.stop()
	err := w.fs.Close()
	<-w.done
	return err
}

func (w *Watcher) addPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		// fsnotify loses single-file watches on editors that write by rename.
		dir := filepath.Dir(absPath)
		w.log.V(1).Info("Watching file", "path", absPath, "dir", dir)
		return w.fs.Add(dir)
	}

	return filepath.WalkDir(absPath, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != absPath && w.shouldIgnore(p) {
			return filepath.SkipDir
		}
		w.log.V(1).Info("Watching directory", "path", p)
		return w.fs.Add(p)
	})
}

// shouldIgnore reports whether path is hidden, inside a dependency
// directory or matches an ignore pattern.
func (w *Watcher) shouldIgnore(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return true
	}

	for _, part := range strings.Split(filepath.Clean(path), string(filepath.Separator)) {
		if part == "node_modules" {
			return true
		}
	}

	for _, pattern := range w.opts.Ignore {
		if matched, err := filepath.Match(pattern, base); err == nil && matched {
			return true
		}
		if matched, err := filepath.Match(pattern, path); err == nil && matched {
			return true
		}
	}
	return false
}

func (w *Watcher) eventLoop() {
	defer close(w.done)

	for {
		select {
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Chmod) || w.shouldIgnore(event.Name) {
				continue
			}
			w.log.V(1).Info("File event", "op", event.Op.String(), "path", event.Name)

			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addPath(event.Name); err != nil {
						w.log.V(1).Info("Failed to watch new directory", "path", event.Name, "error", err.Error())
					}
				}
			}
			w.debouncer.trigger(event.Name)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.log.Error(err, "Watcher error")
		}
	}
}

// debouncer reports the last triggered path once triggers stop for delay.
type debouncer struct {
	delay    time.Duration
	callback func(path string)

	mu    sync.Mutex
	timer *time.Timer
}

func newDebouncer(delay time.Duration, callback func(path string)) *debouncer {
	return &debouncer{delay: delay, callback: callback}
}

func (d *debouncer) trigger(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() {
		d.callback(path)
	})
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
