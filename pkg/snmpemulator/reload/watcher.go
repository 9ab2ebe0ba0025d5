// Package reload watches the definition directories and calls back when
// YAML files change. Bursts of events are debounced into one callback.
package reload

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Config controls the Watcher.
type Config struct {
	// Dirs are watched recursively. Missing directories are skipped.
	Dirs []string

	// Delay is the quiet period after the last event before the callback
	// runs (default 500 ms).
	Delay time.Duration
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Delay <= 0 {
		out.Delay = 500 * time.Millisecond
	}
	return out
}

// Func is called with the changed files, sorted. A returned error is
// logged; the watcher keeps running.
type Func func(files []string) error

// Watcher turns file system events into debounced reload callbacks.
type Watcher struct {
	cfg      Config
	onChange Func
	logger   *slog.Logger

	watcher *fsnotify.Watcher
	trigger chan struct{}

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a Watcher.
func New(cfg Config, onChange Func, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return &Watcher{
		cfg:      cfg.withDefaults(),
		onChange: onChange,
		logger:   logger,
		trigger:  make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start registers the directories and begins watching. Call Stop (or cancel
// ctx) to terminate.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("reload: already running")
	}
	select {
	case <-w.stopCh:
		return fmt.Errorf("reload: stopped")
	default:
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("reload: create watcher: %w", err)
	}
	w.watcher = fw
	watched := 0
	for _, dir := range w.cfg.Dirs {
		n, err := w.addTree(dir)
		if err != nil {
			w.logger.Warn("reload: directory not watched", "dir", dir, "error", err.Error())
		}
		watched += n
	}
	w.running = true

	go w.loop(ctx)

	w.logger.Info("reload: watching",
		"dirs", len(w.cfg.Dirs),
		"watched", watched,
		"delay", w.cfg.Delay.String(),
	)
	return nil
}

// Stop ends watching and waits for a callback in progress. It is safe to
// call Stop multiple times.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	w.running = false
	close(w.stopCh)
	<-w.doneCh
	if err := w.watcher.Close(); err != nil {
		w.logger.Warn("reload: close watcher", "error", err.Error())
	}
	w.logger.Info("reload: stopped")
}

// Trigger requests a callback without a file change, e.g. on SIGHUP. It
// goes through the same debounce as file events.
func (w *Watcher) Trigger() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// addTree watches dir and every directory below it.
func (w *Watcher) addTree(dir string) (int, error) {
	n := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.watcher.Add(path); err != nil {
			return err
		}
		n++
		return nil
	})
	return n, err
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.doneCh)

	debounce := time.NewTimer(0)
	if !debounce.Stop() {
		<-debounce.C
	}
	pending := make(map[string]struct{})
	manual := false

	for {
		select {
		case <-ctx.Done():
			go w.Stop()
			return
		case <-w.stopCh:
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(ev) {
				continue
			}
			w.logger.Debug("reload: file event", "file", ev.Name, "op", ev.Op.String())
			pending[ev.Name] = struct{}{}
			debounce.Reset(w.cfg.Delay)

		case <-w.trigger:
			manual = true
			debounce.Reset(w.cfg.Delay)

		case <-debounce.C:
			if len(pending) == 0 && !manual {
				continue
			}
			files := make([]string, 0, len(pending))
			for f := range pending {
				files = append(files, f)
			}
			sort.Strings(files)
			pending = make(map[string]struct{})
			manual = false
			w.run(files)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("reload: watcher error", "error", err.Error())
		}
	}
}

// relevant filters YAML files and new directories, which are added to the
// watch list.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) {
		return false
	}
	if ev.Has(fsnotify.Create) {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			if _, err := w.addTree(ev.Name); err != nil {
				w.logger.Warn("reload: directory not watched", "dir", ev.Name, "error", err.Error())
			}
			return true
		}
	}
	ext := strings.ToLower(filepath.Ext(ev.Name))
	return ext == ".yml" || ext == ".yaml"
}

func (w *Watcher) run(files []string) {
	start := time.Now()
	if err := w.onChange(files); err != nil {
		w.logger.Error("reload: failed",
			"files", len(files),
			"error", err.Error(),
		)
		return
	}
	w.logger.Info("reload: completed",
		"files", len(files),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// ─────────────────────────────────────────────────────────────────────────────
// no-op logger writer
// ─────────────────────────────────────────────────────────────────────────────

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
