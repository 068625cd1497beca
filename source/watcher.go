package source

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

const eventChannelBuffer = 64

// WatchConfig configures definition file watching.
type WatchConfig struct {
	// Enabled controls whether file watching is active.
	Enabled bool `yaml:"enabled"`

	// DebounceDelay is how long to wait for more changes before emitting.
	DebounceDelay string `yaml:"debounce_delay"`

	// Include lists doublestar patterns, relative to the watched root, that
	// select the files to report.
	Include []string `yaml:"include"`

	// Exclude lists doublestar patterns that suppress matches.
	Exclude []string `yaml:"exclude"`
}

// DefaultWatchConfig returns the default watch configuration.
func DefaultWatchConfig() WatchConfig {
	return WatchConfig{
		Enabled:       false,
		DebounceDelay: "500ms",
		Include:       []string{"**/*.yaml", "**/*.yml"},
		Exclude:       []string{"**/.git/**"},
	}
}

// GetDebounceDelay returns the debounce delay as a duration.
func (c *WatchConfig) GetDebounceDelay() time.Duration {
	if c.DebounceDelay == "" {
		return 500 * time.Millisecond
	}
	d, err := time.ParseDuration(c.DebounceDelay)
	if err != nil {
		return 500 * time.Millisecond
	}
	return d
}

// WatchEvent reports a changed definition file.
type WatchEvent struct {
	// Path is the file path relative to the watched root.
	Path string

	// AbsPath is the absolute file path.
	AbsPath string
}

// Watcher watches a directory for proposal definition changes. A running
// workflow is not restarted automatically; the CLI surfaces the event and
// the human decides.
type Watcher struct {
	config  WatchConfig
	root    string
	watcher *fsnotify.Watcher
	logger  *slog.Logger

	pendingMu sync.Mutex
	pending   map[string]struct{}

	events chan WatchEvent
}

// NewWatcher creates a definition watcher over the given root directory.
func NewWatcher(config WatchConfig, root string, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		config:  config,
		root:    root,
		watcher: fsw,
		logger:  logger,
		pending: make(map[string]struct{}),
		events:  make(chan WatchEvent, eventChannelBuffer),
	}, nil
}

// Events returns the channel of debounced watch events.
func (w *Watcher) Events() <-chan WatchEvent {
	return w.events
}

// Start begins watching. The events channel is closed when the context is
// cancelled or the watcher is stopped.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addWatchesRecursive(w.root); err != nil {
		return err
	}
	go w.processEvents(ctx)

	w.logger.Info("Definition watcher started",
		"root", w.root,
		"debounce", w.config.GetDebounceDelay(),
		"include", w.config.Include)
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

func (w *Watcher) addWatchesRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		base := filepath.Base(path)
		if strings.HasPrefix(base, ".") && path != root {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn("Failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

// processEvents collects fsnotify events and flushes them on the debounce
// ticker so an editor write burst becomes one event per file.
func (w *Watcher) processEvents(ctx context.Context) {
	defer close(w.events)
	ticker := time.NewTicker(w.config.GetDebounceDelay())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFSEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Watcher error", "error", err)

		case <-ticker.C:
			w.flushPending()
		}
	}
}

func (w *Watcher) handleFSEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return
	}

	// New directories need their own watch.
	if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
		if event.Op&fsnotify.Create != 0 {
			_ = w.addWatchesRecursive(event.Name)
		}
		return
	}

	if !w.Matches(event.Name) {
		return
	}

	w.pendingMu.Lock()
	w.pending[event.Name] = struct{}{}
	w.pendingMu.Unlock()
}

// Matches reports whether the path passes the include and exclude patterns.
func (w *Watcher) Matches(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)

	for _, pattern := range w.config.Exclude {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return false
		}
	}
	for _, pattern := range w.config.Include {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

func (w *Watcher) flushPending() {
	w.pendingMu.Lock()
	if len(w.pending) == 0 {
		w.pendingMu.Unlock()
		return
	}
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]struct{})
	w.pendingMu.Unlock()

	for _, abs := range paths {
		rel, err := filepath.Rel(w.root, abs)
		if err != nil {
			rel = abs
		}
		select {
		case w.events <- WatchEvent{Path: filepath.ToSlash(rel), AbsPath: abs}:
		default:
			w.logger.Warn("Dropping watch event, channel full", "path", abs)
		}
	}
}
