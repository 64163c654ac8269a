package dataset

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

const (
	// eventChannelBuffer is the size of the watch event channel.
	eventChannelBuffer = 100

	// DefaultDebounce is used when WatchConfig.Debounce is zero.
	DefaultDebounce = 500 * time.Millisecond
)

// WatchConfig configures dataset watching.
type WatchConfig struct {
	// Patterns are the same paths and globs accepted by Resolve.
	Patterns []string

	// Debounce is how long to wait for more changes before emitting events.
	Debounce time.Duration
}

// Operation indicates the type of change.
type Operation string

// OpCreate, OpModify and OpDelete enumerate the watch operation types.
const (
	OpCreate Operation = "create"
	OpModify Operation = "modify"
	OpDelete Operation = "delete"
)

// Event reports a dataset whose content changed.
type Event struct {
	// Path is the absolute file path.
	Path string
	// Op is the type of change.
	Op Operation
	// CID is the new content fingerprint; empty for deletions.
	CID string
}

// matcher decides whether a path belongs to one watched pattern.
type matcher struct {
	root    string // directory watched for this pattern
	pattern string // absolute glob, empty for plain paths
	file    string // exact file, for plain file paths
}

func (m matcher) match(path string) bool {
	switch {
	case m.file != "":
		return path == m.file
	case m.pattern != "":
		ok, err := doublestar.PathMatch(m.pattern, path)
		return err == nil && ok
	default:
		return strings.HasPrefix(path, m.root+string(filepath.Separator)) && IsDataFile(path)
	}
}

// Watcher watches tableau files and emits an Event each time one changes
// content. Writes that leave the content unchanged are ignored.
type Watcher struct {
	config   WatchConfig
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
	matchers []matcher

	// Debouncing: collect changes before processing
	pendingMu  sync.Mutex
	pending    map[string]fsnotify.Op
	lastChange time.Time

	// Content fingerprints by absolute path
	cidMu sync.RWMutex
	cids  map[string]string

	events chan Event

	droppedEvents atomic.Int64
}

// NewWatcher creates a watcher for the given patterns.
func NewWatcher(config WatchConfig, logger *slog.Logger) (*Watcher, error) {
	if len(config.Patterns) == 0 {
		return nil, fmt.Errorf("no patterns to watch")
	}
	if config.Debounce <= 0 {
		config.Debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}

	matchers := make([]matcher, 0, len(config.Patterns))
	for _, p := range config.Patterns {
		m, err := newMatcher(p)
		if err != nil {
			return nil, fmt.Errorf("watch pattern %q: %w", p, err)
		}
		matchers = append(matchers, m)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	return &Watcher{
		config:   config,
		watcher:  fsw,
		logger:   logger,
		matchers: matchers,
		pending:  make(map[string]fsnotify.Op),
		cids:     make(map[string]string),
		events:   make(chan Event, eventChannelBuffer),
	}, nil
}

func newMatcher(pattern string) (matcher, error) {
	if containsGlob(pattern) {
		abs, err := makeAbsolutePattern(pattern)
		if err != nil {
			return matcher{}, err
		}
		base, _ := doublestar.SplitPattern(filepath.ToSlash(abs))
		return matcher{root: filepath.FromSlash(base), pattern: abs}, nil
	}

	abs, err := filepath.Abs(pattern)
	if err != nil {
		return matcher{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return matcher{}, err
	}
	if info.IsDir() {
		return matcher{root: abs}, nil
	}
	return matcher{root: filepath.Dir(abs), file: abs}, nil
}

// Events returns the channel of change events. It is closed when the
// watcher stops.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Start fingerprints the files that match now and begins watching.
func (w *Watcher) Start(ctx context.Context) error {
	roots := make(map[string]bool)
	for _, m := range w.matchers {
		if roots[m.root] {
			continue
		}
		roots[m.root] = true
		if err := w.addWatchesRecursive(m.root); err != nil {
			return fmt.Errorf("watch %s: %w", m.root, err)
		}
	}

	go w.processEvents(ctx)

	w.logger.Info("Dataset watcher started",
		"patterns", w.config.Patterns,
		"debounce", w.config.Debounce,
		"files", w.Len())

	return nil
}

// Stop stops the watcher.
// The events channel is closed by processEvents when it exits.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

// SetCID records the fingerprint for a file.
func (w *Watcher) SetCID(path, cid string) {
	w.cidMu.Lock()
	defer w.cidMu.Unlock()
	w.cids[path] = cid
}

// CID returns the recorded fingerprint for a file.
func (w *Watcher) CID(path string) (string, bool) {
	w.cidMu.RLock()
	defer w.cidMu.RUnlock()
	cid, ok := w.cids[path]
	return cid, ok
}

// Len returns the number of files with a recorded fingerprint.
func (w *Watcher) Len() int {
	w.cidMu.RLock()
	defer w.cidMu.RUnlock()
	return len(w.cids)
}

// Matches reports whether path is covered by one of the watched patterns.
func (w *Watcher) Matches(path string) bool {
	for _, m := range w.matchers {
		if m.match(path) {
			return true
		}
	}
	return false
}

// addWatchesRecursive adds watches to root and every directory below it,
// recording fingerprints of matching files on the way.
func (w *Watcher) addWatchesRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() {
			if w.Matches(path) {
				if cid, err := FingerprintFile(path); err == nil {
					w.SetCID(path, cid)
				}
			}
			return nil
		}

		base := d.Name()
		if path != root && strings.HasPrefix(base, ".") {
			return filepath.SkipDir
		}

		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn("Failed to watch directory",
				"path", path,
				"error", err)
		} else {
			w.logger.Debug("Watching directory", "path", path)
		}

		return nil
	})
}

// processEvents handles fsnotify events with debouncing.
func (w *Watcher) processEvents(ctx context.Context) {
	defer close(w.events)
	ticker := time.NewTicker(max(w.config.Debounce/2, time.Millisecond))
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
			w.flushPending(ctx)
		}
	}
}

// handleFSEvent processes a single fsnotify event.
func (w *Watcher) handleFSEvent(event fsnotify.Event) {
	path := event.Name

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			w.handleNewDirectory(path)
			return
		}
	}

	if !w.Matches(path) {
		return
	}

	w.pendingMu.Lock()
	w.pending[path] |= event.Op
	w.lastChange = time.Now()
	w.pendingMu.Unlock()

	w.logger.Debug("Dataset change detected",
		"path", path,
		"op", event.Op.String())
}

// handleNewDirectory adds watches for a newly created directory tree.
func (w *Watcher) handleNewDirectory(path string) {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return
	}
	if err := w.addWatchesRecursive(path); err != nil {
		w.logger.Warn("Failed to watch new directory",
			"path", path,
			"error", err)
	}
}

// flushPending processes accumulated changes once none arrived for a full
// debounce period.
func (w *Watcher) flushPending(ctx context.Context) {
	w.pendingMu.Lock()
	if len(w.pending) == 0 || time.Since(w.lastChange) < w.config.Debounce {
		w.pendingMu.Unlock()
		return
	}
	toProcess := w.pending
	w.pending = make(map[string]fsnotify.Op)
	w.pendingMu.Unlock()

	for path := range toProcess {
		select {
		case <-ctx.Done():
			return
		default:
		}

		content, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				w.logger.Warn("Failed to read dataset", "path", path, "error", err)
				continue
			}
			if _, had := w.CID(path); had {
				w.cidMu.Lock()
				delete(w.cids, path)
				w.cidMu.Unlock()
				w.sendEvent(Event{Path: path, Op: OpDelete})
			}
			continue
		}

		cid, err := Fingerprint(content)
		if err != nil {
			w.logger.Warn("Failed to fingerprint dataset", "path", path, "error", err)
			continue
		}

		old, had := w.CID(path)
		if had && old == cid {
			continue
		}
		w.SetCID(path, cid)

		op := OpModify
		if !had {
			op = OpCreate
		}
		w.sendEvent(Event{Path: path, Op: op, CID: cid})
	}
}

// sendEvent sends an event to the output channel.
func (w *Watcher) sendEvent(event Event) {
	select {
	case w.events <- event:
		w.logger.Debug("Sent watch event",
			"path", event.Path,
			"op", event.Op)
	default:
		dropped := w.droppedEvents.Add(1)
		w.logger.Warn("Event channel full, dropping event",
			"path", event.Path,
			"total_dropped", dropped)
	}
}

// DroppedEvents returns the number of events dropped due to channel overflow.
func (w *Watcher) DroppedEvents() int64 {
	return w.droppedEvents.Load()
}
