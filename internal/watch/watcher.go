// Package watch follows transcript files on disk. Watcher reports which
// sessions changed or disappeared; Tailer reads the lines appended since the
// last read.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/wethinkt/thinkt-live/internal/applog"
)

// TranscriptExt is the extension of watched transcript files.
const TranscriptExt = ".jsonl"

// DefaultDebounce coalesces bursts of writes to one file.
const DefaultDebounce = 250 * time.Millisecond

// EventKind says what happened to a transcript.
type EventKind int

const (
	Changed EventKind = iota
	Removed
)

func (k EventKind) String() string {
	if k == Removed {
		return "removed"
	}
	return "changed"
}

// Event is a change notification for one session's transcript.
type Event struct {
	Kind      EventKind
	SessionID string
	Path      string
}

// SessionID derives the session id from a transcript path: the file name
// without its extension.
func SessionID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Watcher monitors directory trees for transcript changes.
type Watcher struct {
	dirs     []string
	debounce time.Duration
	watcher  *fsnotify.Watcher

	mu     sync.Mutex
	timers map[string]*time.Timer

	// sendMu orders debounced sends against closing the event channel.
	sendMu sync.RWMutex
	closed bool

	stopOnce sync.Once
	done     chan struct{}
}

// NewWatcher creates a watcher for the given directories. A non-positive
// debounce selects DefaultDebounce.
func NewWatcher(dirs []string, debounce time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		dirs:     dirs,
		debounce: debounce,
		watcher:  fw,
		timers:   make(map[string]*time.Timer),
		done:     make(chan struct{}),
	}, nil
}

// Start watches the directories recursively and returns the event channel.
// The channel is closed when ctx is canceled or Stop is called.
func (w *Watcher) Start(ctx context.Context) (<-chan Event, error) {
	for _, dir := range w.dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			applog.Log.Warn("Cannot create watch directory", "dir", dir, "error", err)
			continue
		}
		w.addRecursive(dir)
	}
	watchedDirs.Set(float64(len(w.watcher.WatchList())))

	events := make(chan Event, 64)
	go w.loop(ctx, events)
	return events, nil
}

// Stop releases the underlying watcher. It is safe to call more than once.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		w.mu.Lock()
		for path, t := range w.timers {
			t.Stop()
			delete(w.timers, path)
		}
		w.mu.Unlock()
		err = w.watcher.Close()
	})
	return err
}

func (w *Watcher) addRecursive(root string) {
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			applog.Log.Warn("Failed to watch directory", "dir", path, "error", err)
		} else {
			applog.Log.Debug("Watching directory", "dir", path)
		}
		return nil
	})
}

func (w *Watcher) loop(ctx context.Context, events chan<- Event) {
	defer func() {
		w.sendMu.Lock()
		w.closed = true
		close(events)
		w.sendMu.Unlock()
	}()

	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(ctx, ev, events)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			applog.Log.Error("Watcher error", "error", err)

		case <-w.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event, events chan<- Event) {
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			w.addRecursive(ev.Name)
			watchedDirs.Set(float64(len(w.watcher.WatchList())))
			return
		}
	}
	if filepath.Ext(ev.Name) != TranscriptExt {
		return
	}

	path := ev.Name
	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		// A rename away from the path looks like removal; a later write
		// under the same name will be reported as a change again.
		w.mu.Lock()
		if t, ok := w.timers[path]; ok {
			t.Stop()
			delete(w.timers, path)
		}
		w.mu.Unlock()
		fileEventsTotal.WithLabelValues(Removed.String()).Inc()
		w.emit(ctx, events, Event{Kind: Removed, SessionID: SessionID(path), Path: path})

	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		w.mu.Lock()
		if t, ok := w.timers[path]; ok {
			t.Stop()
		}
		w.timers[path] = time.AfterFunc(w.debounce, func() {
			w.mu.Lock()
			delete(w.timers, path)
			w.mu.Unlock()
			fileEventsTotal.WithLabelValues(Changed.String()).Inc()
			w.emit(ctx, events, Event{Kind: Changed, SessionID: SessionID(path), Path: path})
		})
		w.mu.Unlock()
	}
}

func (w *Watcher) emit(ctx context.Context, events chan<- Event, ev Event) {
	w.sendMu.RLock()
	defer w.sendMu.RUnlock()
	if w.closed {
		return
	}
	select {
	case events <- ev:
		applog.Log.Debug("Transcript event", "kind", ev.Kind, "session_id", ev.SessionID, "path", ev.Path)
	case <-ctx.Done():
	case <-w.done:
	}
}
