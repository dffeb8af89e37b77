// Package pipeline connects transcript watching to the event stream. Each
// active session gets one worker goroutine that reads new lines, transforms
// them, saves the session state, buffers the events and publishes them.
package pipeline

import (
	"context"
	"errors"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/wethinkt/thinkt-live/internal/applog"
	"github.com/wethinkt/thinkt-live/internal/blocks"
	"github.com/wethinkt/thinkt-live/internal/broadcast"
	"github.com/wethinkt/thinkt-live/internal/eventbuf"
	"github.com/wethinkt/thinkt-live/internal/processor"
	"github.com/wethinkt/thinkt-live/internal/state"
	"github.com/wethinkt/thinkt-live/internal/watch"
)

// DefaultIdleTimeout is how long a worker waits for changes before exiting.
const DefaultIdleTimeout = 5 * time.Minute

// EndReasonDeleted is sent to subscribers when a transcript disappears.
const EndReasonDeleted = "deleted"

// Config wires a Pipeline to its collaborators.
type Config struct {
	Store       *state.Store
	Buffers     *eventbuf.Manager
	Broadcaster *broadcast.Broadcaster
	IDs         processor.IDGenerator // defaults to random ids
	Labeler     *processor.Labeler    // defaults to processor.NewLabeler()
	IdleTimeout time.Duration
	MaxLines    int // lines per batch, see watch.Tailer
}

// SessionInfo describes a session known to the pipeline.
type SessionInfo struct {
	ID          string `json:"id"`
	Path        string `json:"path,omitempty"`
	Active      bool   `json:"active"`
	Buffered    int    `json:"buffered_events"`
	LastEventID string `json:"last_event_id,omitempty"`
	Subscribers int    `json:"subscribers"`
}

// Pipeline dispatches watcher events to per-session workers.
type Pipeline struct {
	cfg    Config
	tailer watch.Tailer
	now    func() time.Time

	mu      sync.Mutex
	workers map[string]*worker
	paths   map[string]string
	wg      sync.WaitGroup
}

type worker struct {
	sessionID string
	proc      *processor.Processor

	path   string // guarded by Pipeline.mu
	notify chan struct{}
	remove chan struct{}

	ctx    *processor.Context
	offset int64
	line   int
}

// New creates a pipeline. Store, Buffers and Broadcaster are required.
func New(cfg Config) *Pipeline {
	if cfg.IDs == nil {
		cfg.IDs = processor.RandomIDs{}
	}
	if cfg.Labeler == nil {
		cfg.Labeler = processor.NewLabeler()
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	return &Pipeline{
		cfg:     cfg,
		tailer:  watch.Tailer{MaxLines: cfg.MaxLines},
		now:     time.Now,
		workers: make(map[string]*worker),
		paths:   make(map[string]string),
	}
}

// Run consumes watcher events until the channel closes or ctx is canceled,
// then stops the workers and waits for them to finish.
func (p *Pipeline) Run(ctx context.Context, events <-chan watch.Event) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		p.wg.Wait()
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			p.Handle(ctx, ev)
		}
	}
}

// Handle dispatches one watcher event.
func (p *Pipeline) Handle(ctx context.Context, ev watch.Event) {
	switch ev.Kind {
	case watch.Changed:
		p.changed(ctx, ev.SessionID, ev.Path)
	case watch.Removed:
		p.removed(ev.SessionID)
	}
}

func (p *Pipeline) changed(ctx context.Context, sessionID, path string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.paths[sessionID] = path
	w, ok := p.workers[sessionID]
	if !ok {
		w = p.startLocked(ctx, sessionID, path)
	}
	w.path = path
	select {
	case w.notify <- struct{}{}:
	default:
		// A wakeup is already pending; it will read everything new.
	}
}

// startLocked starts a worker for the session. p.mu must be held.
func (p *Pipeline) startLocked(ctx context.Context, sessionID, path string) *worker {
	w := p.newWorker(sessionID, path)
	p.workers[sessionID] = w
	activeWorkers.Inc()
	p.wg.Add(1)
	go p.run(ctx, w)
	return w
}

func (p *Pipeline) removed(sessionID string) {
	p.mu.Lock()
	w, ok := p.workers[sessionID]
	delete(p.paths, sessionID)
	if ok {
		// The worker tears down after finishing its current batch.
		select {
		case w.remove <- struct{}{}:
		default:
		}
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	p.teardown(sessionID)
}

func (p *Pipeline) newWorker(sessionID, path string) *worker {
	w := &worker{
		sessionID: sessionID,
		proc:      processor.New(sessionID, processor.WithIDs(p.cfg.IDs), processor.WithLabeler(p.cfg.Labeler)),
		path:      path,
		notify:    make(chan struct{}, 1),
		remove:    make(chan struct{}, 1),
		ctx:       processor.NewContext(),
	}
	return w
}

// restore picks up where a previous worker or process left off.
func (p *Pipeline) restore(w *worker) {
	st, ok := p.cfg.Store.Load(w.sessionID)
	if !ok {
		return
	}
	w.ctx = st.ProcessingContext
	w.offset = st.FilePosition
	w.line = st.LineNumber
	applog.Log.Info("Resuming session", "session_id", w.sessionID, "offset", st.FilePosition, "line", st.LineNumber)
}

func (p *Pipeline) run(ctx context.Context, w *worker) {
	defer p.wg.Done()
	defer activeWorkers.Dec()

	p.restore(w)
	idle := time.NewTimer(p.cfg.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			p.forget(w)
			return

		case <-w.notify:
			p.mu.Lock()
			path := w.path
			p.mu.Unlock()
			p.process(w, path)
			idle.Reset(p.cfg.IdleTimeout)

		case <-w.remove:
			// w stays registered until the state is gone, so a recreated
			// file cannot start a worker that restores the old offset.
			p.teardown(w.sessionID)
			p.retire(ctx, w)
			return

		case <-idle.C:
			p.mu.Lock()
			if len(w.notify) > 0 || len(w.remove) > 0 {
				p.mu.Unlock()
				idle.Reset(p.cfg.IdleTimeout)
				continue
			}
			delete(p.workers, w.sessionID)
			p.mu.Unlock()
			applog.Log.Debug("Session worker idle, exiting", "session_id", w.sessionID)
			return
		}
	}
}

func (p *Pipeline) forget(w *worker) {
	p.mu.Lock()
	if p.workers[w.sessionID] == w {
		delete(p.workers, w.sessionID)
	}
	p.mu.Unlock()
}

// retire unregisters a torn down worker. A change that arrived meanwhile
// belongs to a new file and gets a fresh worker.
func (p *Pipeline) retire(ctx context.Context, w *worker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.workers[w.sessionID] == w {
		delete(p.workers, w.sessionID)
	}
	if len(w.notify) == 0 {
		return
	}
	if path, ok := p.paths[w.sessionID]; ok {
		if _, running := p.workers[w.sessionID]; !running {
			nw := p.startLocked(ctx, w.sessionID, path)
			nw.notify <- struct{}{}
		}
	}
}

// process reads and publishes everything appended since the last batch.
func (p *Pipeline) process(w *worker, path string) {
	for {
		start := time.Now()
		batch, err := p.tailer.Read(path, w.offset, w.line)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				applog.Log.Debug("Transcript vanished before read", "session_id", w.sessionID, "path", path)
			} else {
				applog.Log.Warn("Failed to read transcript", "session_id", w.sessionID, "path", path, "error", err)
			}
			return
		}
		if len(batch.Lines) == 0 && !batch.Reset {
			return
		}

		var events []blocks.Event
		ctx := w.ctx
		if batch.Reset {
			applog.Log.Info("Transcript truncated, restarting", "session_id", w.sessionID, "path", path)
			events = append(events, blocks.ClearAll{})
			ctx = processor.NewContext()
		}
		transformed, next := w.proc.Transform(batch.Lines, ctx)
		events = append(events, transformed...)
		w.ctx, w.offset, w.line = next, batch.Offset, batch.LineNumber

		if err := p.cfg.Store.Save(w.sessionID, state.SessionState{
			FilePosition:      w.offset,
			LineNumber:        w.line,
			ProcessingContext: w.ctx,
			LastModified:      p.now(),
		}); err != nil {
			applog.Log.Warn("Failed to save session state", "session_id", w.sessionID, "error", err)
		}

		buf := p.cfg.Buffers.Get(w.sessionID)
		for _, ev := range events {
			e := buf.Add(ev)
			p.cfg.Broadcaster.Publish(w.sessionID, e)
		}

		batchesTotal.Inc()
		linesTotal.Add(float64(len(batch.Lines)))
		batchDuration.Observe(time.Since(start).Seconds())
		applog.Log.Debug("Processed batch", "session_id", w.sessionID, "lines", len(batch.Lines),
			"events", len(events), "offset", w.offset)

		if !batch.More {
			return
		}
	}
}

// teardown ends a session: subscribers are told it ended, its buffer and
// saved state are dropped.
func (p *Pipeline) teardown(sessionID string) {
	p.cfg.Broadcaster.EndSession(sessionID, EndReasonDeleted)
	if buf, ok := p.cfg.Buffers.Lookup(sessionID); ok {
		buf.Clear()
		p.cfg.Buffers.Remove(sessionID)
	}
	if err := p.cfg.Store.Delete(sessionID); err != nil {
		applog.Log.Warn("Failed to delete session state", "session_id", sessionID, "error", err)
	}
	applog.Log.Info("Session removed", "session_id", sessionID)
}

// Sessions lists sessions that have a worker, buffered events or
// subscribers, sorted by id.
func (p *Pipeline) Sessions() []SessionInfo {
	p.mu.Lock()
	known := make(map[string]*SessionInfo)
	for id, path := range p.paths {
		known[id] = &SessionInfo{ID: id, Path: path}
	}
	for id := range p.workers {
		if info, ok := known[id]; ok {
			info.Active = true
		} else {
			known[id] = &SessionInfo{ID: id, Active: true}
		}
	}
	p.mu.Unlock()

	for _, id := range p.cfg.Buffers.Sessions() {
		if _, ok := known[id]; !ok {
			known[id] = &SessionInfo{ID: id}
		}
	}
	for _, id := range p.cfg.Broadcaster.Sessions() {
		if _, ok := known[id]; !ok {
			known[id] = &SessionInfo{ID: id}
		}
	}

	out := make([]SessionInfo, 0, len(known))
	for id, info := range known {
		if buf, ok := p.cfg.Buffers.Lookup(id); ok {
			info.Buffered = buf.Len()
			info.LastEventID = buf.LastID()
		}
		info.Subscribers = p.cfg.Broadcaster.Subscribers(id)
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
