// Package broadcast fans block events out to the subscribers of a session.
// A new subscriber first receives the buffered events after its cursor,
// then live events, with a keepalive while idle. Each subscriber has its own
// queue and writer goroutine; a failing or slow subscriber is disconnected
// without affecting the others.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wethinkt/thinkt-live/internal/applog"
	"github.com/wethinkt/thinkt-live/internal/eventbuf"
)

var (
	// ErrSubscriptionClosed is the cause of an explicit Disconnect.
	ErrSubscriptionClosed = errors.New("subscription closed")
	// ErrSlowConsumer is the cause when a subscriber's queue overflows.
	ErrSlowConsumer = errors.New("slow consumer")
	// ErrSessionEnded is the cause after EndSession.
	ErrSessionEnded = errors.New("session ended")
)

const (
	DefaultKeepalive = 15 * time.Second
	DefaultQueueSize = 256
)

// Options configures a Broadcaster.
type Options struct {
	Keepalive time.Duration // interval between keepalive frames
	QueueSize int           // live messages held per subscriber
}

// Broadcaster tracks subscriptions per session.
type Broadcaster struct {
	buffers   *eventbuf.Manager
	keepalive time.Duration
	queueSize int

	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}

	nextID atomic.Uint64
}

// New creates a broadcaster replaying from buffers.
func New(buffers *eventbuf.Manager, opts Options) *Broadcaster {
	if opts.Keepalive <= 0 {
		opts.Keepalive = DefaultKeepalive
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	return &Broadcaster{
		buffers:   buffers,
		keepalive: opts.Keepalive,
		queueSize: opts.QueueSize,
		subs:      make(map[string]map[*Subscription]struct{}),
	}
}

// Connect registers a subscriber, replays the buffered events after
// lastEventID ("" for all of them) and then switches it to live delivery.
// A replay write failure disconnects the subscriber and is returned.
// The subscription ends when ctx is canceled.
func (b *Broadcaster) Connect(ctx context.Context, sessionID string, sink Sink, lastEventID string) (*Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		id:        b.nextID.Add(1),
		sessionID: sessionID,
		sink:      sink,
		b:         b,
		queue:     make(chan Message, b.queueSize),
		ctx:       subCtx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	s.state.Store(int32(StateConnecting))

	// Register before taking the replay snapshot so nothing published in
	// between is missed; the writer drops queued duplicates by sequence.
	b.mu.Lock()
	set, ok := b.subs[sessionID]
	if !ok {
		set = make(map[*Subscription]struct{})
		b.subs[sessionID] = set
	}
	set[s] = struct{}{}
	b.mu.Unlock()
	subscribersActive.Inc()

	s.state.Store(int32(StateReplaying))
	// Sessions without a buffer have nothing to replay. Buffers are created
	// by the producer only, so unknown ids leave nothing behind.
	var entries []eventbuf.Entry
	if buf, ok := b.buffers.Lookup(sessionID); ok {
		entries, s.head = buf.Replay(lastEventID)
	}
	for _, e := range entries {
		if subCtx.Err() != nil {
			s.stop(subCtx.Err())
			return nil, fmt.Errorf("replay %s: %w", e.ID, s.Err())
		}
		m, err := entryMessage(e)
		if err != nil {
			applog.Log.Warn("Skipping unencodable event", "session_id", sessionID, "id", e.ID, "error", err)
			continue
		}
		if err := sink.Send(subCtx, m); err != nil {
			s.stop(err)
			return nil, fmt.Errorf("replay %s: %w", e.ID, err)
		}
		messagesSent.WithLabelValues(m.Event).Inc()
		s.replayed++
	}
	replayedTotal.Add(float64(s.replayed))

	if !s.start(b.keepalive) {
		return nil, s.Err()
	}
	applog.Log.Info("Subscriber connected", "session_id", sessionID, "subscription", s.id,
		"last_event_id", lastEventID, "replayed", s.replayed)
	return s, nil
}

// Publish delivers a buffered event to every live subscriber of the session.
// Subscribers whose queue is full are disconnected with ErrSlowConsumer.
func (b *Broadcaster) Publish(sessionID string, e eventbuf.Entry) {
	m, err := entryMessage(e)
	if err != nil {
		applog.Log.Warn("Cannot encode event", "session_id", sessionID, "id", e.ID, "error", err)
		return
	}

	var slow []*Subscription
	b.mu.RLock()
	for s := range b.subs[sessionID] {
		if !s.enqueue(m) {
			slow = append(slow, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range slow {
		applog.Log.Warn("Disconnecting slow subscriber", "session_id", sessionID, "subscription", s.id)
		s.stop(ErrSlowConsumer)
	}
}

// EndSession sends a session_ended notice with reason to every subscriber of
// the session and disconnects them once it is written. Other sessions are
// unaffected.
func (b *Broadcaster) EndSession(sessionID, reason string) {
	b.mu.Lock()
	set := b.subs[sessionID]
	delete(b.subs, sessionID)
	b.mu.Unlock()

	m := SessionEndedMessage(reason)
	for s := range set {
		if !s.enqueue(m) {
			s.stop(ErrSessionEnded)
		}
	}
	if len(set) > 0 {
		applog.Log.Info("Session ended", "session_id", sessionID, "reason", reason, "subscribers", len(set))
	}
}

// Disconnect ends a subscription. It is safe to call more than once.
func (b *Broadcaster) Disconnect(s *Subscription) {
	s.stop(ErrSubscriptionClosed)
}

// Close disconnects every subscription of every session.
func (b *Broadcaster) Close() {
	b.mu.RLock()
	var all []*Subscription
	for _, set := range b.subs {
		for s := range set {
			all = append(all, s)
		}
	}
	b.mu.RUnlock()
	for _, s := range all {
		s.stop(ErrSubscriptionClosed)
	}
}

// Subscribers returns the number of live subscriptions of a session.
func (b *Broadcaster) Subscribers(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[sessionID])
}

// Sessions returns the ids of sessions with at least one subscriber, sorted.
func (b *Broadcaster) Sessions() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ids := make([]string, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (b *Broadcaster) remove(s *Subscription) {
	b.mu.Lock()
	set, ok := b.subs[s.sessionID]
	if ok {
		if _, member := set[s]; member {
			delete(set, s)
			if len(set) == 0 {
				delete(b.subs, s.sessionID)
			}
		}
	}
	b.mu.Unlock()
	subscribersActive.Dec()
}
