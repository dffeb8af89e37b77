package broadcast

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wethinkt/thinkt-live/internal/applog"
	"github.com/wethinkt/thinkt-live/internal/eventbuf"
)

// State is the lifecycle stage of a subscription.
type State int32

const (
	StateConnecting State = iota
	StateReplaying
	StateLive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateReplaying:
		return "replaying"
	case StateLive:
		return "live"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Subscription is one subscriber attached to a session. Live messages are
// queued and written by a dedicated goroutine, so a slow sink never blocks
// the publisher.
type Subscription struct {
	id        uint64
	sessionID string
	sink      Sink
	b         *Broadcaster

	state    atomic.Int32
	queue    chan Message
	head     eventbuf.Mark // newest buffered event at replay time
	replayed int

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	started bool // writer goroutine owns the sink
	stopped bool
	err     error

	once sync.Once
	done chan struct{}
}

// ID is unique per Broadcaster.
func (s *Subscription) ID() uint64 { return s.id }

// SessionID returns the session the subscription follows.
func (s *Subscription) SessionID() string { return s.sessionID }

// State returns the current lifecycle stage.
func (s *Subscription) State() State { return State(s.state.Load()) }

// Replayed returns the number of buffered events sent on connect.
func (s *Subscription) Replayed() int { return s.replayed }

// Done is closed once the subscription has ended and its sink is closed.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Err reports why the subscription ended: ErrSubscriptionClosed for an
// explicit disconnect, ErrSessionEnded, ErrSlowConsumer, the context error,
// or the sink's write error. It is nil while the subscription is open.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// enqueue offers a live message without blocking. It reports false when
// the queue is full.
func (s *Subscription) enqueue(m Message) bool {
	select {
	case <-s.ctx.Done():
		return true
	default:
	}
	select {
	case s.queue <- m:
		return true
	default:
		return false
	}
}

// start hands the sink to the writer goroutine. It fails when the
// subscription was stopped during replay.
func (s *Subscription) start(keepalive time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.started = true
	s.state.Store(int32(StateLive))
	go s.run(keepalive)
	return true
}

func (s *Subscription) run(keepalive time.Duration) {
	defer s.finish()

	ticker := time.NewTicker(keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.stop(s.ctx.Err())
			return
		case m := <-s.queue:
			if m.entry != nil && s.head.Covers(m.entry.Gen, m.entry.Seq) {
				// Already delivered by replay, or superseded by a Clear.
				continue
			}
			if err := s.sink.Send(s.ctx, m); err != nil {
				s.stop(err)
				return
			}
			messagesSent.WithLabelValues(m.Event).Inc()
			if m.terminal {
				s.stop(ErrSessionEnded)
				return
			}
		case <-ticker.C:
			if err := s.sink.Keepalive(s.ctx); err != nil {
				s.stop(err)
				return
			}
		}
	}
}

// stop records the first cause, cancels the subscription and removes it from
// the broadcaster. The sink is closed by its owner: the writer goroutine once
// started, otherwise stop itself.
func (s *Subscription) stop(cause error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = cause
		s.stopped = true
		started := s.started
		s.mu.Unlock()

		s.state.Store(int32(StateClosed))
		s.cancel()
		s.b.remove(s)

		disconnectsTotal.WithLabelValues(reasonLabel(cause)).Inc()
		applog.Log.Info("Subscriber disconnected", "session_id", s.sessionID, "subscription", s.id, "reason", cause)

		if !started {
			s.finish()
		}
	})
}

func (s *Subscription) finish() {
	if err := s.sink.Close(); err != nil {
		applog.Log.Debug("Sink close failed", "session_id", s.sessionID, "error", err)
	}
	close(s.done)
}

func reasonLabel(err error) string {
	switch {
	case errors.Is(err, ErrSubscriptionClosed):
		return "disconnect"
	case errors.Is(err, ErrSessionEnded):
		return "session_ended"
	case errors.Is(err, ErrSlowConsumer):
		return "slow_consumer"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "write_error"
	}
}
