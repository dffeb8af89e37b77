package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// Sink is the transport of one subscriber. A Broadcaster calls Send and
// Keepalive from one goroutine at a time and Close exactly once.
type Sink interface {
	Send(ctx context.Context, m Message) error
	Keepalive(ctx context.Context) error
	Close() error
}

// SSESink writes text/event-stream frames to an HTTP response.
type SSESink struct {
	w            http.ResponseWriter
	rc           *http.ResponseController
	writeTimeout time.Duration
	closed       atomic.Bool
}

// NewSSESink prepares w for streaming and writes the response headers.
// A positive writeTimeout bounds every frame write.
func NewSSESink(w http.ResponseWriter, writeTimeout time.Duration) *SSESink {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	s := &SSESink{w: w, rc: http.NewResponseController(w), writeTimeout: writeTimeout}
	_ = s.rc.Flush()
	return s
}

func (s *SSESink) Send(_ context.Context, m Message) error {
	return s.write(func() error { return WriteSSE(s.w, m) })
}

func (s *SSESink) Keepalive(context.Context) error {
	return s.write(func() error { return WriteSSEComment(s.w) })
}

func (s *SSESink) write(fn func() error) error {
	if s.closed.Load() {
		return ErrSubscriptionClosed
	}
	if s.writeTimeout > 0 {
		if err := s.rc.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return err
		}
	}
	if err := fn(); err != nil {
		return err
	}
	return s.rc.Flush()
}

// Close stops further writes. The response itself ends when the handler
// returns.
func (s *SSESink) Close() error {
	s.closed.Store(true)
	return nil
}

// wsFrame is the JSON frame sent over WebSocket.
type wsFrame struct {
	ID    string          `json:"id,omitempty"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// WebSocketSink sends each message as a JSON text frame.
type WebSocketSink struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

// NewWebSocketSink wraps an accepted connection.
func NewWebSocketSink(conn *websocket.Conn, writeTimeout time.Duration) *WebSocketSink {
	return &WebSocketSink{conn: conn, writeTimeout: writeTimeout}
}

func (s *WebSocketSink) Send(ctx context.Context, m Message) error {
	return s.write(ctx, wsFrame{ID: m.ID, Event: m.Event, Data: m.Data})
}

func (s *WebSocketSink) Keepalive(ctx context.Context) error {
	return s.write(ctx, wsFrame{Event: "keepalive"})
}

func (s *WebSocketSink) write(ctx context.Context, f wsFrame) error {
	if s.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.writeTimeout)
		defer cancel()
	}
	return wsjson.Write(ctx, s.conn, f)
}

func (s *WebSocketSink) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "stream closed")
}
