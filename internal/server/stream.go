package server

import (
	"net/http"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/wethinkt/thinkt-live/internal/applog"
	"github.com/wethinkt/thinkt-live/internal/broadcast"
)

// lastEventID returns the resume cursor: the Last-Event-ID header sent by
// reconnecting EventSource clients, else the last_event_id query parameter.
func lastEventID(r *http.Request) string {
	if id := r.Header.Get("Last-Event-ID"); id != "" {
		return id
	}
	return r.URL.Query().Get("last_event_id")
}

// handleSessionEvents streams a session as Server-Sent Events.
// GET /v1/sessions/{sessionID}/events
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "sessionID is required")
		return
	}

	sink := broadcast.NewSSESink(w, s.config.WriteTimeout)
	sub, err := s.broadcaster.Connect(r.Context(), sessionID, sink, lastEventID(r))
	if err != nil {
		streamRequestsTotal.WithLabelValues("sse", "replay_failed").Inc()
		applog.Log.Debug("SSE subscribe failed", "session_id", sessionID, "error", err)
		return
	}
	streamRequestsTotal.WithLabelValues("sse", "connected").Inc()
	streamsActive.WithLabelValues("sse").Inc()
	defer streamsActive.WithLabelValues("sse").Dec()
	// The response writer belongs to the subscription until it is done.
	<-sub.Done()
}

// handleSessionWS upgrades to WebSocket and streams a session as JSON frames.
// GET /v1/sessions/{sessionID}/ws
func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "sessionID is required")
		return
	}
	cursor := lastEventID(r)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS handled by middleware
	})
	if err != nil {
		streamRequestsTotal.WithLabelValues("ws", "accept_failed").Inc()
		applog.Log.Error("WebSocket accept failed", "error", err)
		return
	}

	// Clients only listen; CloseRead handles pings and the close handshake
	// and cancels ctx when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	sink := broadcast.NewWebSocketSink(conn, s.config.WriteTimeout)
	sub, err := s.broadcaster.Connect(ctx, sessionID, sink, cursor)
	if err != nil {
		streamRequestsTotal.WithLabelValues("ws", "replay_failed").Inc()
		applog.Log.Debug("WebSocket subscribe failed", "session_id", sessionID, "error", err)
		return
	}
	streamRequestsTotal.WithLabelValues("ws", "connected").Inc()
	streamsActive.WithLabelValues("ws").Inc()
	defer streamsActive.WithLabelValues("ws").Dec()
	<-sub.Done()
}
