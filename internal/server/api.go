package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/wethinkt/thinkt-live/internal/pipeline"
	"github.com/wethinkt/thinkt-live/internal/version"
)

// HealthResponse is returned by GET /v1/health.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// SessionsResponse is returned by GET /v1/sessions.
type SessionsResponse struct {
	Sessions []pipeline.SessionInfo `json:"sessions"`
}

// ErrorResponse is an API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, err string, msg string) {
	writeJSON(w, status, ErrorResponse{Error: err, Message: msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		Version:       version.Get(),
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.sessions.Sessions()
	if sessions == nil {
		sessions = []pipeline.SessionInfo{}
	}
	writeJSON(w, http.StatusOK, SessionsResponse{Sessions: sessions})
}
