// Package server exposes live session streams over HTTP: Server-Sent Events,
// WebSocket, a session listing, health and Prometheus metrics.
package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wethinkt/thinkt-live/internal/applog"
	"github.com/wethinkt/thinkt-live/internal/broadcast"
	"github.com/wethinkt/thinkt-live/internal/pipeline"
)

// Defaults for Config.
const (
	DefaultHost         = "localhost"
	DefaultPort         = 7434
	DefaultWriteTimeout = 10 * time.Second
)

// Config holds server configuration.
type Config struct {
	Host  string
	Port  int
	Token string // bearer token; empty disables authentication
	Quiet bool   // disables the request log

	// WriteTimeout bounds a single write to a stream subscriber.
	WriteTimeout time.Duration
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		Host:         DefaultHost,
		Port:         DefaultPort,
		WriteTimeout: DefaultWriteTimeout,
	}
}

// SessionLister reports the sessions the server can stream.
type SessionLister interface {
	Sessions() []pipeline.SessionInfo
}

// Server serves the live API.
type Server struct {
	config      Config
	broadcaster *broadcast.Broadcaster
	sessions    SessionLister
	router      chi.Router
	startedAt   time.Time

	// ready, when set, receives the bound address once listening.
	ready func(addr string)
}

// New creates a server that streams from broadcaster and lists sessions.
func New(cfg Config, broadcaster *broadcast.Broadcaster, sessions SessionLister) *Server {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	s := &Server{
		config:      cfg,
		broadcaster: broadcaster,
		sessions:    sessions,
		startedAt:   time.Now(),
	}
	s.router = s.setupRouter()
	return s
}

// setupRouter configures routes and middleware.
func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(corsMiddleware)

	if !s.config.Quiet {
		r.Use(middleware.RequestLogger(&redactingLogFormatter{
			base: &middleware.DefaultLogFormatter{
				Logger:  log.New(applog.Log.Writer(), "", log.LstdFlags),
				NoColor: true,
			},
		}))
	}

	if s.config.Token != "" {
		applog.Log.Info("API authentication enabled")
		r.Use(bearerAuth(s.config.Token))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/sessions", s.handleListSessions)
		r.Get("/sessions/{sessionID}/events", s.handleSessionEvents)
		r.Get("/sessions/{sessionID}/ws", s.handleSessionWS)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the server address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))
}

// OnReady registers fn to be called with the bound address.
func (s *Server) OnReady(fn func(addr string)) {
	s.ready = fn
}

// ListenAndServe serves until ctx is canceled, then disconnects every
// subscriber and shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Streams only end when their subscription does.
	srv.RegisterOnShutdown(s.broadcaster.Close)

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	// Update port if it was auto-assigned
	if s.config.Port == 0 {
		s.config.Port = ln.Addr().(*net.TCPAddr).Port
	}
	applog.Log.Info("HTTP server listening", "addr", s.Addr())
	if s.ready != nil {
		s.ready(s.Addr())
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		applog.Log.Warn("HTTP shutdown incomplete", "error", err)
		srv.Close()
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// bearerAuth returns middleware that validates a bearer token using
// constant-time comparison. Browsers cannot set headers on EventSource or
// WebSocket requests, so a token query parameter is accepted as well.
func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Allow health checks without auth
			if r.URL.Path == "/v1/health" {
				next.ServeHTTP(w, r)
				return
			}

			var presented string
			if auth := r.Header.Get("Authorization"); auth != "" {
				const prefix = "Bearer "
				if len(auth) < len(prefix) || auth[:len(prefix)] != prefix {
					writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid Authorization header format")
					return
				}
				presented = auth[len(prefix):]
			} else if q := r.URL.Query().Get(tokenParam); q != "" {
				presented = q
			} else {
				w.Header().Set("WWW-Authenticate", `Bearer realm="thinkt-live"`)
				writeError(w, http.StatusUnauthorized, "unauthorized", "Missing Authorization header")
				return
			}

			if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// corsMiddleware adds CORS headers for cross-origin requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Last-Event-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
