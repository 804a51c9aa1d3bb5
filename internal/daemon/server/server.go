// Package server provides the HTTP and websocket API for the cowork daemon.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/grovetools/cowork/internal/daemon/store"
	"github.com/grovetools/cowork/internal/executor"
	"github.com/grovetools/cowork/internal/rooms"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// RunningConfig describes the configuration the daemon was started with.
// This is exposed via the /api/config endpoint so clients can verify what config is active.
type RunningConfig struct {
	Listen     string    `json:"listen"`
	ConfigFile string    `json:"config_file,omitempty"`
	Version    string    `json:"version,omitempty"`
	StartedAt  time.Time `json:"started_at"`
}

// liveConfig is RunningConfig plus the executor limits currently in force.
type liveConfig struct {
	*RunningConfig
	Tool              string   `json:"tool"`
	Args              []string `json:"args"`
	Timeout           string   `json:"timeout"`
	KillGrace         string   `json:"kill_grace"`
	RequestsPerWindow int      `json:"requests_per_window"`
	Window            string   `json:"window"`
	MaxPromptLength   int      `json:"max_prompt_length"`
	ContextFile       string   `json:"context_file"`
	ContextMaxLines   int      `json:"context_max_lines"`
}

// Server manages the daemon's HTTP server.
type Server struct {
	logger        *logrus.Entry
	server        *http.Server
	executor      *executor.Executor
	rooms         *rooms.Broadcaster
	store         *store.Store
	auth          Authenticator
	policy        DirectoryPolicy
	chat          ChatStore
	origins       map[string]struct{}
	upgrader      websocket.Upgrader
	runningConfig *RunningConfig

	socketsMu sync.Mutex
	sockets   map[*wsSocket]struct{}
}

// New creates a new Server instance with header authentication and no
// directory restrictions.
func New(logger *logrus.Entry, exec *executor.Executor, broadcaster *rooms.Broadcaster, st *store.Store) *Server {
	s := &Server{
		logger:        logger,
		executor:      exec,
		rooms:         broadcaster,
		store:         st,
		auth:          HeaderAuthenticator{},
		policy:        NewListPolicy(nil),
		runningConfig: &RunningConfig{StartedAt: time.Now()},
		sockets:       make(map[*wsSocket]struct{}),
		server:        &http.Server{ReadHeaderTimeout: 10 * time.Second},
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// SetAuthenticator replaces the request authenticator.
func (s *Server) SetAuthenticator(a Authenticator) {
	s.auth = a
}

// SetDirectoryPolicy replaces the working directory policy.
func (s *Server) SetDirectoryPolicy(p DirectoryPolicy) {
	s.policy = p
}

// SetChatStore sets where chat messages are persisted. Without one,
// messages are only relayed.
func (s *Server) SetChatStore(c ChatStore) {
	s.chat = c
}

// SetAllowedOrigins restricts websocket upgrades to the given origins.
// An empty list allows any origin.
func (s *Server) SetAllowedOrigins(origins []string) {
	s.origins = make(map[string]struct{}, len(origins))
	for _, o := range origins {
		s.origins[o] = struct{}{}
	}
}

// SetRunningConfig sets the running configuration for the server.
func (s *Server) SetRunningConfig(cfg *RunningConfig) {
	s.runningConfig = cfg
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.origins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	_, ok := s.origins[origin]
	return ok
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("POST /api/execute", s.handleExecute)
	mux.HandleFunc("GET /api/sessions", s.handleGetSessions)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleKillSession)
	mux.HandleFunc("GET /api/messages", s.handleGetMessages)
	mux.HandleFunc("POST /api/messages", s.handlePostMessage)
	mux.HandleFunc("POST /api/context/clear", s.handleClearContext)
	mux.HandleFunc("GET /api/rooms", s.handleGetRooms)
	mux.HandleFunc("GET /api/stats", s.handleGetStats)
	mux.HandleFunc("GET /api/stream", s.handleStream)
	mux.HandleFunc("GET /api/config", s.handleGetConfig)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	return h2c.NewHandler(mux, &http2.Server{})
}

// ListenAndServe listens on the TCP address and serves the API.
// It blocks until the server stops or fails.
func (s *Server) ListenAndServe(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(listener)
}

// Serve serves the API on an existing listener. After Shutdown it
// returns http.ErrServerClosed immediately.
func (s *Server) Serve(listener net.Listener) error {
	s.server.Handler = s.Handler()

	s.logger.WithField("addr", listener.Addr().String()).Info("Daemon listening")
	return s.server.Serve(listener)
}

// Shutdown gracefully stops the server and closes every websocket.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	s.socketsMu.Lock()
	for sock := range s.sockets {
		sock.close()
	}
	s.socketsMu.Unlock()

	return s.server.Shutdown(ctx)
}

func (s *Server) trackSocket(sock *wsSocket) {
	s.socketsMu.Lock()
	s.sockets[sock] = struct{}{}
	s.socketsMu.Unlock()
}

func (s *Server) untrackSocket(sock *wsSocket) {
	s.socketsMu.Lock()
	delete(s.sockets, sock)
	s.socketsMu.Unlock()
}
