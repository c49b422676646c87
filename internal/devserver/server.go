// ABOUTME: Development Play backend serving the directory, lobby and game endpoints
// ABOUTME: Keeps all rooms in memory and optionally advertises itself over mDNS
package devserver

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Resonate-Protocol/play-go/internal/discovery"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	authorizePath = "/1/multiplayer/router/authorize"
	roomPath      = "/1/multiplayer/lobby/room"
	matchPath     = "/1/multiplayer/lobby/match/room"
	myRoomPath    = "/1/multiplayer/lobby/peer/self/room"
	lobbyWSPath   = "/1/multiplayer/lobby/websocket"
	gameWSPath    = "/1/multiplayer/game/websocket"

	defaultTokenTTL = time.Hour
	writeDeadline   = 10 * time.Second
)

// Config holds server configuration
type Config struct {
	Port int
	Name string

	// AppID restricts the server to one app. Empty accepts any.
	AppID string

	// GameVersion rejects clients of other versions. Empty accepts any.
	GameVersion string

	TokenTTL   time.Duration
	EnableMDNS bool
	Logger     *zap.Logger
}

// Server is an in-memory Play backend
type Server struct {
	config   Config
	serverID string
	log      *zap.Logger
	upgrader websocket.Upgrader
	handler  http.Handler

	httpServer  *http.Server
	mdnsManager *discovery.Manager

	mu       sync.Mutex
	tokens   map[string]string
	rooms    map[string]*room
	lobby    map[*session]struct{}
	sessions map[*session]struct{}

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a server instance
func New(config Config) *Server {
	if config.TokenTTL == 0 {
		config.TokenTTL = defaultTokenTTL
	}
	if config.Name == "" {
		config.Name = "play-devserver"
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		config:   config,
		serverID: uuid.NewString(),
		log:      logger,
		upgrader: websocket.Upgrader{
			// local development only, browsers are not expected
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		tokens:   make(map[string]string),
		rooms:    make(map[string]*room),
		lobby:    make(map[*session]struct{}),
		sessions: make(map[*session]struct{}),
		stopChan: make(chan struct{}),
	}
	s.handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post(authorizePath, s.handleAuthorize)
	r.Group(func(r chi.Router) {
		r.Use(s.requireToken)
		r.Post(roomPath, s.handleCreateRoom)
		r.Post(roomPath+"/{name}", s.handleJoinRoom)
		r.Post(matchPath, s.handleMatchRoom)
		r.Get(myRoomPath, s.handleMyRoom)
	})
	r.Get(lobbyWSPath, s.handleLobbySocket)
	r.Get(gameWSPath, s.handleGameSocket)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return r
}

// Handler exposes the server routes, e.g. for httptest
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves on the configured port until Stop
func (s *Server) Start() error {
	s.log.Info("server starting", zap.String("name", s.config.Name), zap.String("id", s.serverID))

	if s.config.EnableMDNS {
		s.mdnsManager = discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Port:        s.config.Port,
			AppID:       s.config.AppID,
			Logger:      s.log,
		})
		if err := s.mdnsManager.Advertise(); err != nil {
			s.log.Warn("failed to start mDNS advertisement", zap.Error(err))
		}
	}

	addr := fmt.Sprintf(":%d", s.config.Port)
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.handler,
	}
	s.log.Info("listening", zap.String("addr", addr))

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	var serverErr error
	select {
	case <-s.stopChan:
		s.log.Info("server shutting down")
	case err := <-errChan:
		serverErr = err
	}

	if s.mdnsManager != nil {
		s.mdnsManager.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.Warn("http shutdown error", zap.Error(err))
	}
	s.closeSessions()
	s.wg.Wait()

	if serverErr != nil {
		return fmt.Errorf("HTTP server failed: %w", serverErr)
	}
	s.log.Info("server stopped")
	return nil
}

// Stop stops the server
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

// Close drops every websocket session. Used when the handler is served by httptest.
func (s *Server) Close() {
	s.closeSessions()
	s.wg.Wait()
}

func (s *Server) closeSessions() {
	s.mu.Lock()
	sessions := make([]*session, 0, len(s.sessions))
	for sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.conn.Close()
	}
}
